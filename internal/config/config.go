package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// RuntimeDocker resolves containers through the docker engine API.
	RuntimeDocker = "docker"
	// RuntimeKubernetes resolves pods through the Kubernetes API.
	RuntimeKubernetes = "kubernetes"
)

// Config captures the runtime settings for portfwd commands.
type Config struct {
	LogLevel        string        `mapstructure:"log-level"`
	Runtime         string        `mapstructure:"runtime"`
	DockerHost      string        `mapstructure:"docker-host"`
	DockerAPI       string        `mapstructure:"docker-api-version"`
	Kubeconfig      string        `mapstructure:"kubeconfig"`
	Namespace       string        `mapstructure:"namespace"`
	DefaultNetwork  string        `mapstructure:"default-network"`
	NATTable        string        `mapstructure:"nat-table"`
	NATChain        string        `mapstructure:"nat-chain"`
	IPTablesBackend string        `mapstructure:"iptables-backend"`
	IPTablesWait    int           `mapstructure:"iptables-wait"`
	SettleDelay     time.Duration `mapstructure:"settle-delay"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ListenAddr      string        `mapstructure:"listen-addr"`
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log-level", "info")
	v.SetDefault("runtime", RuntimeDocker)
	v.SetDefault("namespace", "default")
	v.SetDefault("default-network", "bridge")
	v.SetDefault("nat-table", "nat")
	v.SetDefault("nat-chain", "DOCKER")
	v.SetDefault("iptables-backend", "exec")
	v.SetDefault("iptables-wait", 5)
	v.SetDefault("settle-delay", "500ms")
	v.SetDefault("timeout", "30s")
	v.SetDefault("listen-addr", ":9095")
}

// Load reads configuration values from viper into a Config instance.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates configuration from v.
func LoadFrom(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to load configuration: %w", err)
	}
	cfg.Runtime = strings.ToLower(strings.TrimSpace(cfg.Runtime))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	switch c.Runtime {
	case RuntimeDocker, RuntimeKubernetes:
	default:
		return fmt.Errorf("unsupported runtime %q (want %s or %s)", c.Runtime, RuntimeDocker, RuntimeKubernetes)
	}
	if strings.TrimSpace(c.NATChain) == "" {
		return fmt.Errorf("nat-chain must not be empty")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle-delay must not be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
