package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denniswebb/portfwd/internal/config"
	"github.com/denniswebb/portfwd/internal/logging"
	"github.com/denniswebb/portfwd/internal/portmap"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "portfwd",
	Short: "Forward host ports to running containers with iptables DNAT rules",
	Long: `portfwd publishes ports of containers that are already running. It resolves the container's
address through the docker engine (or the Kubernetes API for pods) and appends DNAT rules to the nat
table, by default to the DOCKER chain the engine manages. Rules are the only state: listing the chain
shows what is forwarded, deleting a rule stops forwarding.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix("PF")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()

		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}

		logging.InitLogger(viper.GetString("log-level"), "portfwd")
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("runtime", config.RuntimeDocker, "Container runtime used to resolve addresses (docker, kubernetes)")
	flags.String("docker-host", "", "Docker engine endpoint; defaults to DOCKER_HOST")
	flags.String("docker-api-version", "", "Pin the docker API version instead of negotiating")
	flags.String("kubeconfig", "", "Path to a kubeconfig; empty uses the in-cluster service account")
	flags.String("namespace", "default", "Namespace for pod names given without one")
	flags.String("default-network", "bridge", "Network used for containers in the default network mode")
	flags.String("nat-table", "nat", "iptables table holding the DNAT rules")
	flags.String("nat-chain", "DOCKER", "Chain the DNAT rules are appended to")
	flags.String("iptables-backend", "exec", "Rule backend (exec, go-iptables)")
	flags.Int("iptables-wait", 5, "Seconds to wait for the xtables lock")
	flags.Duration("settle-delay", portmap.DefaultSettleDelay, "Pause between consecutive rule deletions")
	flags.Duration("timeout", 30*time.Second, "Deadline for one command")

	for _, name := range []string{
		"log-level", "runtime", "docker-host", "docker-api-version", "kubeconfig", "namespace",
		"default-network", "nat-table", "nat-chain", "iptables-backend", "iptables-wait",
		"settle-delay", "timeout",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to bind %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(ResolveCmd)
	rootCmd.AddCommand(AddCmd)
	rootCmd.AddCommand(DelCmd)
	rootCmd.AddCommand(ListCmd)
	rootCmd.AddCommand(InitCmd)
	rootCmd.AddCommand(TeardownCmd)
	rootCmd.AddCommand(ServeCmd)
}
