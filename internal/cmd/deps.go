package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"k8s.io/client-go/kubernetes"

	"github.com/denniswebb/portfwd/internal/config"
	"github.com/denniswebb/portfwd/internal/iptables"
	"github.com/denniswebb/portfwd/internal/k8s"
	"github.com/denniswebb/portfwd/internal/logging"
	"github.com/denniswebb/portfwd/internal/portmap"
	"github.com/denniswebb/portfwd/internal/runtime"
)

var errOperationFailed = errors.New("operation did not succeed, see output for details")

func loadSettings() (config.Config, *slog.Logger, error) {
	logger := logging.GetLogger()
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newConnector(cfg config.Config) runtime.Connector {
	if cfg.Runtime == config.RuntimeKubernetes {
		return k8s.NewPodConnector(func() (kubernetes.Interface, error) {
			return k8s.NewClient(cfg.Kubeconfig)
		}, cfg.Namespace)
	}
	return runtime.NewDockerConnector(runtime.DockerConfig{
		Host:       cfg.DockerHost,
		APIVersion: cfg.DockerAPI,
	})
}

func newTable(cfg config.Config, logger *slog.Logger) (iptables.Table, error) {
	return iptables.New(iptables.Config{
		Table:       cfg.NATTable,
		Chain:       cfg.NATChain,
		Backend:     cfg.IPTablesBackend,
		WaitSeconds: cfg.IPTablesWait,
	}, logger)
}

func newManager(cfg config.Config, connect runtime.Connector, logger *slog.Logger, recorder portmap.Recorder) (*portmap.Manager, error) {
	table, err := newTable(cfg, logger)
	if err != nil {
		return nil, err
	}

	manager, err := portmap.NewManager(portmap.ManagerConfig{
		Resolver:    runtime.NewResolver(connect, cfg.DefaultNetwork, logger),
		Table:       table,
		TableName:   cfg.NATTable,
		Chain:       cfg.NATChain,
		SettleDelay: cfg.SettleDelay,
		Recorder:    recorder,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create port mapping manager: %w", err)
	}
	return manager, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeResult prints the result and turns a failed one into a non-nil error
// so the process exits non-zero.
func writeResult(w io.Writer, result portmap.Result) error {
	if err := writeJSON(w, result); err != nil {
		return err
	}
	if result.OK {
		return nil
	}
	if err := result.Err(); err != nil {
		return err
	}
	return errOperationFailed
}
