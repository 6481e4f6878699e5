package iptables

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	ipv4Binary         = "iptables"
	defaultWaitSeconds = 5

	// BackendExec runs the iptables binary through an Executor.
	BackendExec = "exec"
	// BackendGoIPTables uses github.com/coreos/go-iptables.
	BackendGoIPTables = "go-iptables"
)

// New returns the Table implementation selected by cfg.Backend.
func New(cfg Config, logger *slog.Logger) (Table, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if strings.TrimSpace(cfg.Chain) == "" {
		return nil, fmt.Errorf("nat chain name cannot be empty; set PF_NAT_CHAIN or use default %s", DefaultChain)
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", BackendExec:
		logger.Debug("using iptables backend", slog.String("backend", BackendExec), slog.Int("wait_seconds", cfg.WaitSeconds))
		return NewCommandTable(NewExecutor(), cfg.WaitSeconds), nil
	case BackendGoIPTables:
		logger.Debug("using iptables backend", slog.String("backend", BackendGoIPTables), slog.Int("wait_seconds", cfg.WaitSeconds))
		return NewGoIPTablesTable(cfg.WaitSeconds)
	default:
		return nil, fmt.Errorf("unknown iptables backend %q (want %s or %s)", cfg.Backend, BackendExec, BackendGoIPTables)
	}
}
