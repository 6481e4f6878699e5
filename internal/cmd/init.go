package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/denniswebb/portfwd/internal/iptables"
)

// InitCmd prepares a custom DNAT chain and the jumps that reach it.
var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the DNAT chain and hook it into PREROUTING and OUTPUT",
	Long: `init is only needed when --nat-chain names a chain other than DOCKER. The chain is created
when missing and never flushed; jumps for locally destined traffic are inserted at the top of the
PREROUTING and OUTPUT chains of the nat table.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadSettings()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()

		table, err := newTable(cfg, logger)
		if err != nil {
			logger.Error("failed to create rule table", slog.String("error", err.Error()))
			return err
		}

		if err := prepareChain(ctx, table, cfg.NATTable, cfg.NATChain, logger); err != nil {
			logger.Error("chain setup failed", slog.String("error", err.Error()))
			return err
		}

		logger.Info("dnat chain prepared",
			slog.String("table", cfg.NATTable),
			slog.String("chain", cfg.NATChain),
		)
		return nil
	},
}

// TeardownCmd removes what init created.
var TeardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Remove the jumps to the DNAT chain and delete it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadSettings()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()

		table, err := newTable(cfg, logger)
		if err != nil {
			return err
		}

		if err := teardownChain(ctx, table, cfg.NATTable, cfg.NATChain, logger); err != nil {
			logger.Error("chain teardown failed", slog.String("error", err.Error()))
			return err
		}

		logger.Info("dnat chain removed",
			slog.String("table", cfg.NATTable),
			slog.String("chain", cfg.NATChain),
		)
		return nil
	},
}

func prepareChain(ctx context.Context, table iptables.Table, tableName string, chain string, logger *slog.Logger) error {
	if _, err := iptables.EnsureChain(ctx, table, tableName, chain, logger); err != nil {
		return err
	}

	if chain == iptables.DefaultChain {
		logger.Info("docker engine maintains jumps to its chain; skipping hooks", slog.String("chain", chain))
		return nil
	}

	for _, hook := range iptables.JumpHooks {
		if err := iptables.AddJump(ctx, table, tableName, hook, chain, logger); err != nil {
			return err
		}
	}
	return nil
}

func teardownChain(ctx context.Context, table iptables.Table, tableName string, chain string, logger *slog.Logger) error {
	if chain == iptables.DefaultChain {
		return fmt.Errorf("refusing to tear down %s: the chain and its jumps belong to the docker engine", chain)
	}

	for _, hook := range iptables.JumpHooks {
		if err := iptables.RemoveJump(ctx, table, tableName, hook, chain, logger); err != nil {
			return err
		}
	}

	_, err := iptables.RemoveChain(ctx, table, tableName, chain, logger)
	return err
}
