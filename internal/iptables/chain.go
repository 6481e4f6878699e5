package iptables

import (
	"context"
	"fmt"
	"log/slog"
)

// EnsureChain creates the DNAT chain when it is missing. Existing chains are
// left untouched since their rules are the live mapping state.
func EnsureChain(ctx context.Context, table Table, tableName string, chain string, logger *slog.Logger) (bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	exists, err := table.ChainExists(ctx, tableName, chain)
	if err != nil {
		return false, fmt.Errorf("determine chain existence: %w", err)
	}

	if exists {
		logger.Debug("chain already present", slog.String("table", tableName), slog.String("chain", chain))
		return false, nil
	}

	logger.Info("creating chain", slog.String("table", tableName), slog.String("chain", chain))
	if err := table.NewChain(ctx, tableName, chain); err != nil {
		return false, fmt.Errorf("create chain %s: %w", chain, err)
	}
	return true, nil
}

// RemoveChain flushes and deletes a chain created by EnsureChain. The docker
// engine owns DefaultChain, so it is never removed.
func RemoveChain(ctx context.Context, table Table, tableName string, chain string, logger *slog.Logger) (bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if chain == DefaultChain {
		return false, fmt.Errorf("refusing to remove chain %s: it is managed by the docker engine", chain)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	exists, err := table.ChainExists(ctx, tableName, chain)
	if err != nil {
		return false, fmt.Errorf("determine chain existence: %w", err)
	}
	if !exists {
		logger.Debug("chain absent; nothing to remove", slog.String("table", tableName), slog.String("chain", chain))
		return false, nil
	}

	logger.Info("removing chain", slog.String("table", tableName), slog.String("chain", chain))
	if err := table.DeleteChain(ctx, tableName, chain); err != nil {
		return false, err
	}
	return true, nil
}
