package iptables

import (
	"context"
	"fmt"
	"log/slog"
)

// JumpHooks are the built-in chains that must reach a custom DNAT chain:
// PREROUTING for external traffic and OUTPUT for connections from the host.
var JumpHooks = []string{"PREROUTING", "OUTPUT"}

func jumpSpec(chain string) []string {
	return []string{"-m", "addrtype", "--dst-type", "LOCAL", "-j", chain}
}

// JumpExists determines whether a jump from the provided hook to the target chain exists.
func JumpExists(ctx context.Context, table Table, tableName string, hook string, chain string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	exists, err := table.Exists(ctx, tableName, hook, jumpSpec(chain)...)
	if err != nil {
		return false, fmt.Errorf("check jump existence: %w", err)
	}
	return exists, nil
}

// AddJump inserts a jump rule at the top of the specified hook, ensuring idempotent behavior.
func AddJump(ctx context.Context, table Table, tableName string, hook string, chain string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	exists, err := JumpExists(ctx, table, tableName, hook, chain)
	if err != nil {
		return fmt.Errorf("determine jump existence: %w", err)
	}

	if exists {
		logger.Debug("jump rule already present",
			slog.String("table", tableName),
			slog.String("hook", hook),
			slog.String("chain", chain),
		)
		return nil
	}

	logger.Info("adding jump rule",
		slog.String("table", tableName),
		slog.String("hook", hook),
		slog.String("chain", chain),
	)
	if _, err := table.Insert(ctx, tableName, hook, 1, jumpSpec(chain)...); err != nil {
		return fmt.Errorf("add jump from %s: %w", hook, err)
	}
	return nil
}

// RemoveJump deletes the jump rule from the specified hook, ignoring missing rules.
func RemoveJump(ctx context.Context, table Table, tableName string, hook string, chain string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	exists, err := JumpExists(ctx, table, tableName, hook, chain)
	if err != nil {
		return fmt.Errorf("determine jump existence: %w", err)
	}

	if !exists {
		logger.Debug("jump rule absent; nothing to remove",
			slog.String("table", tableName),
			slog.String("hook", hook),
			slog.String("chain", chain),
		)
		return nil
	}

	logger.Info("removing jump rule",
		slog.String("table", tableName),
		slog.String("hook", hook),
		slog.String("chain", chain),
	)
	if _, err := table.Delete(ctx, tableName, hook, jumpSpec(chain)...); err != nil {
		return fmt.Errorf("remove jump from %s: %w", hook, err)
	}
	return nil
}
