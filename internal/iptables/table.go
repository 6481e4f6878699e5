package iptables

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CommandTable drives the iptables binary through an Executor. Every call
// is a separate process with an argument vector; nothing is interpolated
// into a shell.
type CommandTable struct {
	executor Executor
	binary   string
	wait     string
}

// NewCommandTable returns a Table backed by the iptables binary.
func NewCommandTable(executor Executor, waitSeconds int) *CommandTable {
	if executor == nil {
		executor = NewExecutor()
	}
	if waitSeconds <= 0 {
		waitSeconds = defaultWaitSeconds
	}
	return &CommandTable{
		executor: executor,
		binary:   ipv4Binary,
		wait:     strconv.Itoa(waitSeconds),
	}
}

func (t *CommandTable) run(ctx context.Context, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := append([]string{"-w", t.wait}, args...)
	out, err := t.executor.Run(ctx, t.binary, full...)
	return out.String(), err
}

// Append adds a rule at the end of the chain.
func (t *CommandTable) Append(ctx context.Context, table string, chain string, spec ...string) (string, error) {
	return t.run(ctx, append([]string{"-t", table, "-A", chain}, spec...)...)
}

// Insert adds a rule at the given 1-based position.
func (t *CommandTable) Insert(ctx context.Context, table string, chain string, pos int, spec ...string) (string, error) {
	return t.run(ctx, append([]string{"-t", table, "-I", chain, strconv.Itoa(pos)}, spec...)...)
}

// Delete removes the first rule matching spec.
func (t *CommandTable) Delete(ctx context.Context, table string, chain string, spec ...string) (string, error) {
	return t.run(ctx, append([]string{"-t", table, "-D", chain}, spec...)...)
}

// DeleteAt removes the rule at the given line number.
func (t *CommandTable) DeleteAt(ctx context.Context, table string, chain string, line int) (string, error) {
	return t.run(ctx, "-t", table, "-D", chain, strconv.Itoa(line))
}

// Exists checks for a rule with -C. Exit status 1 means absent.
func (t *CommandTable) Exists(ctx context.Context, table string, chain string, spec ...string) (bool, error) {
	_, err := t.run(ctx, append([]string{"-t", table, "-C", chain}, spec...)...)
	if err == nil {
		return true, nil
	}
	if exitStatus(err) == 1 {
		return false, nil
	}
	return false, err
}

// List returns the chain in iptables-save form, one rule per line.
func (t *CommandTable) List(ctx context.Context, table string, chain string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := t.executor.Run(ctx, t.binary, "-w", t.wait, "-t", table, "-S", chain)
	if err != nil {
		return nil, fmt.Errorf("list chain %s/%s: %w", table, chain, err)
	}

	var lines []string
	for _, line := range strings.Split(string(out.Stdout), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines, nil
}

// ChainExists determines whether the requested chain is present in the specified table.
func (t *CommandTable) ChainExists(ctx context.Context, table string, chain string) (bool, error) {
	_, err := t.run(ctx, "-t", table, "-L", chain, "-n")
	if err == nil {
		return true, nil
	}
	if exitStatus(err) == 1 {
		return false, nil
	}
	return false, fmt.Errorf("checking chain existence: %w", err)
}

// NewChain creates an empty chain.
func (t *CommandTable) NewChain(ctx context.Context, table string, chain string) error {
	_, err := t.run(ctx, "-t", table, "-N", chain)
	return err
}

// DeleteChain flushes and removes a chain.
func (t *CommandTable) DeleteChain(ctx context.Context, table string, chain string) error {
	if _, err := t.run(ctx, "-t", table, "-F", chain); err != nil {
		return fmt.Errorf("flush chain %s/%s: %w", table, chain, err)
	}
	if _, err := t.run(ctx, "-t", table, "-X", chain); err != nil {
		return fmt.Errorf("delete chain %s/%s: %w", table, chain, err)
	}
	return nil
}
