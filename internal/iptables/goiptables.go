package iptables

import (
	"context"
	"fmt"

	goipt "github.com/coreos/go-iptables/iptables"
)

// ipTablesClient is the subset of *goipt.IPTables used by GoIPTablesTable.
type ipTablesClient interface {
	Append(table, chain string, rulespec ...string) error
	Insert(table, chain string, pos int, rulespec ...string) error
	Delete(table, chain string, rulespec ...string) error
	DeleteById(table, chain string, id int) error
	Exists(table, chain string, rulespec ...string) (bool, error)
	List(table, chain string) ([]string, error)
	ChainExists(table, chain string) (bool, error)
	NewChain(table, chain string) error
	ClearAndDeleteChain(table, chain string) error
}

// GoIPTablesTable implements Table on top of github.com/coreos/go-iptables.
// The library takes the xtables lock itself and only reports stderr on
// failure, so successful mutations return empty output.
type GoIPTablesTable struct {
	client ipTablesClient
}

// NewGoIPTablesTable creates an IPv4 client waiting up to waitSeconds for the xtables lock.
func NewGoIPTablesTable(waitSeconds int) (*GoIPTablesTable, error) {
	if waitSeconds <= 0 {
		waitSeconds = defaultWaitSeconds
	}
	client, err := goipt.New(goipt.IPFamily(goipt.ProtocolIPv4), goipt.Timeout(waitSeconds))
	if err != nil {
		return nil, fmt.Errorf("iptables is not installed in the system or not supported: %w", err)
	}
	return &GoIPTablesTable{client: client}, nil
}

func mutationOutput(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Append adds a rule at the end of the chain.
func (t *GoIPTablesTable) Append(ctx context.Context, table string, chain string, spec ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	err := t.client.Append(table, chain, spec...)
	return mutationOutput(err), err
}

// Insert adds a rule at the given 1-based position.
func (t *GoIPTablesTable) Insert(ctx context.Context, table string, chain string, pos int, spec ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	err := t.client.Insert(table, chain, pos, spec...)
	return mutationOutput(err), err
}

// Delete removes the first rule matching spec.
func (t *GoIPTablesTable) Delete(ctx context.Context, table string, chain string, spec ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	err := t.client.Delete(table, chain, spec...)
	return mutationOutput(err), err
}

// DeleteAt removes the rule at the given line number.
func (t *GoIPTablesTable) DeleteAt(ctx context.Context, table string, chain string, line int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	err := t.client.DeleteById(table, chain, line)
	return mutationOutput(err), err
}

// Exists reports whether a rule matching spec is present.
func (t *GoIPTablesTable) Exists(ctx context.Context, table string, chain string, spec ...string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return t.client.Exists(table, chain, spec...)
}

// List returns the chain in iptables-save form.
func (t *GoIPTablesTable) List(ctx context.Context, table string, chain string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lines, err := t.client.List(table, chain)
	if err != nil {
		return nil, fmt.Errorf("list chain %s/%s: %w", table, chain, err)
	}
	return lines, nil
}

// ChainExists determines whether the requested chain is present in the specified table.
func (t *GoIPTablesTable) ChainExists(ctx context.Context, table string, chain string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return t.client.ChainExists(table, chain)
}

// NewChain creates an empty chain.
func (t *GoIPTablesTable) NewChain(ctx context.Context, table string, chain string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.client.NewChain(table, chain)
}

// DeleteChain flushes and removes a chain.
func (t *GoIPTablesTable) DeleteChain(ctx context.Context, table string, chain string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.client.ClearAndDeleteChain(table, chain)
}
