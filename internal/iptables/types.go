package iptables

import "context"

const (
	// DefaultTable is the table holding DNAT rules.
	DefaultTable = "nat"
	// DefaultChain is the chain the docker engine creates for published ports.
	DefaultChain = "DOCKER"
	// DNATTarget is the jump target of port forwarding rules.
	DNATTarget = "DNAT"
)

// Config represents the rule table options shared by every operation.
type Config struct {
	Table       string
	Chain       string
	Backend     string
	WaitSeconds int
}

// Rule represents a single iptables rule invocation.
type Rule struct {
	Table    string
	Chain    string
	RuleSpec []string
	Comment  string
}

// Args returns the rule specification including its comment match.
func (r Rule) Args() []string {
	args := append([]string(nil), r.RuleSpec...)
	if r.Comment != "" {
		args = append(args, "-m", "comment", "--comment", r.Comment)
	}
	return args
}

// RuleRecord is one rule of a chain listing.
type RuleRecord struct {
	Chain           string
	LineNumber      int
	Protocol        string
	DestinationPort int
	Target          string
	ToDestination   string
	Spec            string
}

// RuleReference points at a rule position. It is only valid until the chain is next mutated.
type RuleReference struct {
	LineNumber int
}

// Table is the structured capability over the packet filter used by every
// higher level helper. Mutating calls return the captured command output so
// callers can surface it verbatim.
type Table interface {
	Append(ctx context.Context, table string, chain string, spec ...string) (string, error)
	Insert(ctx context.Context, table string, chain string, pos int, spec ...string) (string, error)
	Delete(ctx context.Context, table string, chain string, spec ...string) (string, error)
	DeleteAt(ctx context.Context, table string, chain string, line int) (string, error)
	Exists(ctx context.Context, table string, chain string, spec ...string) (bool, error)
	List(ctx context.Context, table string, chain string) ([]string, error)
	ChainExists(ctx context.Context, table string, chain string) (bool, error)
	NewChain(ctx context.Context, table string, chain string) error
	DeleteChain(ctx context.Context, table string, chain string) error
}
