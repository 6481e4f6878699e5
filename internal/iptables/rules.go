package iptables

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
)

// PortPair is one host port forwarded to a container port.
type PortPair struct {
	HostPort      int
	ContainerPort int
	Protocol      string
}

func (p PortPair) String() string {
	return fmt.Sprintf("%d:%d/%s", p.HostPort, p.ContainerPort, p.protocol())
}

func (p PortPair) protocol() string {
	if p.Protocol == "" {
		return "tcp"
	}
	return strings.ToLower(p.Protocol)
}

func isIPv6(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.To4() == nil
}

// RuleComment tags rules written by portfwd so listings can be traced back.
func RuleComment(pair PortPair, ip string) string {
	return fmt.Sprintf("portfwd:%d->%s:%d", pair.HostPort, ip, pair.ContainerPort)
}

// BuildDNATRules returns one DNAT rule per pair, in order, targeting ip.
func BuildDNATRules(table string, chain string, ip string, pairs []PortPair) ([]Rule, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid container address %q", ip)
	}
	if isIPv6(ip) {
		return nil, fmt.Errorf("container address %s is IPv6; only IPv4 DNAT rules are supported", ip)
	}

	rules := make([]Rule, 0, len(pairs))
	for _, pair := range pairs {
		if pair.HostPort <= 0 || pair.HostPort > 65535 || pair.ContainerPort <= 0 || pair.ContainerPort > 65535 {
			return nil, fmt.Errorf("port pair %s out of range", pair)
		}
		protocol := pair.protocol()
		rules = append(rules, Rule{
			Table: table,
			Chain: chain,
			RuleSpec: []string{
				"-p", protocol,
				"--dport", strconv.Itoa(pair.HostPort),
				"-j", DNATTarget,
				"--to-destination", fmt.Sprintf("%s:%d", ip, pair.ContainerPort),
			},
			Comment: RuleComment(pair, ip),
		})
	}
	return rules, nil
}

// ApplyBatch appends rules in order and stops at the first failure. Rules
// appended before the failure stay in place. The returned text is the output
// of every attempted command.
func ApplyBatch(ctx context.Context, table Table, rules []Rule, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var output strings.Builder
	for i, rule := range rules {
		if err := ctx.Err(); err != nil {
			return output.String(), err
		}

		logger.Info("adding dnat rule",
			slog.String("table", rule.Table),
			slog.String("chain", rule.Chain),
			slog.String("rule", strings.Join(rule.RuleSpec, " ")),
		)
		out, err := table.Append(ctx, rule.Table, rule.Chain, rule.Args()...)
		output.WriteString(out)
		if err != nil {
			if strings.TrimSpace(out) == "" {
				output.WriteString(err.Error())
			}
			logger.Warn("dnat rule batch aborted",
				slog.Int("applied", i),
				slog.Int("skipped", len(rules)-i-1),
				slog.Any("error", err),
			)
			return output.String(), fmt.Errorf("append rule %d of %d: %w", i+1, len(rules), err)
		}
	}
	return output.String(), nil
}
