package iptables

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ParseRules converts iptables-save lines of one chain into records. Line
// numbers count only the -A lines, matching iptables --line-numbers.
func ParseRules(chain string, lines []string) []RuleRecord {
	var records []RuleRecord
	line := 0
	for _, raw := range lines {
		fields := strings.Fields(raw)
		if len(fields) < 2 || fields[0] != "-A" || fields[1] != chain {
			continue
		}
		line++

		record := RuleRecord{
			Chain:      chain,
			LineNumber: line,
			Spec:       strings.TrimSpace(raw),
		}
		for i := 2; i < len(fields)-1; i++ {
			value := fields[i+1]
			negated := fields[i-1] == "!"
			switch fields[i] {
			case "-p", "--protocol":
				if !negated {
					record.Protocol = strings.ToLower(value)
				}
			case "--dport", "--destination-port":
				if negated {
					continue
				}
				if port, err := strconv.Atoi(value); err == nil {
					record.DestinationPort = port
				}
			case "-j", "--jump":
				record.Target = value
			case "--to-destination":
				record.ToDestination = value
			}
		}
		records = append(records, record)
	}
	return records
}

// ListRules returns the typed records of a chain.
func ListRules(ctx context.Context, table Table, tableName string, chain string) ([]RuleRecord, error) {
	lines, err := table.List(ctx, tableName, chain)
	if err != nil {
		return nil, err
	}
	return ParseRules(chain, lines), nil
}

// Locate finds the first DNAT rule in chain whose destination port equals
// port. Rules with other targets are skipped even when they match the port.
// An empty protocol matches any protocol. Duplicates beyond the first are
// not reported.
func Locate(ctx context.Context, table Table, tableName string, chain string, port int, protocol string) (RuleReference, bool, error) {
	records, err := ListRules(ctx, table, tableName, chain)
	if err != nil {
		return RuleReference{}, false, fmt.Errorf("locate rule for port %d: %w", port, err)
	}

	protocol = strings.ToLower(protocol)
	for _, record := range records {
		if record.Target != DNATTarget || record.DestinationPort != port {
			continue
		}
		if protocol != "" && record.Protocol != protocol {
			continue
		}
		return RuleReference{LineNumber: record.LineNumber}, true, nil
	}
	return RuleReference{}, false, nil
}
