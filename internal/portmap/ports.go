package portmap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"

	"github.com/denniswebb/portfwd/internal/iptables"
)

var supportedProtocols = map[string]struct{}{
	"tcp":  {},
	"udp":  {},
	"sctp": {},
}

// ParsePortPairs parses "hostPort:containerPort[/proto]" specs in order.
// Equal-length ranges such as "8000-8001:80-81" expand to one pair per port.
func ParsePortPairs(specs []string) ([]iptables.PortPair, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one port mapping must be provided")
	}

	var pairs []iptables.PortPair
	for _, spec := range specs {
		mappings, err := nat.ParsePortSpec(strings.TrimSpace(spec))
		if err != nil {
			return nil, fmt.Errorf("parse port mapping %q: %w", spec, err)
		}
		for _, mapping := range mappings {
			if mapping.Binding.HostIP != "" {
				return nil, fmt.Errorf("port mapping %q: binding to a host address is not supported", spec)
			}
			if mapping.Binding.HostPort == "" {
				return nil, fmt.Errorf("port mapping %q: host port is required (want hostPort:containerPort)", spec)
			}
			hostPort, err := strconv.Atoi(mapping.Binding.HostPort)
			if err != nil {
				return nil, fmt.Errorf("port mapping %q: invalid host port %q", spec, mapping.Binding.HostPort)
			}
			protocol := mapping.Port.Proto()
			if _, ok := supportedProtocols[protocol]; !ok {
				return nil, fmt.Errorf("port mapping %q: unsupported protocol %q", spec, protocol)
			}
			pairs = append(pairs, iptables.PortPair{
				HostPort:      hostPort,
				ContainerPort: mapping.Port.Int(),
				Protocol:      protocol,
			})
		}
	}
	return pairs, nil
}

// ParseHostPort parses a delete target: "5555" matches any protocol,
// "5555/udp" only udp rules.
func ParseHostPort(spec string) (int, string, error) {
	raw, protocol, _ := strings.Cut(strings.TrimSpace(spec), "/")
	protocol = strings.ToLower(protocol)

	port, err := nat.ParsePort(raw)
	if err != nil {
		return 0, "", fmt.Errorf("invalid host port %q: %w", spec, err)
	}
	if port <= 0 {
		return 0, "", fmt.Errorf("invalid host port %q", spec)
	}
	if protocol != "" {
		if _, ok := supportedProtocols[protocol]; !ok {
			return 0, "", fmt.Errorf("invalid host port %q: unsupported protocol %q", spec, protocol)
		}
	}
	return port, protocol, nil
}
