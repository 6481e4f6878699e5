package portmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/denniswebb/portfwd/internal/iptables"
)

// DefaultSettleDelay is the pause between consecutive rule deletions.
const DefaultSettleDelay = 500 * time.Millisecond

const (
	reasonInvalid      = "invalid"
	reasonNotFound     = "not_found"
	reasonListFailed   = "list_failed"
	reasonDeleteFailed = "delete_failed"
	reasonCanceled     = "canceled"
)

// Resolver looks up a container's address on a network.
type Resolver interface {
	ResolveIP(ctx context.Context, idOrName string, network string) (string, error)
}

// Recorder receives operation outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveOperation(op string, ok bool)
	IncrementPortError(reason string)
	SetDNATRuleCount(count int)
}

// PortMapping is one live DNAT rule read back from the chain.
type PortMapping struct {
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
	ContainerIP   string `json:"container_ip"`
	Protocol      string `json:"protocol"`
}

// ManagerConfig holds the dependencies and settings for the Manager.
type ManagerConfig struct {
	Resolver    Resolver
	Table       iptables.Table
	TableName   string
	Chain       string
	SettleDelay time.Duration
	Recorder    Recorder
	Logger      *slog.Logger
}

// Manager adds and removes DNAT port mappings. Mutating calls are serialized.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger
	mu     sync.Mutex
	pause  func(ctx context.Context, d time.Duration) error
}

// NewManager validates the configuration and returns a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Table == nil {
		return nil, fmt.Errorf("rule table is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = iptables.DefaultTable
	}
	if cfg.Chain == "" {
		cfg.Chain = iptables.DefaultChain
	}
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("settle delay must not be negative")
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:    cfg,
		logger: logger,
		pause:  sleepContext,
	}, nil
}

// AddOption customizes a single AddPorts call.
type AddOption func(*addOptions)

type addOptions struct {
	network string
}

// OnNetwork resolves the container address on the named network instead of
// the container's own network mode.
func OnNetwork(name string) AddOption {
	return func(o *addOptions) {
		o.network = name
	}
}

// ResolveIP returns the address DNAT rules for the container would target.
func (m *Manager) ResolveIP(ctx context.Context, container string, network string) (string, error) {
	return m.cfg.Resolver.ResolveIP(ctx, container, network)
}

// AddPorts appends one DNAT rule per port pair, all targeting the container's
// address. Parse and resolution failures are returned as errors before any
// rule is written. A command failure stops the batch and yields a Result
// that is not OK; rules appended before it stay in place.
func (m *Manager) AddPorts(ctx context.Context, container string, ports []string, opts ...AddOption) (Result, error) {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	pairs, err := ParsePortPairs(ports)
	if err != nil {
		m.cfg.Recorder.ObserveOperation("add", false)
		return Result{}, err
	}

	ip, err := m.cfg.Resolver.ResolveIP(ctx, container, o.network)
	if err != nil {
		m.cfg.Recorder.ObserveOperation("add", false)
		return Result{}, fmt.Errorf("resolve container %s: %w", container, err)
	}

	rules, err := iptables.BuildDNATRules(m.cfg.TableName, m.cfg.Chain, ip, pairs)
	if err != nil {
		m.cfg.Recorder.ObserveOperation("add", false)
		return Result{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("adding port mappings",
		slog.String("container", container),
		slog.String("ip", ip),
		slog.Int("rules", len(rules)),
	)

	output, err := iptables.ApplyBatch(ctx, m.cfg.Table, rules, m.logger)
	result := Result{OK: err == nil, Message: output, Errors: map[string]string{}}
	m.cfg.Recorder.ObserveOperation("add", result.OK)
	if err != nil {
		m.logger.Error("adding port mappings failed",
			slog.String("container", container),
			slog.Any("error", err),
		)
	}
	return result, nil
}

// DelPorts removes the rule for each host port, strictly in order, pausing
// for the settle delay between ports. Every port is attempted; failures are
// collected per port in the Result. Only the first matching rule of a port
// is removed.
func (m *Manager) DelPorts(ctx context.Context, ports []string) (Result, error) {
	if len(ports) == 0 {
		return Result{}, fmt.Errorf("at least one host port must be provided")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	errs := map[string]error{}
	for i, spec := range ports {
		key := strings.TrimSpace(spec)
		if i > 0 && m.cfg.SettleDelay > 0 {
			if err := m.pause(ctx, m.cfg.SettleDelay); err != nil {
				for _, rest := range ports[i:] {
					errs[strings.TrimSpace(rest)] = err
					m.cfg.Recorder.IncrementPortError(reasonCanceled)
				}
				result := resultFromErrors(errs)
				m.cfg.Recorder.ObserveOperation("del", false)
				return result, err
			}
		}

		if err := m.deletePort(ctx, key); err != nil {
			if isNotFound(err) {
				m.logger.Info("no dnat rule to delete", slog.String("port", key))
			} else {
				m.logger.Warn("deleting port mapping failed",
					slog.String("port", key),
					slog.Any("error", err),
				)
			}
			errs[key] = err
		}
	}

	result := resultFromErrors(errs)
	m.cfg.Recorder.ObserveOperation("del", result.OK)
	return result, nil
}

func (m *Manager) deletePort(ctx context.Context, spec string) error {
	port, protocol, err := ParseHostPort(spec)
	if err != nil {
		m.cfg.Recorder.IncrementPortError(reasonInvalid)
		return err
	}

	ref, found, err := iptables.Locate(ctx, m.cfg.Table, m.cfg.TableName, m.cfg.Chain, port, protocol)
	if err != nil {
		m.cfg.Recorder.IncrementPortError(reasonListFailed)
		return err
	}
	if !found {
		m.cfg.Recorder.IncrementPortError(reasonNotFound)
		return &notFoundError{port: port, table: m.cfg.TableName, chain: m.cfg.Chain}
	}

	m.logger.Info("deleting dnat rule",
		slog.Int("port", port),
		slog.String("chain", m.cfg.Chain),
		slog.Int("line", ref.LineNumber),
	)
	out, err := m.cfg.Table.DeleteAt(ctx, m.cfg.TableName, m.cfg.Chain, ref.LineNumber)
	if err != nil {
		m.cfg.Recorder.IncrementPortError(reasonDeleteFailed)
		if out = strings.TrimSpace(out); out != "" && !strings.Contains(err.Error(), out) {
			return fmt.Errorf("delete rule %d of %s/%s: %w: %s", ref.LineNumber, m.cfg.TableName, m.cfg.Chain, err, out)
		}
		return fmt.Errorf("delete rule %d of %s/%s: %w", ref.LineNumber, m.cfg.TableName, m.cfg.Chain, err)
	}
	return nil
}

// ListMappings returns the DNAT rules currently in the chain.
func (m *Manager) ListMappings(ctx context.Context) ([]PortMapping, error) {
	records, err := iptables.ListRules(ctx, m.cfg.Table, m.cfg.TableName, m.cfg.Chain)
	if err != nil {
		return nil, err
	}

	mappings := make([]PortMapping, 0, len(records))
	for _, record := range records {
		mapping, ok := mappingFromRecord(record)
		if !ok {
			continue
		}
		mappings = append(mappings, mapping)
	}
	m.cfg.Recorder.SetDNATRuleCount(len(mappings))
	return mappings, nil
}

func mappingFromRecord(record iptables.RuleRecord) (PortMapping, bool) {
	if record.Target != iptables.DNATTarget || record.DestinationPort == 0 {
		return PortMapping{}, false
	}
	host, port, err := net.SplitHostPort(record.ToDestination)
	if err != nil {
		return PortMapping{}, false
	}
	containerPort, err := strconv.Atoi(port)
	if err != nil {
		return PortMapping{}, false
	}
	return PortMapping{
		HostPort:      record.DestinationPort,
		ContainerPort: containerPort,
		ContainerIP:   host,
		Protocol:      record.Protocol,
	}, true
}

func isNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, bool) {}
func (noopRecorder) IncrementPortError(string)     {}
func (noopRecorder) SetDNATRuleCount(int)          {}
