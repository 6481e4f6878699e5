package portmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/denniswebb/portfwd/internal/iptables"
)

// memoryTable keeps a single chain in memory and renders it like iptables -S.
type memoryTable struct {
	mu          sync.Mutex
	chain       string
	rules       [][]string
	appendFails map[int]error
	appends     int
	deleteErr   error
	listErr     error
	listCalls   int
	deleted     []int
	events      *[]string
}

func newMemoryTable(chain string, rules ...string) *memoryTable {
	t := &memoryTable{chain: chain}
	for _, rule := range rules {
		t.rules = append(t.rules, strings.Fields(rule))
	}
	return t
}

func (t *memoryTable) record(event string) {
	if t.events != nil {
		*t.events = append(*t.events, event)
	}
}

func (t *memoryTable) Append(_ context.Context, _ string, chain string, spec ...string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appends++
	t.record("append " + strings.Join(spec, " "))
	if err, ok := t.appendFails[t.appends]; ok {
		return "iptables: No chain/target/match by that name.\n", err
	}
	if chain != t.chain {
		return "", fmt.Errorf("unknown chain %s", chain)
	}
	t.rules = append(t.rules, append([]string(nil), spec...))
	return "\n", nil
}

func (t *memoryTable) Insert(_ context.Context, _ string, _ string, pos int, spec ...string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := pos - 1
	t.rules = append(t.rules[:idx], append([][]string{spec}, t.rules[idx:]...)...)
	return "", nil
}

func (t *memoryTable) Delete(context.Context, string, string, ...string) (string, error) {
	return "", errors.New("not supported")
}

func (t *memoryTable) DeleteAt(_ context.Context, _ string, _ string, line int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(fmt.Sprintf("delete %d", line))
	if t.deleteErr != nil {
		return "iptables: Index of deletion too big.\n", t.deleteErr
	}
	if line < 1 || line > len(t.rules) {
		return "", fmt.Errorf("line %d out of range", line)
	}
	t.deleted = append(t.deleted, line)
	t.rules = append(t.rules[:line-1], t.rules[line:]...)
	return "", nil
}

func (t *memoryTable) Exists(context.Context, string, string, ...string) (bool, error) {
	return false, nil
}

func (t *memoryTable) List(_ context.Context, _ string, chain string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listCalls++
	t.record("list")
	if t.listErr != nil {
		return nil, t.listErr
	}
	lines := []string{"-N " + chain}
	for _, rule := range t.rules {
		lines = append(lines, "-A "+chain+" "+strings.Join(rule, " "))
	}
	return lines, nil
}

func (t *memoryTable) ChainExists(context.Context, string, string) (bool, error) {
	return true, nil
}

func (t *memoryTable) NewChain(context.Context, string, string) error {
	return nil
}

func (t *memoryTable) DeleteChain(context.Context, string, string) error {
	return nil
}

func (t *memoryTable) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.rules))
	for _, rule := range t.rules {
		out = append(out, strings.Join(rule, " "))
	}
	return out
}

type stubResolver struct {
	mu       sync.Mutex
	ip       string
	err      error
	calls    int
	networks []string
}

func (s *stubResolver) ResolveIP(_ context.Context, _ string, network string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.networks = append(s.networks, network)
	return s.ip, s.err
}

type recordingRecorder struct {
	mu         sync.Mutex
	operations map[string]int
	portErrors map[string]int
	ruleCount  int
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{operations: map[string]int{}, portErrors: map[string]int{}}
}

func (r *recordingRecorder) ObserveOperation(op string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[fmt.Sprintf("%s/%t", op, ok)]++
}

func (r *recordingRecorder) IncrementPortError(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.portErrors[reason]++
}

func (r *recordingRecorder) SetDNATRuleCount(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ruleCount = count
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager returns a Manager whose pauses are recorded instead of slept.
func newTestManager(resolver Resolver, table iptables.Table, recorder Recorder, events *[]string) *Manager {
	m, err := NewManager(ManagerConfig{
		Resolver:    resolver,
		Table:       table,
		TableName:   "nat",
		Chain:       "DOCKER",
		SettleDelay: DefaultSettleDelay,
		Recorder:    recorder,
		Logger:      discardLogger(),
	})
	if err != nil {
		panic(err)
	}
	m.pause = func(ctx context.Context, d time.Duration) error {
		if events != nil {
			*events = append(*events, "pause "+d.String())
		}
		return ctx.Err()
	}
	return m
}
