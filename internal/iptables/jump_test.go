package iptables

import (
	"context"
	"errors"
	"testing"
)

func TestAddJumpInsertsRuleWhenMissing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	exec := &recordingExecutor{
		runErrors: map[string]error{
			runKey(ipv4Binary, []string{"-w", "5", "-t", "nat", "-C", "OUTPUT", "-m", "addrtype", "--dst-type", "LOCAL", "-j", "PORTFWD"}): fakeExitError{code: 1},
		},
	}

	if err := AddJump(ctx, NewCommandTable(exec, 5), "nat", "OUTPUT", "PORTFWD", discardLogger()); err != nil {
		t.Fatalf("AddJump returned error: %v", err)
	}

	if len(exec.calls) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(exec.calls))
	}

	got := exec.calls[1]
	want := []string{"-w", "5", "-t", "nat", "-I", "OUTPUT", "1", "-m", "addrtype", "--dst-type", "LOCAL", "-j", "PORTFWD"}
	if got.command != ipv4Binary || !equalSlices(got.args, want) {
		t.Fatalf("unexpected insert command: %#v", got)
	}
}

func TestAddJumpSkipsWhenPresent(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{}
	if err := AddJump(context.Background(), NewCommandTable(exec, 5), "nat", "PREROUTING", "PORTFWD", discardLogger()); err != nil {
		t.Fatalf("AddJump returned error: %v", err)
	}

	if len(exec.calls) != 1 {
		t.Fatalf("expected only the existence check, got %d commands", len(exec.calls))
	}
	if !containsArg(exec.calls[0].args, "-C") {
		t.Fatalf("expected -C check, got %v", exec.calls[0].args)
	}
}

func TestRemoveJump(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	checkKey := runKey(ipv4Binary, []string{"-w", "5", "-t", "nat", "-C", "PREROUTING", "-m", "addrtype", "--dst-type", "LOCAL", "-j", "PORTFWD"})

	t.Run("removes present jump", func(t *testing.T) {
		t.Parallel()
		exec := &recordingExecutor{}
		if err := RemoveJump(ctx, NewCommandTable(exec, 5), "nat", "PREROUTING", "PORTFWD", discardLogger()); err != nil {
			t.Fatalf("RemoveJump returned error: %v", err)
		}
		if len(exec.calls) != 2 || !containsArg(exec.calls[1].args, "-D") {
			t.Fatalf("expected check then delete, got %+v", exec.calls)
		}
	})

	t.Run("absent jump is a no-op", func(t *testing.T) {
		t.Parallel()
		exec := &recordingExecutor{runErrors: map[string]error{checkKey: fakeExitError{code: 1}}}
		if err := RemoveJump(ctx, NewCommandTable(exec, 5), "nat", "PREROUTING", "PORTFWD", discardLogger()); err != nil {
			t.Fatalf("RemoveJump returned error: %v", err)
		}
		if len(exec.calls) != 1 {
			t.Fatalf("expected only the existence check, got %d commands", len(exec.calls))
		}
	})

	t.Run("check failure propagates", func(t *testing.T) {
		t.Parallel()
		exec := &recordingExecutor{runErrors: map[string]error{checkKey: errors.New("permission denied")}}
		if err := RemoveJump(ctx, NewCommandTable(exec, 5), "nat", "PREROUTING", "PORTFWD", discardLogger()); err == nil {
			t.Fatal("expected error from RemoveJump")
		}
	})
}

func containsArg(args []string, want string) bool {
	for _, arg := range args {
		if arg == want {
			return true
		}
	}
	return false
}
