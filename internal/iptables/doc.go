// Package iptables owns every interaction with the nat table. It builds
// DNAT rules as argument vectors, applies them in short-circuit batches,
// parses chain listings into typed RuleRecords for lookup by host port, and
// prepares custom chains and their jumps. Two Table backends exist: the
// iptables binary driven through an Executor, and coreos/go-iptables.
package iptables
