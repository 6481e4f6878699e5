// Package runtime resolves a container's address on one of its networks.
// Connections to the container runtime are opened per lookup through a
// Connector and closed before the lookup returns.
package runtime
