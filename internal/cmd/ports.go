package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/denniswebb/portfwd/internal/api"
	"github.com/denniswebb/portfwd/internal/portmap"
)

// ResolveCmd prints the address a container has on a network.
var ResolveCmd = &cobra.Command{
	Use:   "resolve <container>",
	Short: "Print the IP address of a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		network, _ := cmd.Flags().GetString("network")
		return withManager(func(ctx context.Context, m api.PortManager) error {
			return runResolve(ctx, m, cmd.OutOrStdout(), args[0], network)
		})
	},
}

// AddCmd forwards host ports to a container.
var AddCmd = &cobra.Command{
	Use:   "add <container> <hostPort:containerPort[/proto]>...",
	Short: "Append DNAT rules forwarding host ports to a container",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		network, _ := cmd.Flags().GetString("network")
		return withManager(func(ctx context.Context, m api.PortManager) error {
			return runAdd(ctx, m, cmd.OutOrStdout(), args[0], args[1:], network)
		})
	},
}

// DelCmd removes the DNAT rules of host ports.
var DelCmd = &cobra.Command{
	Use:   "del <hostPort[/proto]>...",
	Short: "Delete the DNAT rule of each host port",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(ctx context.Context, m api.PortManager) error {
			return runDel(ctx, m, cmd.OutOrStdout(), args)
		})
	},
}

// ListCmd prints the DNAT rules in the chain.
var ListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List the DNAT port mappings in the chain",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(ctx context.Context, m api.PortManager) error {
			return runList(ctx, m, cmd.OutOrStdout())
		})
	},
}

func init() {
	ResolveCmd.Flags().String("network", "", "Network to read the address from; defaults to the container's network mode")
	AddCmd.Flags().String("network", "", "Network whose address the rules target; defaults to the container's network mode")
}

func withManager(fn func(ctx context.Context, m api.PortManager) error) error {
	cfg, logger, err := loadSettings()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	manager, err := newManager(cfg, newConnector(cfg), logger, nil)
	if err != nil {
		return err
	}
	return fn(ctx, manager)
}

func runResolve(ctx context.Context, m api.PortManager, w io.Writer, container string, network string) error {
	ip, err := m.ResolveIP(ctx, container, network)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, ip)
	return err
}

func runAdd(ctx context.Context, m api.PortManager, w io.Writer, container string, ports []string, network string) error {
	var opts []portmap.AddOption
	if network != "" {
		opts = append(opts, portmap.OnNetwork(network))
	}

	result, err := m.AddPorts(ctx, container, ports, opts...)
	if err != nil {
		return err
	}
	return writeResult(w, result)
}

func runDel(ctx context.Context, m api.PortManager, w io.Writer, ports []string) error {
	result, err := m.DelPorts(ctx, ports)
	if err != nil {
		if writeErr := writeJSON(w, result); writeErr != nil {
			return writeErr
		}
		return err
	}
	return writeResult(w, result)
}

func runList(ctx context.Context, m api.PortManager, w io.Writer) error {
	mappings, err := m.ListMappings(ctx)
	if err != nil {
		return err
	}
	return writeJSON(w, mappings)
}
