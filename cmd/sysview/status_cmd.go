package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sysview/sysview/internal/client"
)

var (
	statusAddr   string
	statusOutput string
)

// serverClient targets --addr, or the configured listen address.
func serverClient() (*client.Client, func(), error) {
	cfg, closer, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	addr := statusAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	return client.New(addr, client.DefaultRetryConfig()), func() { closer.Close() }, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of a running sysview server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := serverClient()
		if err != nil {
			return err
		}
		defer done()

		ver, err := c.Version(cmd.Context())
		if err != nil {
			return err
		}
		h, err := c.Health(cmd.Context())
		if err != nil {
			return err
		}

		out := map[string]any{"version": ver, "health": h}
		return render(cmd.OutOrStdout(), statusOutput, out, func(tw *tabwriter.Writer) {
			fmt.Fprintf(tw, "Version\t%s\n", ver.Version)
			fmt.Fprintf(tw, "Elevated\t%t\n", ver.Elevated)
			fmt.Fprintf(tw, "Clients\t%d\n", ver.Clients)
			fmt.Fprintf(tw, "Workers\t%d (%d running, %d queued, %d rejected)\n", ver.Pool.Workers, ver.Pool.Running, ver.Pool.Queued, ver.Pool.Rejected)
			fmt.Fprintf(tw, "Health\t%s\n", h.Status)
			names := make([]string, 0, len(h.Pipelines))
			for name := range h.Pipelines {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(tw, "  %s\t%s\n", name, h.Pipelines[name])
			}
			for _, p := range h.Problems {
				fmt.Fprintf(tw, "Problem\t%s: %s %s\n", p.Name, p.Status, p.Message)
			}
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Ask a running sysview server to re-enumerate software and startup entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := serverClient()
		if err != nil {
			return err
		}
		defer done()

		counts, err := c.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d software entries, %d startup entries\n", counts.Software, counts.Startup)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, refreshCmd} {
		c.Flags().StringVar(&statusAddr, "addr", "", "server address (default is listen_addr from the config)")
	}
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", formatTable, "output format: table, json or yaml")
}
