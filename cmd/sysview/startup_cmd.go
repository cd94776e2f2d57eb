package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sysview/sysview/internal/controller"
	"github.com/sysview/sysview/internal/privilege"
	"github.com/sysview/sysview/internal/startup"
)

var startupOutput string

var startupCmd = &cobra.Command{
	Use:   "startup",
	Short: "Programs launched at logon",
}

var startupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List startup entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		items := a.startup.List(cmd.Context())
		return render(cmd.OutOrStdout(), startupOutput, startup.Views(items), func(tw *tabwriter.Writer) {
			fmt.Fprintln(tw, "NAME\tENABLED\tPUBLISHER\tPATH\tKEY")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", it.Name, it.Enabled, it.Publisher, it.Path, it.Key())
			}
		})
	},
}

func toggleCommand(use, short string, enable bool) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   use + " <key-or-name>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			m := a.startup
			target := joinArgs(args)
			item, ok := startup.Find(m.List(cmd.Context()), target)
			if !ok {
				return fmt.Errorf("no single startup entry matches %q", target)
			}
			if !privilege.CanToggle(item.Locator) {
				log.Warn("this entry is machine-wide and usually needs an elevated prompt", "key", item.Key())
			}
			toggle := m.Toggle
			if force {
				toggle = m.Replace
			}
			if err := toggle(item, enable); err != nil {
				if errors.Is(err, startup.ErrConflict) {
					return fmt.Errorf("%s %s: %w (use --force to replace it)", use, item.Name, err)
				}
				return fmt.Errorf("%s %s: %w", use, item.Name, err)
			}
			a.journal.Record(controller.JournalAction(enable), item.Key(), map[string]any{"name": item.Name, "path": item.Path, "overwrite": force})
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %sd\n", item.Name, use)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an entry already at the destination")
	return cmd
}

func init() {
	startupListCmd.Flags().StringVarP(&startupOutput, "output", "o", formatTable, "output format: table, json or yaml")

	startupCmd.AddCommand(startupListCmd)
	startupCmd.AddCommand(toggleCommand("enable", "Enable a startup entry", true))
	startupCmd.AddCommand(toggleCommand("disable", "Disable a startup entry", false))
}
