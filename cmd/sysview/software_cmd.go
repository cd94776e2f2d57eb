package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sysview/sysview/internal/audit"
	"github.com/sysview/sysview/internal/software"
)

var (
	softwareFilter string
	softwareOutput string
)

var softwareCmd = &cobra.Command{
	Use:   "software",
	Short: "Installed software inventory",
}

var softwareListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed software",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		records := software.Filter(a.software.List(cmd.Context()), softwareFilter)
		if records == nil {
			records = []software.Record{}
		}
		return render(cmd.OutOrStdout(), softwareOutput, records, func(tw *tabwriter.Writer) {
			fmt.Fprintln(tw, "NAME\tVERSION\tPUBLISHER\tINSTALLED\tSOURCE")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Version, r.Publisher, r.FormattedInstallDate(), r.Source)
			}
		})
	},
}

var softwareUninstallCmd = &cobra.Command{
	Use:   "uninstall <name>",
	Short: "Launch the uninstaller of an application",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := lookupSoftware(cmd, a, joinArgs(args))
		if err != nil {
			return err
		}
		if !rec.CanUninstall() {
			return fmt.Errorf("%s has no uninstall command", rec.Name)
		}
		if !a.uninstaller.Uninstall(rec.UninstallString) {
			return fmt.Errorf("failed to launch the uninstaller for %s", rec.Name)
		}
		a.journal.Record(audit.ActionUninstallLaunched, rec.Name, map[string]any{"command": rec.UninstallString})
		fmt.Fprintf(cmd.OutOrStdout(), "Uninstaller for %s launched.\n", rec.Name)
		return nil
	},
}

var softwareOpenCmd = &cobra.Command{
	Use:   "open <name>",
	Short: "Open the install location of an application",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := lookupSoftware(cmd, a, joinArgs(args))
		if err != nil {
			return err
		}
		if rec.InstallLocation == "" {
			return fmt.Errorf("%s has no install location", rec.Name)
		}
		if !a.uninstaller.OpenInstallLocation(rec.InstallLocation) {
			return fmt.Errorf("failed to open %s", rec.InstallLocation)
		}
		a.journal.Record(audit.ActionLocationOpened, rec.Name, map[string]any{"path": rec.InstallLocation})
		return nil
	},
}

func lookupSoftware(cmd *cobra.Command, a *app, name string) (software.Record, error) {
	rec, ok := software.Find(a.software.List(cmd.Context()), name)
	if !ok {
		return software.Record{}, fmt.Errorf("no installed software named %q", name)
	}
	return rec, nil
}

func init() {
	softwareListCmd.Flags().StringVar(&softwareFilter, "filter", "", "only show entries whose name, publisher or version contains this text")
	softwareListCmd.Flags().StringVarP(&softwareOutput, "output", "o", formatTable, "output format: table, json or yaml")

	softwareCmd.AddCommand(softwareListCmd)
	softwareCmd.AddCommand(softwareUninstallCmd)
	softwareCmd.AddCommand(softwareOpenCmd)
}
