package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sysinfoOutput string

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Show a system snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.system.Collect(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), sysinfoOutput, snap, func(tw *tabwriter.Writer) {
			fmt.Fprintf(tw, "Hostname\t%s\n", snap.Hostname)
			fmt.Fprintf(tw, "User\t%s\n", snap.UserName)
			fmt.Fprintf(tw, "OS\t%s %s (build %s)\n", snap.OS.Platform, snap.OS.Version, snap.OS.Build)
			fmt.Fprintf(tw, "Architecture\t%s\n", snap.OS.Architecture)
			fmt.Fprintf(tw, "CPU\t%s (%d cores, %d threads) %.1f%%\n", snap.CPU.Model, snap.CPU.Cores, snap.CPU.Threads, snap.CPU.UsagePercent)
			fmt.Fprintf(tw, "Memory\t%s / %s (%.1f%%)\n", humanBytes(snap.Memory.UsedBytes), humanBytes(snap.Memory.TotalBytes), snap.Memory.UsedPercent)
			for _, v := range snap.Volumes {
				fmt.Fprintf(tw, "Volume %s\t%s free of %s\n", v.Mountpoint, humanBytes(v.FreeBytes), humanBytes(v.TotalBytes))
			}
			for _, d := range snap.PhysicalDisks {
				fmt.Fprintf(tw, "Disk\t%s %s\n", d.Model, humanBytes(d.SizeBytes))
			}
			if len(snap.GPUs) > 0 {
				fmt.Fprintf(tw, "GPU\t%s\n", strings.Join(snap.GPUs, ", "))
			}
			if !snap.BootTime.IsZero() {
				fmt.Fprintf(tw, "Boot time\t%s\n", snap.BootTime.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(tw, "Uptime\t%s\n", snap.Uptime())
		})
	},
}

func init() {
	sysinfoCmd.Flags().StringVarP(&sysinfoOutput, "output", "o", formatTable, "output format: table, json or yaml")
}
