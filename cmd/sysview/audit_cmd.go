package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sysview/sysview/internal/audit"
)

var (
	auditFile   string
	auditOutput string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the journal of changes sysview made",
}

func journalPath() (string, error) {
	if auditFile != "" {
		return auditFile, nil
	}
	cfg, closer, err := loadConfig()
	if err != nil {
		return "", err
	}
	closer.Close()
	return cfg.AuditPath(), nil
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the journal's hash chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := journalPath()
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer f.Close()

		n, err := audit.Verify(f)
		if err != nil {
			return fmt.Errorf("%s: %d valid entries before failure: %w", path, n, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, chain intact\n", path, n)
		return nil
	},
}

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the journal entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := journalPath()
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer f.Close()

		entries := []audit.Entry{}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			var e audit.Entry
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				continue
			}
			entries = append(entries, e)
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		return render(cmd.OutOrStdout(), auditOutput, entries, func(tw *tabwriter.Writer) {
			fmt.Fprintln(tw, "TIME\tACTION\tTARGET")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Timestamp, e.Action, e.Target)
			}
		})
	},
}

func init() {
	auditCmd.PersistentFlags().StringVar(&auditFile, "file", "", "journal file (default is audit_file from the config)")
	auditShowCmd.Flags().StringVarP(&auditOutput, "output", "o", formatTable, "output format: table, json or yaml")

	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditShowCmd)
}
