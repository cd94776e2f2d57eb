package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"text/tabwriter"
)

type row struct {
	Name    string `json:"name" yaml:"name"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

func TestRender(t *testing.T) {
	rows := []row{{"Chat", true}, {"Updater", false}}
	table := func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "NAME\tENABLED")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%t\n", r.Name, r.Enabled)
		}
	}

	tests := []struct {
		format string
		want   string
	}{
		{formatTable, "Updater  false"},
		{"", "Chat     true"},
		{formatJSON, `"name": "Chat"`},
		{formatYAML, "- name: Updater\n  enabled: false"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := render(&buf, tt.format, rows, table); err != nil {
				t.Fatalf("render: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Fatalf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}

	if err := render(&bytes.Buffer{}, "xml", rows, table); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestHumanBytes(t *testing.T) {
	tests := map[uint64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		5 << 30: "5.0 GiB",
	}
	for in, want := range tests {
		if got := humanBytes(in); got != want {
			t.Errorf("humanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
