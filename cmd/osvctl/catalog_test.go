package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
)

func TestWriteRecords(t *testing.T) {
	var buf bytes.Buffer
	err := writeRecords(&buf, []core.Record{
		{OsVersion: "22.02", ComponentID: "c1", ImageID: "i1", Environment: "prod"},
		{OsVersion: "22.04", ComponentID: "c2", ImageID: "i2", Environment: "preprod"},
	})
	if err != nil {
		t.Fatalf("writeRecords error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ENVIRONMENT") {
		t.Errorf("header = %q", lines[0])
	}
	if fields := strings.Fields(lines[2]); len(fields) != 4 || fields[0] != "preprod" || fields[3] != "i2" {
		t.Errorf("row = %q", lines[2])
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "plan", "catalog"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	for _, flag := range []string{"force", "env-file", "verbose"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}
