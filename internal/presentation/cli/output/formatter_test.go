package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/domain/syncstate"
)

func newTestFormatter(format Format) (*Formatter, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	return NewFormatter(WithWriter(buf), WithFormat(format), WithColor(false)), buf
}

func TestFormatter_Messages(t *testing.T) {
	tests := []struct {
		name  string
		print func(f *Formatter)
		want  string
	}{
		{"success", func(f *Formatter) { f.Success("saved %s", "p1") }, "✓ saved p1\n"},
		{"error", func(f *Formatter) { f.Error("failed") }, "✗ failed\n"},
		{"warning", func(f *Formatter) { f.Warning("dirty") }, "⚠ dirty\n"},
		{"info", func(f *Formatter) { f.Info("opened") }, "ℹ opened\n"},
		{"item", func(f *Formatter) { f.Item("state", "SYNCED") }, "  state: SYNCED\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, buf := newTestFormatter(FormatText)
			tt.print(f)
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestFormatter_Colorize(t *testing.T) {
	f := NewFormatter(WithWriter(new(bytes.Buffer)), WithColor(true))
	if got := f.Colorize("x", ColorRed); got != "\033[31mx\033[0m" {
		t.Errorf("Colorize() = %q", got)
	}
	f = NewFormatter(WithColor(false))
	if got := f.Colorize("x", ColorRed); got != "x" {
		t.Errorf("Colorize() without color = %q", got)
	}
}

func TestFormatter_Table(t *testing.T) {
	f, buf := newTestFormatter(FormatTable)
	err := f.Table(TableData{
		Headers: []string{"ID", "NAME"},
		Rows:    [][]string{{"n1", "first"}, {"node-two", "b"}},
	})
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}

	want := "ID        NAME\n" +
		"--------  -----\n" +
		"n1        first\n" +
		"node-two  b\n"
	if buf.String() != want {
		t.Errorf("Table() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestFormatter_FormatAuto(t *testing.T) {
	data := map[string]int{"n": 1}
	table := &TableData{Headers: []string{"N"}, Rows: [][]string{{"1"}}}

	f, buf := newTestFormatter(FormatJSON)
	if err := f.FormatAuto(data, table); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"n": 1`) {
		t.Errorf("JSON mode output = %q", buf.String())
	}

	f, buf = newTestFormatter(FormatText)
	if err := f.FormatAuto(data, table); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "N\n") {
		t.Errorf("text mode output = %q", buf.String())
	}
}

func TestFormatter_SyncState(t *testing.T) {
	f, buf := newTestFormatter(FormatText)
	f.SyncState("p1", syncstate.Snapshot{
		State: syncstate.Error,
		Err:   domainerrors.UploadFailed(nil, "remote unavailable"),
	})
	if got := buf.String(); got != "p1: ERROR (UPLOAD_FAILED: remote unavailable)\n" {
		t.Errorf("SyncState() = %q", got)
	}

	f, buf = newTestFormatter(FormatText)
	f.SyncState("p1", syncstate.Snapshot{
		State:   syncstate.Dirty,
		LastErr: domainerrors.LocalSaveFailed(nil, "disk full"),
	})
	if got := buf.String(); got != "p1: DIRTY (last failure LOCAL_SAVE_FAILED: disk full)\n" {
		t.Errorf("SyncState() = %q", got)
	}

	f, buf = newTestFormatter(FormatJSON)
	f.SyncState("p1", syncstate.Snapshot{State: syncstate.Synced})
	if !strings.Contains(buf.String(), `"state": "SYNCED"`) {
		t.Errorf("SyncState() JSON = %q", buf.String())
	}
}

func TestVersionsTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	table := VersionsTable([]ports.VersionInfo{
		{ProjectID: "p1", Label: "1", Size: 2048, CreatedAt: now.Add(-2 * time.Hour)},
	}, now)

	if len(table.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(table.Rows))
	}
	row := table.Rows[0]
	if row[0] != "v1" || row[1] != "2.0 kB" || row[2] != "2 hours ago" {
		t.Errorf("row = %v", row)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{" TABLE ", FormatTable, false},
		{"", FormatText, false},
		{"xml", FormatText, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v", tt.in, got, err)
		}
	}
}
