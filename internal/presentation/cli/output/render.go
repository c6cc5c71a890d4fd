package output

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	"github.com/jbctechsolutions/projectgate/internal/domain/syncstate"
)

// StateColor returns the display color of a sync state.
func StateColor(s syncstate.State) Color {
	switch s {
	case syncstate.Synced:
		return ColorGreen
	case syncstate.Dirty:
		return ColorYellow
	case syncstate.Error:
		return ColorRed
	default:
		return ColorCyan
	}
}

// SyncState prints a sync snapshot.
func (f *Formatter) SyncState(projectID string, snap syncstate.Snapshot) error {
	if f.Format() == FormatJSON {
		return f.JSON(struct {
			Project string             `json:"project"`
			Sync    syncstate.Snapshot `json:"sync"`
		}{projectID, snap})
	}
	line := fmt.Sprintf("%s: %s", projectID, f.Colorize(string(snap.State), StateColor(snap.State)))
	if snap.Err != nil {
		line += " " + f.Dim(fmt.Sprintf("(%s: %s)", snap.Err.Code, snap.Err.Message))
	} else if snap.LastErr != nil {
		line += " " + f.Dim(fmt.Sprintf("(last failure %s: %s)", snap.LastErr.Code, snap.LastErr.Message))
	}
	return f.Println("%s", line)
}

// VersionsTable renders version snapshots with human-readable sizes and ages.
func VersionsTable(versions []ports.VersionInfo, now time.Time) *TableData {
	t := &TableData{Headers: []string{"VERSION", "SIZE", "CREATED"}}
	for _, v := range versions {
		t.Rows = append(t.Rows, []string{
			"v" + v.Label,
			humanize.Bytes(uint64(v.Size)),
			humanize.RelTime(v.CreatedAt, now, "ago", "from now"),
		})
	}
	return t
}
