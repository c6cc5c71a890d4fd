package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/projectgate/internal/domain/syncstate"
)

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <project>",
		Short: "Save a project locally and upload it",
		Long: `Run one sync of a project: save it to local storage, then upload it to
the configured remote without the automatic size threshold.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args[0])
		},
	}
}

func runSync(cmd *cobra.Command, projectID string) error {
	pm, err := openProject(cmd, projectID)
	if err != nil {
		return err
	}
	formatter := GetFormatter()

	syncErr := pm.SyncNow(cmd.Context(), projectID)
	snap, err := pm.SyncState(projectID)
	if err != nil {
		return err
	}
	if err := formatter.SyncState(projectID, snap); err != nil {
		return err
	}
	if syncErr != nil || snap.State == syncstate.Error {
		return fmt.Errorf("sync of %q failed", projectID)
	}
	return nil
}
