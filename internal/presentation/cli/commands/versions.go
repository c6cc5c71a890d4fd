package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/projectgate/internal/application/project"
	"github.com/jbctechsolutions/projectgate/internal/presentation/cli/output"
)

// NewVersionsCmd creates the versions command group.
func NewVersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "versions",
		Aliases: []string{"v"},
		Short:   "List or create fixed versions of a project",
	}
	cmd.AddCommand(newVersionsListCmd())
	cmd.AddCommand(newVersionsCreateCmd())
	return cmd
}

func newVersionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list <project>",
		Aliases: []string{"ls"},
		Short:   "List the fixed versions of a project",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := openProject(cmd, args[0])
			if err != nil {
				return err
			}
			versions, err := pm.ListVersions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			formatter := GetFormatter()
			if len(versions) == 0 && formatter.Format() != output.FormatJSON {
				return formatter.Info("No versions of %s", args[0])
			}
			return formatter.FormatAuto(versions, output.VersionsTable(versions, time.Now()))
		},
	}
}

func newVersionsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <project> [label]",
		Short: "Snapshot the current workspace as a fixed version",
		Long: `Snapshot the current workspace of a project as an immutable fixed
version. Without a label the next free number is used.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := openProject(cmd, args[0])
			if err != nil {
				return err
			}
			var label string
			if len(args) == 2 {
				label = args[1]
			}
			info, err := pm.CreateVersion(cmd.Context(), args[0], label)
			if err != nil {
				return err
			}
			formatter := GetFormatter()
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(info)
			}
			return formatter.Success("Created v%s of %s", info.Label, info.ProjectID)
		},
	}
}

// openProject opens projectID unless it is already open.
func openProject(cmd *cobra.Command, projectID string) (*project.Manager, error) {
	container := GetContainer()
	if container == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	pm := container.Projects()
	if pm.IsOpen(projectID) {
		return pm, nil
	}
	if _, err := pm.Open(cmd.Context(), projectID); err != nil {
		return nil, err
	}
	return pm, nil
}
