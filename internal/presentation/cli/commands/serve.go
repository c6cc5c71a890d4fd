package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/projectgate/internal/adapters/workspace/memory"
	"github.com/jbctechsolutions/projectgate/internal/presentation/api"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve [project...]",
		Short: "Run the admin HTTP API",
		Long: `Run the gateway with its admin HTTP API until interrupted.

Projects named as arguments are opened at startup with automatic sync
enabled. When storage.watch_dir is configured, project files dropped
there are imported into open projects.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, listen, args)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default: server.address)")

	return cmd
}

func runServe(cmd *cobra.Command, listen string, projects []string) error {
	ctx := cmd.Context()
	container := GetContainer()
	if container == nil {
		return fmt.Errorf("application not initialized")
	}
	cfg := container.Config()
	formatter := GetFormatter()

	if listen == "" {
		listen = cfg.Server.Address
	}

	pm := container.Projects()
	for _, id := range projects {
		if _, err := pm.Open(ctx, id); err != nil {
			return fmt.Errorf("could not open project %q: %w", id, err)
		}
		if _, err := pm.EnableSync(ctx, id); err != nil {
			return err
		}
	}

	if err := container.StartWatching(ctx); err != nil {
		formatter.Warning("Could not watch %s: %v", cfg.Storage.WatchDir, err)
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}
	server := api.New(api.Config{
		Listen:          listen,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     metricsPath,
	}, pm, memory.Codec{}, container.Gatherer(), container.Logger())

	formatter.Info("Serving on http://%s", listen)
	return server.Start(ctx)
}
