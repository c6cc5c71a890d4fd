// Package commands implements the CLI commands for pgate.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/projectgate/internal/application"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/config"
	"github.com/jbctechsolutions/projectgate/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config    *config.Config
	Formatter *output.Formatter
	Flags     *GlobalFlags
	Container *application.Container
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex // Protects appCtx for thread-safe access
)

// NewRootCmd creates the root command for the pgate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pgate",
		Short: "projectgate - project lifecycle and sync gateway",
		Long: `pgate runs the projectgate gateway core.

It keeps loaded project workspaces in a versioned cache, gives every
client its own bounded undo/redo history and keeps a local copy of each
project synchronized with a remote store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !needsContainer(cmd) {
				return nil
			}
			return initializeApp()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeApp()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: ~/.projectgate/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewShellCmd())
	rootCmd.AddCommand(NewSyncCmd())
	rootCmd.AddCommand(NewVersionsCmd())

	return rootCmd
}

// needsContainer reports whether cmd runs against the gateway services.
func needsContainer(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "version", "completion":
		return false
	}
	if p := cmd.Parent(); p != nil && p.Name() == "config" {
		return false
	}
	return true
}

// newFormatter builds a formatter from the global output flag.
func newFormatter() *output.Formatter {
	format, err := output.ParseFormat(globalFlags.Output)
	if err != nil {
		format = output.FormatText
	}
	opts := []output.Option{output.WithFormat(format)}
	if format == output.FormatJSON {
		opts = append(opts, output.WithColor(false))
	}
	return output.NewFormatter(opts...)
}

// initializeApp initializes the application context.
func initializeApp() error {
	formatter := newFormatter()

	cfg, err := loadConfig(globalFlags.ConfigFile)
	if err != nil {
		return err
	}

	container, err := application.NewContainer(cfg, globalFlags.Verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	appCtxMu.Lock()
	prev := appCtx
	appCtx = &AppContext{
		Config:    cfg,
		Formatter: formatter,
		Flags:     &globalFlags,
		Container: container,
	}
	appCtxMu.Unlock()

	if prev != nil && prev.Container != nil {
		_ = prev.Container.Close()
	}
	return nil
}

// closeApp releases the container, flushing open projects.
func closeApp() error {
	appCtxMu.Lock()
	ctx := appCtx
	appCtx = nil
	appCtxMu.Unlock()

	if ctx == nil || ctx.Container == nil {
		return nil
	}
	return ctx.Container.Close()
}

// loadConfig loads configuration from the specified file or default location.
func loadConfig(configPath string) (*config.Config, error) {
	loader, err := config.NewLoader("")
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}

	cfg, err := loader.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GetAppContext returns the current application context.
// Returns nil if the app hasn't been initialized.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter.
// Creates a default formatter if app context is not initialized.
func GetFormatter() *output.Formatter {
	if ctx := GetAppContext(); ctx != nil {
		return ctx.Formatter
	}
	return newFormatter()
}

// GetContainer returns the application container.
// Returns nil if the app hasn't been initialized.
func GetContainer() *application.Container {
	if ctx := GetAppContext(); ctx != nil {
		return ctx.Container
	}
	return nil
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context; open projects are flushed before exit.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if cerr := closeApp(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		GetFormatter().Error("%s", err.Error())
		stop()
		os.Exit(1)
	}
}
