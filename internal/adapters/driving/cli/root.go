// Package cli implements the stitch command line.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/stitch/internal/adapters/driven/config/file"
	"github.com/custodia-labs/stitch/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driving"
	"github.com/custodia-labs/stitch/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// annotationServices marks commands that need the pipeline wired up.
const annotationServices = "services"

// Runner is a long-running background process such as the submission worker.
type Runner interface {
	Run(ctx context.Context) error
}

// Services are the wired pipeline handed to commands.
type Services struct {
	Config       domain.Config
	Query        driving.QueryService
	Dispatcher   driving.Dispatcher
	Orchestrator driving.Orchestrator
	Finalizer    driving.SessionFinalizer
	Callbacks    driving.CallbackIngestor
	Worker       Runner

	// Objects serves signed object URLs when the filesystem store is used.
	Objects httpapi.ObjectServer
}

// BootstrapFunc builds the pipeline from configuration. The returned
// function releases its resources.
type BootstrapFunc func(ctx context.Context, cfg domain.Config) (*Services, func() error, error)

var (
	bootstrap BootstrapFunc
	services  *Services
	cleanup   func() error

	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "stitch",
	Short: "Chunked audio transcription stitching service",
	Long: `stitch accepts audio chunks of a recording session, transcribes them
through a remote service, merges the overlapping transcripts into one
deduplicated stream, cuts it into segments for summarization and hands the
consolidated result to a finalizer.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.stitch/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetBootstrap registers the function that wires the pipeline.
func SetBootstrap(fn BootstrapFunc) {
	bootstrap = fn
}

// SetVersion sets the reported version.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command and releases the pipeline afterwards.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	return errors.Join(err, teardown())
}

// loadConfig reads the configuration selected by --config.
func loadConfig() (domain.Config, string, error) {
	store, err := file.NewConfigStore(configPath)
	if err != nil {
		return domain.Config{}, "", err
	}
	cfg, err := store.Load()
	if err != nil {
		return cfg, store.Path(), fmt.Errorf("loading config: %w", err)
	}
	return cfg, store.Path(), nil
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if cmd.Annotations[annotationServices] != "true" || services != nil {
		return nil
	}
	if bootstrap == nil {
		return errors.New("pipeline not configured")
	}

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Debug("config loaded from %s", path)

	svc, release, err := bootstrap(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	services = svc
	cleanup = release
	return nil
}

func teardown() error {
	if cleanup == nil {
		return nil
	}
	err := cleanup()
	cleanup = nil
	services = nil
	return err
}

// withServices marks cmd as requiring the wired pipeline.
func withServices(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationServices] = "true"
	return cmd
}
