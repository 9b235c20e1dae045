package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/teamflow/internal/adapters/capability"
	"github.com/hugo-lorenzo-mato/teamflow/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/teamflow/internal/catalog"
	"github.com/hugo-lorenzo-mato/teamflow/internal/config"
	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/events"
	"github.com/hugo-lorenzo-mato/teamflow/internal/logging"
	"github.com/hugo-lorenzo-mato/teamflow/internal/nodeconfig"
	"github.com/hugo-lorenzo-mato/teamflow/internal/service"
	"github.com/hugo-lorenzo-mato/teamflow/internal/service/run"
	"github.com/hugo-lorenzo-mato/teamflow/internal/template"
)

// newViper returns a viper instance with the persistent flags bound, so a
// flag given on the command line wins over env and file values.
func newViper() *viper.Viper {
	v := viper.New()
	// Bind flags to viper (errors are nil when flag exists)
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	return v
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoaderWithViper(newViper()).WithConfigFile(cfgFile).Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the logger described by cfg. Logs go to stderr unless
// log.file is set; the returned func closes that file.
func newLogger(cfg *config.Config) (*logging.Logger, func(), error) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.Log.File != "" {
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}
	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	})
	logger.Sanitizer().AddLiteral(cfg.Capability.Token)
	return logger, closeFn, nil
}

// openStore opens the configured workflow store.
func openStore(cfg *config.Config) (core.WorkflowStore, error) {
	store, err := state.NewStore(state.Options{
		Backend: cfg.State.Backend,
		Path:    cfg.State.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.State.Backend, err)
	}
	return store, nil
}

// newLibrary loads the embedded templates plus templates.dir.
func newLibrary(cfg *config.Config, cat *catalog.Catalog, configs *nodeconfig.Store) (*template.Library, error) {
	lib, err := template.Load(cat, configs, cfg.Templates.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	return lib, nil
}

// engineOptions translates the run section of cfg.
func engineOptions(cfg *config.Config) []run.Option {
	opts := []run.Option{run.WithNodeTimeout(cfg.Run.NodeTimeout)}
	if cfg.Run.MaxAttempts > 1 {
		opts = append(opts, run.WithRetryPolicy(run.NewRetryPolicy(
			run.WithMaxAttempts(cfg.Run.MaxAttempts),
			run.WithBaseDelay(cfg.Run.BaseDelay),
			run.WithMaxDelay(cfg.Run.MaxDelay),
		)))
	}
	return opts
}

// newWorkspace wires catalog, templates, node configuration, capability and
// engine settings from cfg. bus and store may be nil.
func newWorkspace(cfg *config.Config, logger *logging.Logger, bus *events.EventBus, store core.WorkflowStore) (*service.Workspace, error) {
	cat := catalog.Default()
	configs := nodeconfig.NewStore(nodeconfig.WithStrictAgentTypes(cfg.Nodes.StrictAgentTypes))
	lib, err := newLibrary(cfg, cat, configs)
	if err != nil {
		return nil, err
	}

	capab, err := capability.New(capability.Options{
		Mode:       cfg.Capability.Mode,
		BaseURL:    cfg.Capability.BaseURL,
		Token:      cfg.Capability.Token,
		Timeout:    cfg.Capability.Timeout,
		LocalDelay: cfg.Capability.LocalDelay,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating capability: %w", err)
	}

	opts := []service.WorkspaceOption{
		service.WithCatalog(cat),
		service.WithLibrary(lib),
		service.WithConfigStore(configs),
		service.WithLogger(logger),
		service.WithEngineOptions(engineOptions(cfg)...),
	}
	if bus != nil {
		opts = append(opts, service.WithEventBus(bus))
	}
	if store != nil {
		opts = append(opts, service.WithStore(store))
	}
	return service.NewWorkspace(capab, opts...), nil
}
