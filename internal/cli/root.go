// Package cli implements the cheerfeed command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tOgg1/cheerfeed/internal/app"
	"github.com/tOgg1/cheerfeed/internal/config"
	"github.com/tOgg1/cheerfeed/internal/logging"
	"github.com/tOgg1/cheerfeed/internal/timeline"
)

// Exit codes.
const (
	ExitCodeFailure = 1
	ExitCodeUsage   = 2
	ExitCodeDenied  = 3
)

// ExitError carries a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// Exitf builds an ExitError from a format string.
func Exitf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// exitFor maps store errors onto exit codes.
func exitFor(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	switch {
	case errors.Is(err, timeline.ErrQuotaDenied):
		return &ExitError{Code: ExitCodeDenied, Err: err}
	case errors.Is(err, timeline.ErrEmptyText):
		return &ExitError{Code: ExitCodeUsage, Err: err}
	default:
		return &ExitError{Code: ExitCodeFailure, Err: err}
	}
}

// runtime is the state shared by every subcommand.
type runtime struct {
	configFile  string
	logLevel    string
	logFormat   string
	jsonOut     bool
	yamlOut     bool
	contextFile string

	cfg     *config.Config
	loader  *config.Loader
	logFile io.Closer

	// newApp is replaced in tests.
	newApp func(ctx context.Context, cfg *config.Config) (*app.App, error)
}

// Execute runs the CLI. Interrupts cancel the command context.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := newRuntime()
	defer rt.close()
	return rt.rootCmd(version).ExecuteContext(ctx)
}

func newRuntime() *runtime {
	return &runtime{
		newApp: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.New(ctx, cfg, app.Options{})
		},
	}
}

func newRootCmd(version string) *cobra.Command {
	return newRuntime().rootCmd(version)
}

func (rt *runtime) rootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cheerfeed",
		Short: "A simulated feed where every post gets a warm reception",
		Long: `cheerfeed keeps a local timeline of your posts. Each post gets a round of
generated replies that appear one by one, and sometimes a quote-repost.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.init()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&rt.configFile, "config", "", "config file (default is $HOME/.config/cheerfeed/config.yaml)")
	flags.StringVar(&rt.logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&rt.logFormat, "log-format", "", "override logging format (json, console)")
	flags.BoolVar(&rt.jsonOut, "json", false, "output in JSON format")
	flags.BoolVar(&rt.yamlOut, "yaml", false, "output in YAML format")
	flags.StringVar(&rt.contextFile, "context-file", "", "where the last used post and quote ids are remembered")
	_ = flags.MarkHidden("context-file")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")

	cmd.AddCommand(
		rt.newServeCmd(),
		rt.newPostCmd(),
		rt.newMoreCmd(),
		rt.newReplyCmd(),
		rt.newQuoteReplyCmd(),
		rt.newTimelineCmd(),
		rt.newQuotaCmd(),
		rt.newNameCmd(),
		rt.newEventsCmd(),
		rt.newConfigCmd(),
		rt.newContextCmd(),
	)
	return cmd
}

// init loads configuration and sets up logging.
func (rt *runtime) init() error {
	rt.loader = config.NewLoader()
	if rt.configFile != "" {
		rt.loader.SetConfigFile(rt.configFile)
	}
	cfg, err := rt.loader.Load()
	if err != nil {
		return Exitf(ExitCodeUsage, "load config: %v", err)
	}
	if rt.logLevel != "" {
		cfg.Logging.Level = rt.logLevel
	}
	if rt.logFormat != "" {
		cfg.Logging.Format = rt.logFormat
	}
	rt.cfg = cfg

	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       os.Stderr,
		EnableCaller: cfg.Logging.EnableCaller,
	}
	if cfg.Logging.File != "" {
		f, err := logging.OpenFile(cfg.Logging.File)
		if err != nil {
			return Exitf(ExitCodeFailure, "%v", err)
		}
		rt.logFile = f
		logCfg.Output = f
	}
	logging.Init(logCfg)

	if err := cfg.EnsureDirectories(); err != nil {
		log := logging.Component("cli")
		log.Warn().Err(err).Msg("failed to create directories")
	}
	if used := rt.loader.ConfigFileUsed(); used != "" {
		log := logging.Component("cli")
		log.Debug().Str("config_file", used).Msg("loaded config file")
	}
	return nil
}

func (rt *runtime) close() error {
	if rt.logFile != nil {
		err := rt.logFile.Close()
		rt.logFile = nil
		return err
	}
	return nil
}

// withApp opens the services for the duration of fn.
func (rt *runtime) withApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := rt.newApp(ctx, rt.cfg)
	if err != nil {
		return Exitf(ExitCodeFailure, "start: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log := logging.Component("cli")
			log.Warn().Err(err).Msg("shutdown failed")
		}
	}()
	return exitFor(fn(a))
}

func (rt *runtime) contextStore() *config.ContextStore {
	return config.NewContextStore(rt.contextFile)
}

// remember updates the CLI context; failures only warn.
func (rt *runtime) remember(fn func(*config.Context)) {
	if err := rt.contextStore().Update(fn); err != nil {
		log := logging.Component("cli")
		log.Warn().Err(err).Msg("failed to save context")
	}
}
