// Package cli implements the sentimenta command line.
package cli

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sentimenta/dashclient"
	"github.com/sentimenta/dashclient/internal/logging"
)

// ErrNotSignedIn is returned when a command needs a valid session and the
// gate redirected.
var ErrNotSignedIn = errors.New("not signed in: run `sentimenta session set` first")

// Option customises the root command.
type Option func(*app)

// WithOutput redirects standard and error output.
func WithOutput(out, errOut io.Writer) Option {
	return func(a *app) {
		a.out = out
		a.errOut = errOut
	}
}

// WithBuilder lets callers adjust the client builder before Build.
func WithBuilder(fn func(*dashclient.Builder)) Option {
	return func(a *app) {
		a.configure = fn
	}
}

// WithEnvFiles replaces the .env files loaded at startup.
func WithEnvFiles(paths ...string) Option {
	return func(a *app) {
		a.envFiles = paths
	}
}

type app struct {
	out       io.Writer
	errOut    io.Writer
	envFiles  []string
	configure func(*dashclient.Builder)

	cfgFile string
	verbose bool
	noColor bool

	cfg     dashclient.Config
	logger  *zap.Logger
	printer *printer
	client  *dashclient.Client
}

// NewRootCommand returns the sentimenta command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{
		out:      os.Stdout,
		errOut:   os.Stderr,
		envFiles: []string{".env"},
	}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "sentimenta",
		Short: "Sentimenta dashboard client",
		Long: `sentimenta talks to the Sentimenta backend from the terminal.

It keeps your session locally, checks it against the backend before showing
anything protected, and follows pipeline runs live over the event stream.

Example usage:
  sentimenta session set --access $TOKEN --refresh $REFRESH
  sentimenta whoami
  sentimenta runs
  sentimenta watch 3f2a...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.config/sentimenta/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newSessionCommand(a),
		newWhoamiCommand(a),
		newRunsCommand(a),
		newWatchCommand(a),
		newSyncCommand(a),
	)
	return root
}

// Execute runs the command tree with os.Args and reports a failure on
// stderr.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		newPrinter(os.Stdout, os.Stderr, resolveColors(false)).Error("%v", err)
		return 1
	}
	return 0
}

func (a *app) init() error {
	if err := loadEnvFiles(a.envFiles...); err != nil {
		return err
	}
	cfg, err := loadConfig(viper.New(), a.cfgFile)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Console: logging.IsTerminal(os.Stderr),
		Output:  a.errOut,
	})
	if err != nil {
		return err
	}
	a.logger = logger
	a.printer = newPrinter(a.out, a.errOut, resolveColors(a.noColor))

	a.logger.Debug("configuration loaded",
		zap.String("api", cfg.API.BaseURL),
		zap.String("session_backend", string(cfg.Session.Backend)),
		zap.String("identity", string(cfg.Identity.Provider)),
	)
	return nil
}

// dashboard builds the client on first use.
func (a *app) dashboard() (*dashclient.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	b := dashclient.New().WithConfig(a.cfg).WithLogger(a.logger)
	if a.cfg.Audit.Enabled {
		b.WithAuditSink(dashclient.NewZapSink(a.logger))
	}
	if a.configure != nil {
		a.configure(b)
	}
	c, err := b.Build()
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// run wraps a command body so the client is released whether or not the
// body fails.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := a.close(); err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args)
	}
}

func (a *app) close() error {
	var err error
	if a.client != nil {
		err = a.client.Close()
		a.client = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}
