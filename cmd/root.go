package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toba/linsync/internal/config"
	"github.com/toba/linsync/internal/constants"
	"github.com/toba/linsync/internal/credential"
	"github.com/toba/linsync/internal/linear"
	"github.com/toba/linsync/internal/logging"
	"github.com/toba/linsync/internal/output"
	"github.com/toba/linsync/internal/syncer"
	"github.com/toba/linsync/internal/task"
)

var (
	cfgPath  string
	jsonOut  bool
	logLevel string
	cfg      *config.Config
	log      *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "linsync",
	Short: "Sync a local task list with Linear",
	Long: `linsync keeps a local JSON task list in sync with the issues of a Linear team.

Pull copies issues into local tasks, push creates or updates issues from local
tasks, and the webhook receiver pulls issues as Linear reports changes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initRuntime(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default ~/.config/linsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initRuntime loads configuration and builds the logger.
func initRuntime(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, err = logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	log.WithField("config", cfg.Path()).Debug("configuration loaded")
	return nil
}

// signalContext is canceled on interrupt or termination.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func out(cmd *cobra.Command) *output.Writer {
	return output.New(cmd.OutOrStdout())
}

func openCredentials() (*credential.Store, error) {
	var opts []credential.Option
	if cfg.Credentials.Backend == constants.BackendKeyring {
		ring, err := credential.OpenKeyring(filepath.Dir(cfg.Credentials.Path))
		if err != nil {
			return nil, err
		}
		opts = append(opts, credential.WithKeyring(ring))
	}
	return credential.Open(cfg.Credentials.Path, opts...)
}

func openTasks() (*task.Store, error) {
	return task.Open(cfg.Store.Path, task.WithLogger(log))
}

// newClient builds a Linear client from configuration.
func newClient(token string) *linear.Client {
	return linear.NewClient(token,
		linear.WithEndpoint(cfg.API.Endpoint),
		linear.WithTimeout(cfg.API.Timeout),
		linear.WithRetryConfig(linear.RetryConfig{
			MaxAttempts: cfg.API.MaxAttempts,
			BaseDelay:   cfg.API.BaseDelay,
			MaxDelay:    cfg.API.MaxDelay,
		}),
		linear.WithPacing(linear.PacingConfig{
			Interval:    cfg.API.Interval,
			MaxInterval: cfg.API.MaxInterval,
		}),
		linear.WithLogger(log),
	)
}

// authedClient returns a client for the stored token.
func authedClient(creds *credential.Store) (*linear.Client, error) {
	token, err := creds.Token()
	if err != nil {
		return nil, err
	}
	return newClient(token), nil
}

func newEngine(creds *credential.Store, store syncer.TaskStore) *syncer.Engine {
	return syncer.New(creds, store,
		func(token string) syncer.API { return newClient(token) },
		syncer.WithLogger(log),
	)
}

// errorCode maps an error to a JSON response code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, syncer.ErrNotConfigured),
		errors.Is(err, credential.ErrNoToken),
		errors.Is(err, credential.ErrNoTeam):
		return output.ErrNotConfigured
	case errors.Is(err, task.ErrNotFound), linear.IsNotFound(err):
		return output.ErrNotFound
	case errors.Is(err, task.ErrTitleMissing),
		errors.Is(err, credential.ErrInvalidToken):
		return output.ErrValidation
	case errors.Is(err, syncer.ErrAlreadyLinked):
		return output.ErrConflict
	}
	if _, ok := errors.AsType[*linear.Error](err); ok {
		return output.ErrRemote
	}
	return output.ErrFileError
}

// fail reports err in the selected output mode.
func fail(cmd *cobra.Command, err error) error {
	if jsonOut {
		return out(cmd).ErrorFrom(errorCode(err), err)
	}
	return err
}

func printf(cmd *cobra.Command, format string, a ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, a...)
}
