package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tumorscope/config"
	"tumorscope/logging"
)

// exitError carries a process exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type app struct {
	configPath string
	logLevel   string

	cfg     *config.Config
	logger  *zap.Logger
	cleanup func() error
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tumorscope",
		Short:         "Classify breast tumor measurements as benign or malignant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Flags().Changed("config"))
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $CONFIG_PATH or config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newServeCmd(a),
		newPredictCmd(a),
		newFeaturesCmd(),
		newCheckCmd(a),
	)
	return root
}

func (a *app) init(configRequired bool) error {
	path := config.ResolvePath(a.configPath)
	cfg, err := config.Load(path, configRequired)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, cleanup, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.cleanup = cfg, logger, cleanup
	logger.Debug("config loaded", zap.String("path", path))
	return nil
}

// close flushes the logger and closes the log file. Safe to call more than once.
func (a *app) close() {
	if a.cleanup != nil {
		_ = a.cleanup()
		a.cleanup = nil
	}
}

// execute runs the command line and releases the logger on every path, including
// commands that fail
func execute(args []string, out io.Writer) (*app, error) {
	a := &app{}
	defer a.close()
	root := newRootCmd(a)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	return a, root.Execute()
}

func main() {
	if _, err := execute(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}
