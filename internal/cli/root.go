package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/DaviLago/MachineLearningRegressionModel/pkg/config"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// env carries the process surroundings so commands can be run in tests.
type env struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
}

func Run() ExitCode {
	return run(os.Args[1:], env{stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv})
}

func run(args []string, e env) ExitCode {
	rootCmd := &cobra.Command{
		Use:           "insurance-model",
		Short:         "Train and query the insurance charges decision tree.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}
	rootCmd.SetArgs(args)
	rootCmd.SetOut(e.stdout)
	rootCmd.SetErr(e.stderr)

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var envFile string
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	rootCmd.AddCommand(
		NewTrainCmd(e).Command(),
		NewPredictCmd(e).Command(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return exitCodeError
	}

	return exitCodeSuccess
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// loadConfig reads the dotenv file, if any, and then the environment. Values
// already set in the environment win over the file.
func loadConfig(cmd *cobra.Command, e env) (config.Config, *slog.Logger, error) {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	envFile, err := cmd.Root().PersistentFlags().GetString("env-file")
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to get env-file flag: %w", err)
	}
	log := newLogger(e.stderr, verbose)

	getenv := e.getenv
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			log.Debug("Loaded env file", "path", envFile, "keys", len(vals))
			getenv = func(k string) string {
				if v := e.getenv(k); v != "" {
					return v
				}
				return vals[k]
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return config.Config{}, nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
		}
	}

	cfg, err := config.FromEnv(getenv)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}
