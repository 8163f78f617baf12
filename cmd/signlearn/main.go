// Command signlearn serves the sign practice UI, forwards landmark windows
// to the inference service and records what comes back.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/signlearn/internal/config"
	"github.com/ayusman/signlearn/internal/logging"
	"github.com/ayusman/signlearn/internal/predict"
	"github.com/ayusman/signlearn/internal/store"
	"github.com/ayusman/signlearn/internal/store/pgstore"
)

// cli carries what PersistentPreRunE resolved for the subcommands.
type cli struct {
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "signlearn",
		Short:         "Sign language practice with landmark windows and remote prediction",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("db", "", "SQLite database path")
	flags.String("database-url", "", "PostgreSQL URL; overrides --db")
	flags.String("inference-url", "", "inference predict endpoint")
	flags.Duration("inference-timeout", 0, "timeout for one prediction exchange")
	flags.Int("window", 0, "frames per prediction window")

	root.AddCommand(
		newServeCmd(c),
		newReplayCmd(c),
		newSessionsCmd(c),
	)
	return root
}

// load reads the environment and lets explicitly set flags override it.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL, _ = flags.GetString("database-url")
	}
	if flags.Changed("inference-url") {
		cfg.InferenceURL, _ = flags.GetString("inference-url")
	}
	if flags.Changed("inference-timeout") {
		cfg.InferenceTimeout, _ = flags.GetDuration("inference-timeout")
	}
	if flags.Changed("window") {
		cfg.WindowSize, _ = flags.GetInt("window")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logging.New(os.Stderr, level)
	slog.SetDefault(c.logger)
	return nil
}

func (c *cli) predictor() *predict.Client {
	return predict.NewClient(predict.Config{
		Endpoint:   c.cfg.InferenceURL,
		Timeout:    c.cfg.InferenceTimeout,
		WindowSize: c.cfg.WindowSize,
		Logger:     c.logger,
	})
}

// openBackend opens PostgreSQL when a database URL is configured and the
// local SQLite file otherwise.
func (c *cli) openBackend(ctx context.Context) (store.Backend, error) {
	if c.cfg.DatabaseURL != "" {
		st, err := pgstore.New(ctx, c.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		c.logger.Info("using postgres store")
		return st, nil
	}

	if dir := filepath.Dir(c.cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.New(c.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	c.logger.Info("using sqlite store", "path", st.Path())
	return st, nil
}

// findWebDir returns the configured static directory when it exists, then
// searches "web/static", "../web/static" and ~/.signlearn/web/static.
// Returns an empty string if none is found.
func findWebDir(configured string) string {
	candidates := []string{configured, "web/static", "../web/static", "../../web/static"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".signlearn", "web", "static"))
	}

	for _, p := range candidates {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
