package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dshills/devmatch-mcp/internal/config"
	"github.com/dshills/devmatch-mcp/internal/engine"
	"github.com/dshills/devmatch-mcp/internal/logger"
	"github.com/dshills/devmatch-mcp/internal/metrics"
)

const app = "devmatch"

var (
	// Used for flags.
	cfgFile string

	v = viper.New()

	// Populated by PersistentPreRunE.
	cfg  *config.Config
	zlog *zap.Logger

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "devmatch matches developers to projects with embeddings and a skill graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == versionCmd.Name() {
				return nil
			}
			// A missing .env file is not an error
			_ = godotenv.Load()

			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config %s: %w", cfgFile, err)
				}
			}

			loaded, err := config.Load(v)
			if err != nil {
				return err
			}
			cfg = loaded

			zlog, err = logger.New(cfg.LogJSON, cfg.Debug)
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if zlog != nil {
				_ = zlog.Sync()
			}
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "a config file (yaml, json or toml)")
	flags.BoolP("debug", "d", false, "verbose/debug output")
	flags.BoolP("json", "j", false, "json format for logging")
	flags.String("db-path", config.DefaultDBPath, "SQLite database path")
	flags.String("provider", config.DefaultProvider, "embedding provider: jina, openai, gemini or local")
	flags.String("vector-backend", config.BackendSQLite, "vector search backend: sqlite or pgvector")

	mustBind(config.KeyDebug, "debug")
	mustBind(config.KeyLogJSON, "json")
	mustBind(config.KeyDBPath, "db-path")
	mustBind(config.KeyEmbeddingProvider, "provider")
	mustBind(config.KeyVectorBackend, "vector-backend")

	rootCmd.AddCommand(serveCmd, ingestCmd, matchCmd, teamCmd, embedCmd, versionCmd)
}

func mustBind(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag, err))
	}
}

// openEngine builds an engine from the loaded config
func openEngine(ctx context.Context, rec *metrics.Recorder) (*engine.Engine, error) {
	eng, err := engine.New(ctx, cfg, engine.Options{Logger: zlog, Metrics: rec})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	return eng, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
