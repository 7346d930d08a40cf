package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dshills/modelstore/internal/app"
	"github.com/dshills/modelstore/internal/capability"
	"github.com/dshills/modelstore/internal/config"
	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// Global flags
var (
	configFile  string
	envFile     string
	dataDir     string
	storageMode string
	logLevel    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "modelstore",
	Short:         "Local analytical store for data model workspaces",
	Long:          "Stores workspaces, domains, tables and their relationships in an embedded SQL engine, keeps them in sync with model files and serves them over MCP.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd prints build information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ModelStore\n")
		fmt.Fprintf(out, "Version: %s\n", version)
		fmt.Fprintf(out, "Build Time: %s\n", buildTime)
		fmt.Fprintf(out, "Build Mode: %s\n", engine.BuildMode)
		fmt.Fprintf(out, "SQLite Driver: %s\n", engine.DriverName)
		fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a YAML config file")
	flags.StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env when present)")
	flags.StringVar(&dataDir, "data-dir", "", "Override the data directory")
	flags.StringVar(&storageMode, "storage", "", "Override the storage mode (auto, persistent, volatile)")
	flags.StringVar(&logLevel, "log-level", "", "Override the log level")

	rootCmd.AddCommand(versionCmd)
	setupCommands()
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	cfg, err := config.Load(configFile, envFiles...)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if storageMode != "" {
		mode, err := capability.ParseStorageMode(storageMode)
		if err != nil {
			return nil, err
		}
		cfg.StorageMode = mode
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// newLogger builds the logger for cfg. Logs go to stderr; stdout is
// reserved for command output and the MCP protocol.
func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
}

// openApp loads the configuration and opens the store
func openApp(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, log, opts)
	if err != nil {
		return nil, err
	}
	for _, w := range a.Init.Warnings {
		log.Warn(w)
	}
	return a, nil
}

func main() {
	// Commands see a context cancelled on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
