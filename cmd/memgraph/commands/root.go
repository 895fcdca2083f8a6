// Package commands contains all CLI commands for memgraph.
//
// Each command is defined in its own file and registered in init().
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JNZader/memgraph/internal/config"
	"github.com/JNZader/memgraph/internal/logger"
	"github.com/JNZader/memgraph/internal/profiler"
)

var (
	// cfgFile holds the path to the config file (from --config flag)
	cfgFile string

	// dataDir overrides data_dir from the config
	dataDir string

	// verbose enables debug logging
	verbose bool

	// quiet suppresses everything but errors
	quiet bool

	// profiling flags
	cpuProfile string
	memProfile string
	pprofAddr  string

	// prof is the running profiler, if any profiling flag was given
	prof *profiler.Profiler

	// cfg is the configuration loaded by PersistentPreRunE
	cfg *config.Config

	// log is the CLI logger; it always writes to stderr
	log *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "memgraph",
	Short: "Decaying-importance memory graph",
	Long: `memgraph stores memories as nodes in a graph, links them with typed
weighted relations and lets unused entries fade away.

Importance and relation strength decay with age; reading a memory keeps it
alive. Cleanup evicts whatever has fallen below the configured thresholds.

Examples:
  # Remember something
  memgraph add "Retries use exponential backoff" --type FACT --importance 0.8

  # Find related memories
  memgraph search "how do retries work"

  # Walk the graph from a memory
  memgraph neighbors <id> --max-distance 2

  # Serve the HTTP API with periodic cleanup
  memgraph serve`,

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if stopErr := stopProfiler(); err == nil {
		err = stopErr
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .memgraph.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides data_dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")

	rootCmd.PersistentFlags().StringVar(&cpuProfile, "cpu-profile", "", "write a CPU profile to file")
	rootCmd.PersistentFlags().StringVar(&memProfile, "mem-profile", "", "write a heap profile to file on exit")
	rootCmd.PersistentFlags().StringVar(&pprofAddr, "pprof-addr", "", "serve pprof on this address (e.g. localhost:6060)")
}

// initializeConfig loads the config from file, environment and flags, and
// builds the logger.
func initializeConfig(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}
	if dataDir != "" {
		loader.GetViper().Set("data_dir", dataDir)
	}

	loaded, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = loaded

	level, _ := logger.ParseLevel(cfg.Log.Level)
	switch {
	case quiet:
		level = logger.LevelError
	case verbose:
		level = logger.LevelDebug
	}
	log = logger.New(level, cmd.ErrOrStderr())

	if used := loader.ConfigFileUsed(); used != "" {
		log.Debug("using config file %s", used)
	}
	return startProfiler()
}

func startProfiler() error {
	if cpuProfile == "" && memProfile == "" && pprofAddr == "" {
		return nil
	}
	p, err := profiler.New(profiler.Config{
		CPUProfile: cpuProfile,
		MemProfile: memProfile,
		HTTPAddr:   pprofAddr,
		Logger:     log,
	})
	if err != nil {
		return err
	}
	prof = p
	log.Debug("profiler started, %s", profiler.Stats())
	return nil
}

// stopProfiler flushes profiles. It runs after the command, whether or not
// the command failed.
func stopProfiler() error {
	if prof == nil {
		return nil
	}
	err := prof.Stop()
	prof = nil
	return err
}
