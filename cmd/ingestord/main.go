package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/23skdu/ingestord/internal/config"
	"github.com/23skdu/ingestord/internal/logging"
	"github.com/23skdu/ingestord/internal/orchestrator"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	port        int
	metricsAddr string
	partitions  int
	rateLimit   int
	workers     int
	dataDir     string
	sink        string
	logFormat   string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:     "ingestord",
	Short:   "High-throughput metric ingestion service",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ingestord %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	},
}

func init() {
	_ = godotenv.Load()

	def := config.DefaultConfig()
	rootCmd.Flags().IntVar(&port, "port", def.Port, "port to accept ingestion HTTP traffic on")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", def.MetricsAddr, "address for the Prometheus scrape and health endpoints")
	rootCmd.Flags().IntVar(&partitions, "partitions", def.Partitions, "number of log partitions")
	rootCmd.Flags().IntVar(&rateLimit, "rate-limit", def.RateLimit, "max admitted requests per client per second")
	rootCmd.Flags().IntVar(&workers, "workers", def.WorkerCount, "worker pool size")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", def.DataDir, "base directory for the local partitioned log")
	rootCmd.Flags().StringVar(&sink, "sink", string(def.Sink), "log sink: local or s3")
	rootCmd.Flags().StringVar(&logFormat, "log-format", def.LogFormat, "log output format: json, console, or text")
	rootCmd.Flags().StringVar(&logLevel, "log-level", def.LogLevel, "log level: debug, info, warn, or error")

	rootCmd.AddCommand(versionCmd)
}

func run(cmd *cobra.Command) error {
	// envconfig applies its "default" tag whenever the corresponding
	// INGESTORD_* variable is unset, even over a pre-populated field, so
	// it must run before flags are layered on top rather than after.
	var cfg config.Config
	if err := envconfig.Process("INGESTORD", &cfg); err != nil {
		return fmt.Errorf("processing environment config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if flags.Changed("partitions") {
		cfg.Partitions = partitions
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit = rateLimit
	}
	if flags.Changed("workers") {
		cfg.WorkerCount = workers
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("sink") {
		cfg.Sink = config.SinkKind(sink)
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	orch, err := orchestrator.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- orch.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("orchestrator exited: %w", err)
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		orch.Stop()
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
