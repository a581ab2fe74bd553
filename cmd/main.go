// Package main is the entry point for the dialect gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/compresr/dialect-gateway/internal/config"
	"github.com/compresr/dialect-gateway/internal/gateway"
	"github.com/compresr/dialect-gateway/internal/monitoring"
	"github.com/compresr/dialect-gateway/internal/pipeline"
	"github.com/compresr/dialect-gateway/internal/quirks"
	"github.com/compresr/dialect-gateway/internal/store"
	"github.com/compresr/dialect-gateway/internal/upstream"
)

// Version is set at build time via ldflags
var Version = "v0.1.0"

const appName = "dialect-gateway"

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// ~/.config/dialect-gateway/.env first, local .env may add to it
	configEnv := filepath.Join(homeDir, ".config", appName, ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve", "start":
			os.Exit(runGatewayServer(os.Args[2:]))
		case "version", "-v", "--version":
			printVersion()
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}
	// Default: serve with flags only
	os.Exit(runGatewayServer(os.Args[1:]))
}

// resolveServeConfig resolves the config for the serve command.
// Checks: user flag -> filesystem locations -> embedded default.
// Returns raw bytes and source description.
func resolveServeConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	var searchPaths []string
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", appName, "config.yaml"))
	}
	searchPaths = append(searchPaths, "configs/config.yaml")

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	if data, err := getEmbeddedConfig("config"); err == nil {
		return data, "(embedded) config.yaml", nil
	}
	return nil, "", fmt.Errorf("no config file found. Specify -config path")
}

// components are the long-lived pieces behind a running gateway.
type components struct {
	gateway *gateway.Gateway
	traces  store.TraceStore
}

func (c *components) Close() {
	if c.traces != nil {
		_ = c.traces.Close()
	}
}

// buildGateway wires config, store, metrics, pipeline and gateway together.
func buildGateway(cfg *config.Config, logger *monitoring.Logger) *components {
	var traces store.TraceStore
	if cfg.DebugTrace.Enabled {
		traces = store.NewMemoryStore(cfg.DebugTrace.TTL, cfg.DebugTrace.MaxEntries)
	}

	var metrics *monitoring.Metrics
	if cfg.Monitoring.MetricsEnabled {
		metrics = monitoring.NewMetrics(prometheus.NewRegistry())
	}

	p := pipeline.New(pipeline.Deps{
		Config:   cfg,
		Quirks:   quirks.Default(),
		Executor: upstream.NewOpenAICompat(cfg.Providers, nil),
		Traces:   traces,
		Metrics:  metrics,
	})

	gateway.Version = Version
	gw := gateway.New(cfg, gateway.Deps{
		Pipeline: p,
		Traces:   traces,
		Metrics:  metrics,
		Logger:   logger,
	})
	return &components{gateway: gw, traces: traces}
}

// runGatewayServer starts the gateway and blocks until shutdown.
func runGatewayServer(args []string) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args) // ExitOnError handles errors

	configData, configSource, err := resolveServeConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cfg, err := config.LoadFromBytes(configData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configSource, err)
		return 1
	}
	if *debug {
		cfg.Monitoring.LogLevel = "debug"
	}

	logger := monitoring.Global(monitoring.LoggerConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})

	log.Info().
		Str("version", Version).
		Str("config", configSource).
		Int("port", cfg.Server.Port).
		Strs("providers", cfg.Providers.IDs()).
		Strs("quirks", quirks.Default().IDs()).
		Bool("debug_traces", cfg.DebugTrace.Enabled).
		Bool("metrics", cfg.Monitoring.MetricsEnabled).
		Msg("dialect gateway starting")

	c := buildGateway(cfg, logger)
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), gateway.ShutdownTimeout)
		defer cancel()
		if err := c.gateway.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("gateway shutdown error")
		}
	}()

	if err := c.gateway.Start(); err != nil {
		log.Error().Err(err).Msg("gateway error")
		return 1
	}

	log.Info().Msg("dialect gateway stopped")
	return 0
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, Version)
	fmt.Printf("Runtime: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp prints usage information
func printHelp() {
	fmt.Println("dialect-gateway - OpenAI-compatible gateway that normalizes provider dialects")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  dialect-gateway [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve        Start the gateway server (default)")
	fmt.Println("  version      Print version information")
	fmt.Println("  help         Show this help message")
	fmt.Println()
	fmt.Println("Server Options:")
	fmt.Println("  -config FILE   Gateway config (default: ~/.config/dialect-gateway/config.yaml,")
	fmt.Println("                 configs/config.yaml, then the embedded default)")
	fmt.Println("  -debug         Enable debug logging")
	fmt.Println()
	fmt.Println("Request headers:")
	fmt.Println("  X-Provider: <id>               Route to a configured provider")
	fmt.Println("  X-Debug-Trace: summary|full    Record a stage trace (debug_trace.enabled)")
	fmt.Println()
	if names, err := listEmbeddedConfigs(); err == nil {
		fmt.Printf("Embedded configs: %v\n", names)
	}
}
