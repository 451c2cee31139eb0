// healerd is the playground orchestration service: it accepts code
// submissions, runs them through the Healer (detect + fix) and Navigator
// (verify) stages against the Gemini API, and streams live progress to
// connected clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/UtkarsHMer05/accessibilityos/internal/config"
	"github.com/UtkarsHMer05/accessibilityos/internal/gateway"
	"github.com/UtkarsHMer05/accessibilityos/internal/gemini"
	"github.com/UtkarsHMer05/accessibilityos/internal/ledger"
	"github.com/UtkarsHMer05/accessibilityos/internal/pipeline"
	"github.com/UtkarsHMer05/accessibilityos/internal/scanner"
	"github.com/UtkarsHMer05/accessibilityos/internal/store"
	"github.com/UtkarsHMer05/accessibilityos/internal/stream"
	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

var (
	verbose    bool
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "healerd",
	Short: "AccessibilityOS playground orchestration service",
	Long: `healerd runs submitted code through two cooperating stages:
the Healer detects and fixes accessibility issues, the Navigator generates
and runs verification tests against the fixed output. Progress streams to
clients as server-sent events while the stages make slow, rate-limited
calls to the Gemini API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "healerd.yaml", "config file path")
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := store.New(logger)
	go sessions.RunJanitor(ctx, cfg.Store.EvictAfter.Std(), cfg.Store.SweepInterval.Std())

	var reasoner types.Reasoner
	local := scanner.NewLocal()
	var detector types.Detector = local

	if cfg.LLM.APIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout.Std())
		if err != nil {
			return fmt.Errorf("failed to initialize reasoner: %w", err)
		}
		reasoner = client
		detector = scanner.NewHybrid(local, reasoner, pipeline.ParseAIFindings)
	} else {
		logger.Warn("GEMINI_API_KEY missing; AI fixes disabled, deterministic fallbacks only")
		reasoner = unavailableReasoner{}
	}

	var ledg types.Ledger = ledger.Nop{}
	if cfg.Ledger.Enabled {
		sqlLedger, err := ledger.Open(cfg.Ledger.Path, logger)
		if err != nil {
			// Best-effort collaborator: run without history rather than
			// refusing to start.
			logger.Warn("Ledger unavailable", zap.Error(err))
		} else {
			ledg = sqlLedger
			defer sqlLedger.Close()
		}
	}

	caller := gemini.NewCaller(cfg.Pipeline.MaxRetries, cfg.Pipeline.RetryBaseDelay.Std(), logger)
	runner := pipeline.New(sessions, detector, reasoner, caller, ledg, logger, pipeline.Config{
		InterTestDelay:     cfg.Pipeline.InterTestDelay.Std(),
		StepDelay:          cfg.Pipeline.StepDelay.Std(),
		MaxRerunIterations: cfg.Pipeline.MaxRerunIterations,
	})
	streamer := stream.New(sessions, logger, cfg.Stream.PollInterval.Std(), cfg.Stream.MaxPolls)
	gw := gateway.New(sessions, runner, streamer, logger, gateway.Config{
		MaxInputSize:      cfg.Server.MaxInputSize,
		RunTimeout:        cfg.Pipeline.RunTimeout.Std(),
		MaxConcurrentRuns: cfg.Pipeline.MaxConcurrentRuns,
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: gw.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("healerd listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// unavailableReasoner stands in when no API key is configured; every call
// fails fast so the pipeline takes its deterministic fallback paths.
type unavailableReasoner struct{}

func (unavailableReasoner) Generate(context.Context, string) (string, error) {
	return "", errors.New("reasoner unavailable: no API key configured")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
