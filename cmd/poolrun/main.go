// poolrun connects a pool of WebSocket endpoints from a YAML config and
// streams received messages to the log until interrupted.
// Usage: go run ./cmd/poolrun --config configs/poolrun.example.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mwillis/wspool"
	"github.com/mwillis/wspool/internal/config"
	"github.com/mwillis/wspool/internal/store"
	"github.com/mwillis/wspool/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/poolrun.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "log every message payload")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	runID := uuid.New()
	logger.Info("starting pool",
		"run", runID.String(),
		"endpoints", len(cfg.Endpoints),
		"version", version.String(),
	)

	factories := make([]wspool.TaskFactory, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		handler := &logHandler{
			logger:  logger.With("url", ep.URL),
			verbose: *verbose,
		}
		factories = append(factories, wspool.Factory(
			ep.Spec(handler, cfg.Pool),
			wspool.WithLogger(logger),
		))
	}

	sup := wspool.NewSupervisor(cfg.PoolSettings(), logger)

	// Periodic stats while the pool runs.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sup.Stats()
				logger.Info("pool stats",
					"state", stats.State.String(),
					"connecting", stats.Connecting,
					"open", stats.Open,
					"closed", stats.Closed,
					"failed", stats.Failed,
				)
			}
		}
	}()

	startedAt := time.Now()
	outcomes := sup.Run(ctx, factories)
	finishedAt := time.Now()

	failed := 0
	for _, out := range outcomes {
		if out.Failed() {
			failed++
			logger.Warn("task outcome",
				"url", out.URL,
				"state", out.FinalState.String(),
				"attempts", out.Attempts,
				"messages", out.MessagesReceived,
				"error", out.Err,
			)
			continue
		}
		logger.Info("task outcome",
			"url", out.URL,
			"state", out.FinalState.String(),
			"attempts", out.Attempts,
			"messages", out.MessagesReceived,
		)
	}
	logger.Info("pool finished",
		"tasks", len(outcomes),
		"failed", failed,
		"duration", finishedAt.Sub(startedAt),
	)

	if cfg.Database.Enabled() {
		recordCtx, recordCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer recordCancel()

		st, err := store.Open(recordCtx, cfg.Database.Postgres, logger)
		if err != nil {
			logger.Error("failed to open outcome store", "error", err)
			os.Exit(1)
		}
		defer st.Close()

		run := store.Run{ID: runID, StartedAt: startedAt, FinishedAt: finishedAt}
		if err := st.RecordRun(recordCtx, run, outcomes); err != nil {
			logger.Error("failed to record pool run", "error", err)
			os.Exit(1)
		}
		logger.Info("pool run recorded", "run", runID.String())
	}

	if len(outcomes) > 0 && failed == len(outcomes) {
		os.Exit(1)
	}
}

// logHandler logs received messages for one endpoint.
type logHandler struct {
	logger  *slog.Logger
	verbose bool
	count   atomic.Int64
}

func (h *logHandler) HandleMessage(_ context.Context, msg wspool.Message) error {
	n := h.count.Add(1)
	if h.verbose {
		h.logger.Info("message", "n", n, "payload", string(msg.Data))
		return nil
	}
	h.logger.Debug("message", "n", n, "bytes", len(msg.Data))
	return nil
}
