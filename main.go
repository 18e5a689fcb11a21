package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ordersync/internal/api"
	"ordersync/internal/cleanup"
	"ordersync/internal/config"
	"ordersync/internal/lifecycle"
	"ordersync/internal/order"
	"ordersync/internal/pager"
	"ordersync/internal/push"
	"ordersync/internal/reporter"
	"ordersync/internal/session"
	"ordersync/internal/utils"
)

var (
	configPath    = flag.String("config", "configs/config_dev.yaml", "Path to configuration file")
	logLevel      = flag.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR); overrides the config file")
	collectCash   = flag.Bool("cash-collected", false, "Answer yes when a COD delivery asks whether cash was collected")
	reconcileFile = flag.String("reconcile", "", "File of order IDs whose COD payment should be settled at startup")
	snapshotFile  = flag.String("snapshot", "", "Write the last session snapshot to this JSON file on exit")
	interactive   = flag.Bool("interactive", true, "Read commands from stdin")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	level := cfg.Log.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger := utils.NewLoggerWithWriter(utils.ParseLogLevel(level), os.Stderr)
	defer logger.Close()

	actor := cfg.Session.Actor()
	logger.Info("Starting order sync agent", map[string]interface{}{
		"role":      actor.Role,
		"actor":     actor.ID,
		"api":       cfg.API.BaseURL,
		"transport": cfg.Push.Transport,
	})

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
		cancel()
	}()

	if err := run(ctx, cancel, cfg, logger); err != nil {
		logger.Error("Agent failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	logger.Info("Agent stopped", nil)
}

func run(ctx context.Context, stop context.CancelFunc, cfg *config.Config, logger *utils.Logger) error {
	startTime := time.Now()
	metrics := utils.NewMetrics()
	actor := cfg.Session.Actor()

	// Phase 1: persistence client
	logger.Info("Phase 1: Initializing API client", map[string]interface{}{
		"baseUrl": cfg.API.BaseURL,
		"timeout": cfg.API.Timeout.String(),
	})
	client := api.NewClient(cfg, logger, metrics)

	// Phase 2: push channel
	logger.Info("Phase 2: Initializing push channel", map[string]interface{}{
		"transport": cfg.Push.Transport,
	})
	source, err := push.NewSource(cfg.Push)
	if err != nil {
		return fmt.Errorf("push channel setup failed: %w", err)
	}
	channel := push.NewChannel(source, actor, push.ChannelOptions{
		Buffer:           cfg.Push.Buffer,
		ReconnectInitial: cfg.Push.ReconnectInitial,
		ReconnectMax:     cfg.Push.ReconnectMax,
	}, logger, metrics)
	defer channel.Close()

	// Phase 3: session
	logger.Info("Phase 3: Starting session", map[string]interface{}{
		"initialTab": cfg.Session.InitialTab,
		"pageSize":   cfg.Pagination.PageSize,
	})
	confirmer := lifecycle.ConfirmFunc(func(ctx context.Context, o order.Order) (bool, error) {
		logger.Info("Cash collection check", map[string]interface{}{
			"orderID":   o.ID,
			"total":     o.OrderTotal.StringFixed(2),
			"collected": *collectCash,
		})
		return *collectCash, nil
	})
	sess := session.New(actor, client, confirmer, session.Options{
		PageSize:          cfg.Pagination.PageSize,
		Sort:              pager.SortDirection(cfg.Pagination.Sort),
		SearchDebounce:    cfg.Pagination.SearchDebounce,
		LoadMoreThreshold: cfg.Pagination.LoadMoreThreshold,
		InitialTab:        cfg.Session.InitialTab,
	}, logger, metrics)

	var last session.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return channel.Run(gctx) })
	g.Go(func() error { return sess.Run(gctx, channel.Events()) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case snap := <-sess.Updates():
				last = snap
				reporter.PrintSnapshot(os.Stdout, actor, snap)
			}
		}
	})

	// Phase 4: leftover reconciliations
	if *reconcileFile != "" {
		g.Go(func() error {
			logger.Info("Phase 4: Settling leftover COD payments", map[string]interface{}{
				"file": *reconcileFile,
			})
			report, err := cleanup.NewCleaner(sess, logger).CleanupFromFile(gctx, *reconcileFile)
			if err != nil {
				logger.Warn("Reconciliation sweep incomplete", map[string]interface{}{"error": err.Error()})
				return nil
			}
			if len(report.Failed) > 0 {
				logger.Warn("Some payments are still unrecorded", map[string]interface{}{"orders": report.Failed})
			}
			return nil
		})
	}

	if *interactive {
		g.Go(func() error {
			defer stop()
			return readCommands(gctx, os.Stdin, sess, logger)
		})
	}

	err = g.Wait()

	// Phase 5: report
	reporter.PrintSummary(os.Stdout, metrics, logger)
	logger.Info("Session duration", map[string]interface{}{
		"duration": time.Since(startTime).Round(time.Millisecond).String(),
	})

	if *snapshotFile != "" {
		if serr := reporter.SaveSnapshotJSON(last, *snapshotFile); serr != nil {
			logger.Warn("Failed to save snapshot", map[string]interface{}{
				"error": serr.Error(),
			})
		}
	}

	return err
}
