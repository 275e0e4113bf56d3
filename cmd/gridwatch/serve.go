package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/gridwatch/internal/config"
	"github.com/ShayCichocki/gridwatch/internal/transport"
	"github.com/ShayCichocki/gridwatch/pkg/progress"
)

var (
	serveSize       int
	serveListen     string
	serveNetwork    string
	serveQueueLimit int
	serveExitDone   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator dashboard",
	Long: `Run rank 0: listen for worker reports and render the dashboard on stderr.

The coordinator's own panel shows the listen address and how many workers have
finished. Edits to the config file relayout the dashboard without a restart.
Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVar(&serveSize, "size", 0, "Number of ranks including the coordinator (required)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default transport.address)")
	serveCmd.Flags().StringVar(&serveNetwork, "network", "", "Listen network: tcp or unix (default transport.network)")
	serveCmd.Flags().IntVar(&serveQueueLimit, "queue-limit", 4096, "Reports buffered per channel before the oldest are dropped")
	serveCmd.Flags().BoolVar(&serveExitDone, "exit-when-done", false, "Stop once every worker reports completion")
	_ = serveCmd.MarkFlagRequired("size")
}

func runServe(ctx context.Context) error {
	if serveSize < 1 {
		return fmt.Errorf("--size must be at least 1, got %d", serveSize)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if serveListen != "" {
		cfg.Transport.Address = serveListen
	}
	if serveNetwork != "" {
		cfg.Transport.Network = serveNetwork
	}

	logger, err := newLogger(cfg, 0)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	layout, err := cfg.Dashboard.Layout(int(os.Stderr.Fd()))
	if err != nil {
		return fmt.Errorf("dashboard layout: %w", err)
	}

	srv, err := transport.Listen(cfg.Transport.Network, cfg.Transport.Address, transport.ServerOptions{
		Size:       serveSize,
		QueueLimit: serveQueueLimit,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	m, err := progress.New(progress.Options{
		Rank:      0,
		Size:      serveSize,
		Transport: srv,
		Out:       os.Stderr,
		Layout:    layout,
		Timing:    timingFrom(cfg),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m.ReportMessage(fmt.Sprintf("listening on %s", srv.Addr()))
	workers := serveSize - 1
	if err := m.ReportProgress(0, max(workers, 1)); err != nil {
		return err
	}
	if err := m.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if path := watchedConfigPath(); path != "" {
		g.Go(func() error {
			return config.Watch(gctx, path, loadConfig, func(next *config.Config, err error) {
				if err != nil {
					logger.Warn("config reload failed", zap.Error(err))
					return
				}
				relayout(m, next, logger)
			})
		})
	}
	g.Go(func() error {
		return trackCompletion(gctx, m, workers, cfg.Timing.CycleInterval, stop)
	})

	err = g.Wait()
	m.Stop()

	done, _ := m.CountDone()
	fmt.Println()
	printStatus("✓", fmt.Sprintf("%d of %d workers finished", done, workers), color.FgGreen)
	if dropped := srv.Dropped(); dropped > 0 {
		printStatus("⚠", fmt.Sprintf("%d reports dropped under load", dropped), color.FgYellow)
	}
	return err
}

// trackCompletion keeps the coordinator's own progress at the number of
// finished workers. With --exit-when-done it calls finish once all are done.
func trackCompletion(ctx context.Context, m *progress.Manager, workers int, every time.Duration, finish func()) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		done, err := m.CountDone()
		if err != nil {
			return err
		}
		if err := m.ReportProgress(done, max(workers, 1)); err != nil {
			return err
		}
		if serveExitDone && workers > 0 && done >= workers {
			m.ReportMessage("all workers finished")
			finish()
			return nil
		}
	}
}

// relayout applies a reloaded config's geometry to a running dashboard.
func relayout(m *progress.Manager, cfg *config.Config, logger *zap.Logger) {
	layout, err := cfg.Dashboard.Layout(int(os.Stderr.Fd()))
	if err != nil {
		logger.Warn("reloaded layout rejected", zap.Error(err))
		return
	}
	if err := m.Relayout(layout); err != nil {
		logger.Warn("relayout failed", zap.Error(err))
	}
}
