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
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/gridwatch/internal/transport"
	"github.com/ShayCichocki/gridwatch/pkg/progress"
)

var (
	demoSize      int
	demoSteps     int
	demoStepDelay time.Duration
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a coordinator and simulated workers in one process",
	Long: `Run a coordinator and size-1 simulated workers in this process, connected
by an in-process transport. Useful for checking the dashboard layout on the
current terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.Context())
	},
}

func init() {
	demoCmd.Flags().IntVar(&demoSize, "size", 8, "Number of ranks including the coordinator")
	demoCmd.Flags().IntVar(&demoSteps, "steps", 10, "Base number of steps per worker; rank r runs steps+r")
	demoCmd.Flags().DurationVar(&demoStepDelay, "step-delay", 300*time.Millisecond, "Time spent on each step")
}

func runDemo(ctx context.Context) error {
	if demoSize < 1 {
		return fmt.Errorf("--size must be at least 1, got %d", demoSize)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
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

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := transport.NewHub(demoSize)
	timing := timingFrom(cfg)

	coord, err := progress.New(progress.Options{
		Rank:      0,
		Size:      demoSize,
		Transport: hub.Endpoint(0),
		Out:       os.Stderr,
		Layout:    layout,
		Timing:    timing,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	workers := demoSize - 1
	coord.ReportMessage(fmt.Sprintf("demo with %d workers", workers))
	if err := coord.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for rank := 1; rank < demoSize; rank++ {
		w, err := progress.New(progress.Options{
			Rank:      rank,
			Size:      demoSize,
			Transport: hub.Endpoint(rank),
			Timing:    timing,
			Logger:    logger,
		})
		if err != nil {
			coord.Stop()
			return err
		}
		steps := demoSteps + rank
		g.Go(func() error {
			defer w.Stop()
			return simulate(gctx, w, steps, demoStepDelay)
		})
	}

	err = g.Wait()

	done, _ := coord.CountDone()
	coord.ReportMessage("demo finished")
	_ = coord.ReportProgress(done, max(workers, 1))
	coord.Stop()
	done, _ = coord.CountDone()

	fmt.Println()
	printStatus("✓", fmt.Sprintf("%d of %d workers finished", done, workers), color.FgGreen)
	return err
}
