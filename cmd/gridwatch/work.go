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

	"github.com/ShayCichocki/gridwatch/internal/transport"
	"github.com/ShayCichocki/gridwatch/pkg/progress"
)

var (
	workRank        int
	workSize        int
	workCoordinator string
	workNetwork     string
	workSteps       int
	workStepDelay   time.Duration
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run a simulated worker",
	Long: `Run a worker rank that connects to a coordinator started with 'serve' and
reports a status message and progress for a fixed number of simulated steps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWork(cmd.Context())
	},
}

func init() {
	workCmd.Flags().IntVar(&workRank, "rank", 0, "This worker's rank, 1 or higher (required)")
	workCmd.Flags().IntVar(&workSize, "size", 0, "Number of ranks including the coordinator (default rank+1)")
	workCmd.Flags().StringVar(&workCoordinator, "coordinator", "", "Coordinator address (default transport.address)")
	workCmd.Flags().StringVar(&workNetwork, "network", "", "Coordinator network: tcp or unix (default transport.network)")
	workCmd.Flags().IntVar(&workSteps, "steps", 20, "Number of simulated steps")
	workCmd.Flags().DurationVar(&workStepDelay, "step-delay", 500*time.Millisecond, "Time spent on each step")
	_ = workCmd.MarkFlagRequired("rank")
}

func runWork(ctx context.Context) error {
	if workRank < 1 {
		return fmt.Errorf("--rank must be 1 or higher, rank 0 is the coordinator")
	}
	size := workSize
	if size == 0 {
		size = workRank + 1
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if workCoordinator != "" {
		cfg.Transport.Address = workCoordinator
	}
	if workNetwork != "" {
		cfg.Transport.Network = workNetwork
	}

	logger, err := newLogger(cfg, workRank)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := transport.Dial(ctx, cfg.Transport.Network, cfg.Transport.Address, transport.DialOptions{
		Rank:     workRank,
		Attempts: cfg.Transport.DialAttempts,
		Delay:    cfg.Transport.DialDelay,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	m, err := progress.New(progress.Options{
		Rank:      workRank,
		Size:      size,
		Transport: client,
		Timing:    timingFrom(cfg),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	err = simulate(ctx, m, workSteps, workStepDelay)
	m.Stop()
	if err != nil {
		return err
	}

	printStatus("✓", fmt.Sprintf("rank %d finished %d steps", workRank, workSteps), color.FgGreen)
	return nil
}
