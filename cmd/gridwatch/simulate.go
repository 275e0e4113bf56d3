package main

import (
	"context"
	"fmt"
	"time"
)

// statusReporter is the part of progress.Manager a simulated worker uses.
type statusReporter interface {
	ReportMessage(text string)
	ReportProgress(completed, total int) error
}

// simulate reports steps units of work, one every delay. A cancelled ctx
// ends the run early with a final message and no error.
func simulate(ctx context.Context, r statusReporter, steps int, delay time.Duration) error {
	if steps < 1 {
		return fmt.Errorf("steps must be at least 1, got %d", steps)
	}
	if err := r.ReportProgress(0, steps); err != nil {
		return err
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for step := 1; step <= steps; step++ {
		r.ReportMessage(fmt.Sprintf("step %d of %d", step, steps))

		timer.Reset(delay)
		select {
		case <-ctx.Done():
			r.ReportMessage(fmt.Sprintf("interrupted at step %d", step))
			return nil
		case <-timer.C:
		}

		if err := r.ReportProgress(step, steps); err != nil {
			return err
		}
	}

	r.ReportMessage("done")
	return nil
}
