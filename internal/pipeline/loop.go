package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Cycle runs one round of steps.
type Cycle func(ctx context.Context) error

// Loop repeats cycle until ctx is done, sleeping interval between rounds.
// Cycle errors are logged and do not stop the loop. It returns the number
// of cycles started.
func Loop(ctx context.Context, cycle Cycle, interval time.Duration, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cycles := 0
	for ctx.Err() == nil {
		cycles++
		began := time.Now()
		if err := cycle(ctx); err != nil {
			logger.Error("cycle failed", "cycle", cycles, "error", err)
		}
		logger.Info("cycle executed",
			"cycle", cycles,
			"elapsed", time.Since(began).Round(time.Millisecond),
			"next_in", interval)

		if interval <= 0 {
			continue
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	logger.Info("loop exiting", "cycles", cycles)
	return cycles
}
