package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// RunFlusher flushes q every interval until ctx is done. A run that is
// still busy when the next one is due pushes that one back.
func RunFlusher(ctx context.Context, q *Queue, handle Handler, interval time.Duration, log *slog.Logger) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, _, err := q.Flush(ctx, handle); err != nil && ctx.Err() == nil {
				log.Error("flush queue", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule flush: %w", err)
	}

	log.Info("queue flusher started", "interval", interval)
	sched.Start()

	<-ctx.Done()
	return sched.Shutdown()
}
