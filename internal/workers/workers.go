package workers

import (
	"context"
	"log"
	"time"
)

// NextDailyRun returns the next instant at hour:00 in loc strictly after now.
func NextDailyRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// StartDailyWorker runs job once a day at hour:00 in loc until ctx is done.
// The returned channel closes when the worker exits.
func StartDailyWorker(ctx context.Context, name string, hour int, loc *time.Location, job func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			next := NextDailyRun(time.Now(), hour, loc)
			log.Printf("Worker %s: next run at %s", name, next.Format(time.RFC3339))

			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				log.Printf("Worker %s: stopped", name)
				return
			case <-timer.C:
				runJob(ctx, name, job)
			}
		}
	}()

	return done
}

func runJob(ctx context.Context, name string, job func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker %s: recovered from panic: %v", name, r)
		}
	}()

	start := time.Now()
	log.Printf("Worker %s: starting run", name)
	job(ctx)
	log.Printf("Worker %s: run finished in %s", name, time.Since(start).Round(time.Millisecond))
}
