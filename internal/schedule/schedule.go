package schedule

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// RunAt runs execute at runAt unless ctx is done first.
func RunAt(ctx context.Context, clk clock.Clock, runAt time.Time, execute func(ctx context.Context)) {
	go func() {
		timer := clk.Timer(clk.Until(runAt))
		defer timer.Stop()
		select {
		case <-timer.C:
			execute(ctx)
		case <-ctx.Done():
		}
	}()
}

// Every runs execute each time the cron expression fires, until ctx is
// done. Runs never overlap; fire times missed by a slow run are skipped.
func Every(ctx context.Context, clk clock.Clock, cron string, execute func(ctx context.Context)) error {
	expr, err := parse(cron)
	if err != nil {
		return err
	}

	go func() {
		for {
			now := clk.Now()
			next := expr.Next(now.UTC())
			if next.IsZero() {
				return
			}
			timer := clk.Timer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			execute(ctx)
		}
	}()
	return nil
}
