package schedule

import (
	"fmt"
	"time"

	"github.com/hashicorp/cronexpr"
)

func parse(cron string) (*cronexpr.Expression, error) {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cron, err)
	}
	return expr, nil
}

// ValidateCron reports whether cron parses.
func ValidateCron(cron string) error {
	_, err := parse(cron)
	return err
}

// NextRunTimes lists the next n fire times from now, in UTC.
func NextRunTimes(cron string, n int) ([]time.Time, error) {
	return NextRunTimesAfter(cron, time.Now().UTC(), n)
}

func NextRunTimesAfter(cron string, after time.Time, n int) ([]time.Time, error) {
	if n < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", n)
	}
	expr, err := parse(cron)
	if err != nil {
		return nil, err
	}
	return expr.NextN(after, uint(n)), nil
}

// Interval is the time between the first two runs that follow after.
func Interval(cron string, after time.Time) (time.Duration, error) {
	times, err := NextRunTimesAfter(cron, after, 2)
	if err != nil {
		return 0, err
	}
	if len(times) < 2 {
		return 0, fmt.Errorf("cron expression %q does not repeat", cron)
	}
	return times[1].Sub(times[0]), nil
}
