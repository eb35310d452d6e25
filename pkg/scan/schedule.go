package scan

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/cdmslab/hvctl/pkg/ramp"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextStart returns the first time after now matching the cron expression.
func NextStart(spec string, now time.Time) (time.Time, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: start time %q: %v", ErrInvalidScan, spec, err)
	}
	return schedule.Next(now), nil
}

// WaitForStart blocks until the next time matching spec.
func WaitForStart(spec string, clock ramp.Clock) error {
	now := clock.Now()
	next, err := NextStart(spec, now)
	if err != nil {
		return err
	}
	wait := next.Sub(now)
	logrus.WithFields(logrus.Fields{
		"startAt": next.Format(time.RFC3339),
		"wait":    wait.Round(time.Second),
	}).Info("waiting for scheduled scan start")
	clock.Sleep(wait)
	return nil
}
