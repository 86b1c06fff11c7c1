package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Parse validates a standard 5-field cron expression
func Parse(spec string) (cron.Schedule, error) {
	return cron.ParseStandard(spec)
}

// IsValid reports whether spec parses as a cron expression
func IsValid(spec string) bool {
	_, err := Parse(spec)
	return err == nil
}

// IsTriggered reports whether the cron expression has a scheduled activation
// between lastExecution and now, evaluated in the provided location
func IsTriggered(spec string, lastExecution, now time.Time, loc *time.Location) (bool, error) {
	sched, err := Parse(spec)
	if err != nil {
		return false, err
	}
	next := sched.Next(lastExecution.In(loc))
	return !next.After(now.In(loc)), nil
}

// NextTrigger returns the next scheduled activation after now in the
// provided location
func NextTrigger(spec string, now time.Time, loc *time.Location) (time.Time, error) {
	sched, err := Parse(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(now.In(loc)), nil
}

// UntilNextTrigger returns the duration until the next scheduled activation
func UntilNextTrigger(spec string, now time.Time, loc *time.Location) (time.Duration, error) {
	next, err := NextTrigger(spec, now, loc)
	if err != nil {
		return 0, err
	}
	return next.Sub(now.In(loc)), nil
}
