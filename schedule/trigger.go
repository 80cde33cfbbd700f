package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skeinworks/spindle/errors"
)

// ScheduleKind selects between the two trigger families.
type ScheduleKind string

const (
	// KindInterval fires every fixed duration.
	KindInterval ScheduleKind = "interval"
	// KindCron fires on a calendar expression.
	KindCron ScheduleKind = "cron"
)

// cronParser accepts standard 5-field expressions, optional seconds field,
// and @-descriptors. Omitted fields in a 5-field expression behave as "*".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule is the trigger specification for a job. It is a value object:
// a reschedule replaces it wholesale, never merges fields.
//
// Interval schedules sum Seconds/Minutes/Hours into a fixed period.
// Cron schedules use Expr (5 or 6 fields, or a descriptor like @hourly)
// evaluated in Timezone. StartAt/EndAt bound all computed fire times for
// both kinds. All fire times returned by NextFire are in UTC.
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	// Interval fields
	Seconds int `json:"seconds,omitempty"`
	Minutes int `json:"minutes,omitempty"`
	Hours   int `json:"hours,omitempty"`

	// Cron fields
	Expr     string `json:"expr,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	StartAt *time.Time `json:"start_at,omitempty"`
	EndAt   *time.Time `json:"end_at,omitempty"`
}

// Every builds an interval schedule from a duration (truncated to seconds).
func Every(d time.Duration) Schedule {
	return Schedule{Kind: KindInterval, Seconds: int(d / time.Second)}
}

// Cron builds a calendar schedule from a cron expression.
func Cron(expr string) Schedule {
	return Schedule{Kind: KindCron, Expr: expr}
}

// Interval returns the fixed period of an interval schedule.
func (s Schedule) Interval() time.Duration {
	return time.Duration(s.Seconds)*time.Second +
		time.Duration(s.Minutes)*time.Minute +
		time.Duration(s.Hours)*time.Hour
}

// Validate checks the schedule fields without reference to a clock.
func (s Schedule) Validate() error {
	switch s.Kind {
	case KindInterval:
		if s.Interval() <= 0 {
			return errors.Wrap(errors.ErrInvalidSchedule, "interval must be positive")
		}
	case KindCron:
		if s.Expr == "" {
			return errors.Wrap(errors.ErrInvalidSchedule, "cron expression is empty")
		}
		if _, err := cronParser.Parse(s.cronExpr()); err != nil {
			return errors.Wrapf(errors.ErrInvalidSchedule, "cron expression %q: %v", s.Expr, err)
		}
	default:
		return errors.Wrapf(errors.ErrInvalidSchedule, "unknown schedule kind %q", s.Kind)
	}

	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return errors.Wrapf(errors.ErrInvalidSchedule, "unknown timezone %q", s.Timezone)
		}
	}
	if s.StartAt != nil && s.EndAt != nil && s.EndAt.Before(*s.StartAt) {
		return errors.Wrap(errors.ErrInvalidSchedule, "end_date before start_date")
	}
	return nil
}

// cronExpr returns the expression with the timezone folded in, which is how
// robfig/cron binds a location to a parsed schedule.
func (s Schedule) cronExpr() string {
	if s.Timezone == "" {
		return s.Expr
	}
	return "CRON_TZ=" + s.Timezone + " " + s.Expr
}

// NextFire computes the next fire time strictly after the given instant.
// The second return value is false when the schedule has no further fire
// times (past EndAt). Deterministic given (schedule, after, timezone); the
// returned time is normalized to UTC.
func (s Schedule) NextFire(after time.Time) (time.Time, bool) {
	if s.StartAt != nil && after.Before(*s.StartAt) {
		// First fire never precedes the start bound.
		if s.Kind == KindInterval {
			return s.bounded(s.StartAt.UTC())
		}
		after = *s.StartAt
	}

	switch s.Kind {
	case KindInterval:
		return s.bounded(after.Add(s.Interval()).UTC())
	case KindCron:
		sched, err := cronParser.Parse(s.cronExpr())
		if err != nil {
			return time.Time{}, false
		}
		next := sched.Next(after)
		if next.IsZero() {
			return time.Time{}, false
		}
		return s.bounded(next.UTC())
	default:
		return time.Time{}, false
	}
}

func (s Schedule) bounded(next time.Time) (time.Time, bool) {
	if s.EndAt != nil && next.After(*s.EndAt) {
		return time.Time{}, false
	}
	return next, true
}
