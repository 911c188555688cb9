// Package lifecycle derives an event's status and countdown from its schedule.
//
// Everything here is a pure function of (schedule, now). The stored override is the
// only input that can beat the clock, and only when it is not OverrideAuto.
package lifecycle

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/fanpulse/internal/domain"
)

// GracePeriod is how long after kick-off an event is still considered live.
const GracePeriod = 100 * time.Minute

type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusLive     Status = "live"
	StatusFinished Status = "finished"
)

// Target applies timeOfDay ("HH:MM") to the date of scheduledAt in loc.
// An empty timeOfDay returns scheduledAt unchanged.
func Target(scheduledAt time.Time, timeOfDay string, loc *time.Location) (time.Time, error) {
	if timeOfDay == "" {
		return scheduledAt, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	hour, minute, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	local := scheduledAt.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc), nil
}

func parseTimeOfDay(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in time of day %q", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in time of day %q", s)
	}
	return hour, minute, nil
}

// StatusAt classifies target relative to now. It compares instants rather than
// durations, since Sub saturates for targets centuries away.
func StatusAt(target, now time.Time) Status {
	switch {
	case target.After(now):
		return StatusUpcoming
	case !now.After(target.Add(GracePeriod)):
		return StatusLive
	default:
		return StatusFinished
	}
}

// CountdownAt renders the time left until target using the coarsest non-zero unit
// chain. It is empty once the target has passed.
func CountdownAt(target, now time.Time) string {
	diff := target.Sub(now)
	if diff <= 0 {
		return ""
	}
	return FormatCountdown(diff)
}

// FormatCountdown renders d as "Nd Nh Nm", "Nh Nm Ns", "Nm Ns" or "Ns".
func FormatCountdown(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// State is the full lifecycle view of an event at one instant.
type State struct {
	Status    Status
	Countdown string
	Target    time.Time
}

// Clock resolves events against a fixed reference location.
type Clock struct {
	loc *time.Location
}

func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Resolve computes the state of event at now. A forced override wins over the
// derived status; the countdown is only shown while the result is upcoming.
func (c *Clock) Resolve(event domain.Event, now time.Time) (State, error) {
	target, err := Target(event.ScheduledAt, event.TimeOfDay, c.loc)
	if err != nil {
		return State{}, fmt.Errorf("event %s: %w", event.Ref, err)
	}

	state := State{Status: StatusAt(target, now), Target: target}
	switch event.Override {
	case domain.OverrideForcedLive:
		state.Status = StatusLive
	case domain.OverrideForcedFinished:
		state.Status = StatusFinished
	}

	if state.Status == StatusUpcoming {
		state.Countdown = CountdownAt(target, now)
	}
	return state, nil
}
