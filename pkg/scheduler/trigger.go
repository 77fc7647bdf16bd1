package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TriggerKind distinguishes the supported schedules.
type TriggerKind int

const (
	Daily TriggerKind = iota + 1
	Weekly
	Hourly
	Interval
)

// Trigger describes when a job fires. Hour and Minute apply to Daily and
// Weekly, Weekday to Weekly, Every to Hourly and Interval.
type Trigger struct {
	Kind    TriggerKind
	Hour    int
	Minute  int
	Weekday time.Weekday
	Every   time.Duration
}

var weekdays = map[string]time.Weekday{ //nolint:gochecknoglobals // lookup table
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseTrigger parses a trigger descriptor. Accepted forms:
//
//	daily 09:00
//	weekly friday 10:00
//	friday at 10:00
//	hourly
//	every 90s | every 30m
//	interval 3600   (seconds)
func ParseTrigger(s string) (Trigger, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) == 0 {
		return Trigger{}, fmt.Errorf("parse trigger: empty")
	}

	switch fields[0] {
	case "hourly":
		if len(fields) != 1 {
			return Trigger{}, fmt.Errorf("parse trigger %q: hourly takes no arguments", s)
		}
		return Trigger{Kind: Hourly, Every: time.Hour}, nil

	case "daily":
		if len(fields) != 2 {
			return Trigger{}, fmt.Errorf("parse trigger %q: want \"daily HH:MM\"", s)
		}
		h, m, err := parseClock(fields[1])
		if err != nil {
			return Trigger{}, fmt.Errorf("parse trigger %q: %w", s, err)
		}
		return Trigger{Kind: Daily, Hour: h, Minute: m}, nil

	case "weekly":
		if len(fields) != 3 {
			return Trigger{}, fmt.Errorf("parse trigger %q: want \"weekly DAY HH:MM\"", s)
		}
		return parseWeekly(s, fields[1], fields[2])

	case "every":
		if len(fields) != 2 {
			return Trigger{}, fmt.Errorf("parse trigger %q: want \"every DURATION\"", s)
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil {
			return Trigger{}, fmt.Errorf("parse trigger %q: %w", s, err)
		}
		return intervalTrigger(s, d)

	case "interval":
		if len(fields) != 2 {
			return Trigger{}, fmt.Errorf("parse trigger %q: want \"interval SECONDS\"", s)
		}
		secs, err := strconv.Atoi(fields[1])
		if err != nil {
			return Trigger{}, fmt.Errorf("parse trigger %q: %w", s, err)
		}
		return intervalTrigger(s, time.Duration(secs)*time.Second)
	}

	// "friday at 10:00"
	if _, ok := weekdays[fields[0]]; ok && len(fields) == 3 && fields[1] == "at" {
		return parseWeekly(s, fields[0], fields[2])
	}
	return Trigger{}, fmt.Errorf("parse trigger %q: unrecognized form", s)
}

func parseWeekly(raw, day, clock string) (Trigger, error) {
	wd, ok := weekdays[day]
	if !ok {
		return Trigger{}, fmt.Errorf("parse trigger %q: unknown weekday %q", raw, day)
	}
	h, m, err := parseClock(clock)
	if err != nil {
		return Trigger{}, fmt.Errorf("parse trigger %q: %w", raw, err)
	}
	return Trigger{Kind: Weekly, Weekday: wd, Hour: h, Minute: m}, nil
}

func intervalTrigger(raw string, d time.Duration) (Trigger, error) {
	if d < time.Second {
		return Trigger{}, fmt.Errorf("parse trigger %q: interval must be at least 1s", raw)
	}
	return Trigger{Kind: Interval, Every: d}, nil
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

// String renders the trigger in the form ParseTrigger accepts.
func (t Trigger) String() string {
	switch t.Kind {
	case Daily:
		return fmt.Sprintf("daily %02d:%02d", t.Hour, t.Minute)
	case Weekly:
		return fmt.Sprintf("weekly %s %02d:%02d", strings.ToLower(t.Weekday.String()), t.Hour, t.Minute)
	case Hourly:
		return "hourly"
	case Interval:
		return "every " + t.Every.String()
	default:
		return "invalid"
	}
}

// Next returns the next fire time. Daily and weekly triggers roll forward to
// the next occurrence strictly after now in loc. Hourly and interval triggers
// fire at last+Every (now+Every when last is nil), advanced by whole periods
// until the result is after now.
func (t Trigger) Next(now time.Time, last *time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)

	switch t.Kind {
	case Daily:
		next := time.Date(local.Year(), local.Month(), local.Day(), t.Hour, t.Minute, 0, 0, loc)
		for !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case Weekly:
		ahead := (int(t.Weekday) - int(local.Weekday()) + 7) % 7
		next := time.Date(local.Year(), local.Month(), local.Day()+ahead, t.Hour, t.Minute, 0, 0, loc)
		for !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	default:
		every := t.Every
		if every <= 0 {
			every = time.Hour
		}
		base := now
		if last != nil {
			base = *last
		}
		next := base.Add(every)
		if !next.After(now) {
			periods := now.Sub(next)/every + 1
			next = next.Add(periods * every)
		}
		return next
	}
}
