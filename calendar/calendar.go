package calendar

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/alimaamoun/DM-Agent/job"
)

// DefaultTimezone is used when a calendar names none.
const DefaultTimezone = "America/New_York"

// DefaultPublishTime is used for entries without a time of day.
const DefaultPublishTime = "09:00"

// ErrUnknownRange is returned by Range for names it does not know.
var ErrUnknownRange = errors.New("calendar: unknown range")

// Entry is one planned piece of content.
type Entry struct {
	Slot      job.Slot
	Params    job.Params
	PublishAt time.Time
}

// Source yields the entries the scheduler should create jobs for.
type Source interface {
	// Due returns entries whose publish time lies in [now, now+lookahead],
	// ordered by publish time.
	Due(ctx context.Context, now time.Time, lookahead time.Duration) ([]Entry, error)
}

// Static is a fixed list of entries.
type Static []Entry

// Due implements Source.
func (s Static) Due(_ context.Context, now time.Time, lookahead time.Duration) ([]Entry, error) {
	end := now.Add(lookahead)
	var out []Entry
	for _, e := range s {
		if e.PublishAt.Before(now) || e.PublishAt.After(end) {
			continue
		}
		e.Slot = e.Slot.Normalize()
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// Range resolves a named period to inclusive YYYY-MM-DD bounds in now's
// location. Weeks start on Monday.
func Range(name string, now time.Time) (from, to string, err error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monday := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))

	var start, end time.Time
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "this_week":
		start, end = monday, monday.AddDate(0, 0, 6)
	case "next_week":
		start, end = monday.AddDate(0, 0, 7), monday.AddDate(0, 0, 13)
	case "this_month":
		start = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		end = start.AddDate(0, 1, -1)
	case "today":
		start, end = today, today
	default:
		return "", "", fmt.Errorf("%w %q: want this_week, next_week, this_month or today", ErrUnknownRange, name)
	}
	return start.Format(job.DateLayout), end.Format(job.DateLayout), nil
}

// Weekday parses a weekday name or its three-letter abbreviation.
func Weekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("calendar: unknown weekday %q", s)
}

func sortEntries(es []Entry) {
	sort.SliceStable(es, func(i, k int) bool {
		if !es[i].PublishAt.Equal(es[k].PublishAt) {
			return es[i].PublishAt.Before(es[k].PublishAt)
		}
		return es[i].Slot.Key() < es[k].Slot.Key()
	})
}

// dedupe drops entries repeating a slot, keeping the first.
func dedupe(es []Entry) []Entry {
	seen := make(map[string]struct{}, len(es))
	return slices.DeleteFunc(es, func(e Entry) bool {
		k := e.Slot.Key()
		if _, ok := seen[k]; ok {
			return true
		}
		seen[k] = struct{}{}
		return false
	})
}
