package calendar_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alimaamoun/DM-Agent/calendar"
	"github.com/alimaamoun/DM-Agent/job"
)

func TestRange(t *testing.T) {
	// Wednesday.
	now := time.Date(2024, 6, 5, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		from, to string
	}{
		{"", "2024-06-03", "2024-06-09"},
		{"this_week", "2024-06-03", "2024-06-09"},
		{"next_week", "2024-06-10", "2024-06-16"},
		{"this_month", "2024-06-01", "2024-06-30"},
		{"today", "2024-06-05", "2024-06-05"},
		{" This_Week ", "2024-06-03", "2024-06-09"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := calendar.Range(tt.name, now)
			if err != nil {
				t.Fatalf("Range: %v", err)
			}
			if from != tt.from || to != tt.to {
				t.Errorf("got %s..%s, want %s..%s", from, to, tt.from, tt.to)
			}
		})
	}

	if _, _, err := calendar.Range("last_year", now); err == nil {
		t.Error("expected error for unknown range")
	}
}

func TestRangeSundayBelongsToPreviousWeek(t *testing.T) {
	sunday := time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)
	from, to, err := calendar.Range("this_week", sunday)
	if err != nil {
		t.Fatal(err)
	}
	if from != "2024-06-03" || to != "2024-06-09" {
		t.Errorf("got %s..%s", from, to)
	}
}

func TestWeekday(t *testing.T) {
	tests := []struct {
		in   string
		want time.Weekday
		ok   bool
	}{
		{"mon", time.Monday, true},
		{"Thursday", time.Thursday, true},
		{" SUN ", time.Sunday, true},
		{"funday", 0, false},
	}
	for _, tt := range tests {
		got, err := calendar.Weekday(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("Weekday(%q) err = %v", tt.in, err)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("Weekday(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestStaticDue(t *testing.T) {
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	s := calendar.Static{
		{Slot: job.Slot{Date: "2024-06-04", Platform: "Twitter", Theme: "b"}, PublishAt: now.Add(26 * time.Hour)},
		{Slot: job.Slot{Date: "2024-06-03", Platform: "instagram", Theme: "a"}, PublishAt: now.Add(time.Hour)},
		{Slot: job.Slot{Date: "2024-06-02", Platform: "instagram", Theme: "old"}, PublishAt: now.Add(-time.Hour)},
		{Slot: job.Slot{Date: "2024-06-10", Platform: "instagram", Theme: "far"}, PublishAt: now.Add(7 * 24 * time.Hour)},
	}

	got, err := s.Due(context.Background(), now, 48*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Slot.Theme != "a" || got[1].Slot.Theme != "b" {
		t.Errorf("order = %s, %s", got[0].Slot.Theme, got[1].Slot.Theme)
	}
	if got[1].Slot.Platform != "twitter" {
		t.Errorf("platform not normalized: %q", got[1].Slot.Platform)
	}
}

const sample = `
timezone: UTC
publish_time: "09:00"
defaults:
  tone: professional
  hashtags: true
  template: minimal
entries:
  - date: 2024-06-04
    platform: Instagram
    theme: spring sale
    time: "12:30"
    prompt: flowers on a desk
  - weekdays: [mon, thu]
    platform: linkedin
    theme: industry tips
    tone: casual
    hashtags: false
  - date: 2024-06-04
    platform: instagram
    theme: spring sale
    time: "18:00"
`

func TestPlanDue(t *testing.T) {
	plan, err := calendar.Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Monday 08:00; the window covers Mon, Tue, Wed and Thu morning.
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	got, err := plan.Due(context.Background(), now, 3*24*time.Hour+2*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		key string
		at  time.Time
	}{
		{"2024-06-03|linkedin|industry tips", time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)},
		{"2024-06-04|instagram|spring sale", time.Date(2024, 6, 4, 12, 30, 0, 0, time.UTC)},
		{"2024-06-06|linkedin|industry tips", time.Date(2024, 6, 6, 9, 0, 0, 0, time.UTC)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Slot.Key() != w.key {
			t.Errorf("entry %d key = %s, want %s", i, got[i].Slot.Key(), w.key)
		}
		if !got[i].PublishAt.Equal(w.at) {
			t.Errorf("entry %d at = %s, want %s", i, got[i].PublishAt, w.at)
		}
	}

	linkedin := got[0].Params
	if linkedin.Tone != "casual" || linkedin.Hashtags || linkedin.Template != "minimal" {
		t.Errorf("linkedin params = %+v", linkedin)
	}
	insta := got[1].Params
	if insta.Prompt != "flowers on a desk" || insta.Tone != "professional" || !insta.Hashtags {
		t.Errorf("instagram params = %+v", insta)
	}
}

func TestPlanDueTimezone(t *testing.T) {
	plan, err := calendar.Parse([]byte(`
entries:
  - date: 2024-06-04
    platform: instagram
    theme: launch
`))
	if err != nil {
		t.Fatal(err)
	}
	if plan.Location().String() != calendar.DefaultTimezone {
		t.Fatalf("location = %s", plan.Location())
	}

	now := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	got, err := plan.Due(context.Background(), now, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries", len(got))
	}
	// 09:00 EDT.
	if want := time.Date(2024, 6, 4, 13, 0, 0, 0, time.UTC); !got[0].PublishAt.Equal(want) {
		t.Errorf("at = %s, want %s", got[0].PublishAt, want)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"bad timezone", "timezone: Mars/Olympus\n", "timezone"},
		{"bad publish time", "publish_time: noon\n", "publish_time"},
		{"missing theme", "entries:\n  - date: 2024-06-04\n    platform: x\n", "platform and theme"},
		{"both date and weekdays", "entries:\n  - date: 2024-06-04\n    weekdays: [mon]\n    platform: x\n    theme: y\n", "exactly one"},
		{"neither date nor weekdays", "entries:\n  - platform: x\n    theme: y\n", "exactly one"},
		{"bad date", "entries:\n  - date: 06/04/2024\n    platform: x\n    theme: y\n", "YYYY-MM-DD"},
		{"bad weekday", "entries:\n  - weekdays: [someday]\n    platform: x\n    theme: y\n", "weekday"},
		{"bad yaml", "entries: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calendar.Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestFileReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	write := func(theme string, mod time.Time) {
		t.Helper()
		doc := "timezone: UTC\nentries:\n  - date: 2024-06-04\n    platform: instagram\n    theme: " + theme + "\n"
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	write("first", base)
	f, err := calendar.NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	now := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	got, err := f.Due(context.Background(), now, 24*time.Hour)
	if err != nil || len(got) != 1 || got[0].Slot.Theme != "first" {
		t.Fatalf("first read = %+v, %v", got, err)
	}

	write("second", base.Add(time.Minute))
	got, err = f.Due(context.Background(), now, 24*time.Hour)
	if err != nil || len(got) != 1 || got[0].Slot.Theme != "second" {
		t.Fatalf("after edit = %+v, %v", got, err)
	}
}

func TestNewFileMissing(t *testing.T) {
	if _, err := calendar.NewFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
