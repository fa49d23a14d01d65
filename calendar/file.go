package calendar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alimaamoun/DM-Agent/job"
)

// Document is the YAML form of a calendar.
//
//	timezone: America/New_York
//	publish_time: "09:00"
//	defaults:
//	  tone: professional
//	  hashtags: true
//	entries:
//	  - date: 2024-06-03
//	    platform: instagram
//	    theme: spring sale
//	    time: "12:30"
//	  - weekdays: [mon, thu]
//	    platform: linkedin
//	    theme: industry tips
type Document struct {
	Timezone    string          `yaml:"timezone"`
	PublishTime string          `yaml:"publish_time"`
	Defaults    ParamsDoc       `yaml:"defaults"`
	Entries     []EntryDocument `yaml:"entries"`
}

// EntryDocument is one calendar line. Exactly one of Date and Weekdays is
// set.
type EntryDocument struct {
	Date     string    `yaml:"date"`
	Weekdays []string  `yaml:"weekdays"`
	Platform string    `yaml:"platform"`
	Theme    string    `yaml:"theme"`
	Time     string    `yaml:"time"`
	Params   ParamsDoc `yaml:",inline"`
}

// ParamsDoc holds the creative parameters an entry may set.
type ParamsDoc struct {
	Prompt       string `yaml:"prompt"`
	Enhance      *bool  `yaml:"enhance"`
	Style        string `yaml:"style"`
	Size         string `yaml:"size"`
	Template     string `yaml:"template"`
	Logo         *bool  `yaml:"logo"`
	Tone         string `yaml:"tone"`
	Hashtags     *bool  `yaml:"hashtags"`
	HashtagCount int    `yaml:"hashtag_count"`
	MaxLength    int    `yaml:"max_length"`
}

// over returns p with the fields set in o replacing its own.
func (p ParamsDoc) over(o ParamsDoc) ParamsDoc {
	if o.Prompt != "" {
		p.Prompt = o.Prompt
	}
	if o.Enhance != nil {
		p.Enhance = o.Enhance
	}
	if o.Style != "" {
		p.Style = o.Style
	}
	if o.Size != "" {
		p.Size = o.Size
	}
	if o.Template != "" {
		p.Template = o.Template
	}
	if o.Logo != nil {
		p.Logo = o.Logo
	}
	if o.Tone != "" {
		p.Tone = o.Tone
	}
	if o.Hashtags != nil {
		p.Hashtags = o.Hashtags
	}
	if o.HashtagCount != 0 {
		p.HashtagCount = o.HashtagCount
	}
	if o.MaxLength != 0 {
		p.MaxLength = o.MaxLength
	}
	return p
}

func (p ParamsDoc) params() job.Params {
	deref := func(b *bool) bool { return b != nil && *b }
	return job.Params{
		Prompt:       p.Prompt,
		Enhance:      deref(p.Enhance),
		Style:        p.Style,
		Size:         p.Size,
		Template:     p.Template,
		Logo:         deref(p.Logo),
		Tone:         p.Tone,
		Hashtags:     deref(p.Hashtags),
		HashtagCount: p.HashtagCount,
		MaxLength:    p.MaxLength,
	}
}

// Plan is a parsed calendar.
type Plan struct {
	loc      *time.Location
	defaults ParamsDoc
	entries  []planEntry
}

type planEntry struct {
	date     string
	weekdays []time.Weekday
	platform string
	theme    string
	at       clock
	params   ParamsDoc
}

type clock struct{ hour, minute int }

func parseClock(s string) (clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return clock{}, fmt.Errorf("time %q: want HH:MM", s)
	}
	return clock{t.Hour(), t.Minute()}, nil
}

// Parse decodes a YAML calendar. A missing timezone selects
// DefaultTimezone; a missing publish time selects DefaultPublishTime.
func Parse(data []byte) (*Plan, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("calendar: parse: %w", err)
	}
	return doc.Plan()
}

// Plan validates the document and resolves it.
func (d Document) Plan() (*Plan, error) {
	tz := d.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("calendar: timezone %q: %w", tz, err)
	}
	pt := d.PublishTime
	if pt == "" {
		pt = DefaultPublishTime
	}
	defTime, err := parseClock(pt)
	if err != nil {
		return nil, fmt.Errorf("calendar: publish_time: %w", err)
	}

	p := &Plan{loc: loc, defaults: d.Defaults}
	var errs []error
	for i, e := range d.Entries {
		pe, err := resolveEntry(e, defTime)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i+1, err))
			continue
		}
		p.entries = append(p.entries, pe)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("calendar: %w", errors.Join(errs...))
	}
	return p, nil
}

func resolveEntry(e EntryDocument, defTime clock) (planEntry, error) {
	pe := planEntry{
		date:     strings.TrimSpace(e.Date),
		platform: strings.ToLower(strings.TrimSpace(e.Platform)),
		theme:    strings.TrimSpace(e.Theme),
		at:       defTime,
		params:   e.Params,
	}
	if pe.platform == "" || pe.theme == "" {
		return pe, errors.New("platform and theme are required")
	}
	if (pe.date == "") == (len(e.Weekdays) == 0) {
		return pe, errors.New("set exactly one of date and weekdays")
	}
	if pe.date != "" {
		if _, err := time.Parse(job.DateLayout, pe.date); err != nil {
			return pe, fmt.Errorf("date %q: want YYYY-MM-DD", pe.date)
		}
	}
	for _, w := range e.Weekdays {
		d, err := Weekday(w)
		if err != nil {
			return pe, err
		}
		pe.weekdays = append(pe.weekdays, d)
	}
	if e.Time != "" {
		at, err := parseClock(e.Time)
		if err != nil {
			return pe, err
		}
		pe.at = at
	}
	return pe, nil
}

// Location returns the calendar's timezone.
func (p *Plan) Location() *time.Location { return p.loc }

// Due implements Source. Recurring entries expand to every matching day in
// the window.
func (p *Plan) Due(_ context.Context, now time.Time, lookahead time.Duration) ([]Entry, error) {
	start, end := now.In(p.loc), now.Add(lookahead).In(p.loc)
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, p.loc)

	var out []Entry
	for _, pe := range p.entries {
		for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
			if !pe.on(d) {
				continue
			}
			at := time.Date(d.Year(), d.Month(), d.Day(), pe.at.hour, pe.at.minute, 0, 0, p.loc)
			if at.Before(start) || at.After(end) {
				continue
			}
			out = append(out, Entry{
				Slot:      job.NewSlot(d, pe.platform, pe.theme),
				Params:    p.defaults.over(pe.params).params(),
				PublishAt: at.UTC(),
			})
		}
	}
	sortEntries(out)
	return dedupe(out), nil
}

func (pe planEntry) on(d time.Time) bool {
	if pe.date != "" {
		return d.Format(job.DateLayout) == pe.date
	}
	for _, w := range pe.weekdays {
		if d.Weekday() == w {
			return true
		}
	}
	return false
}

// File is a calendar read from disk. The file is parsed again whenever it
// changes, so edits apply on the next tick.
type File struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	plan    *Plan
}

// NewFile returns a File for path and parses it once to surface errors.
func NewFile(path string) (*File, error) {
	f := &File{path: path}
	if _, err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the calendar file path.
func (f *File) Path() string { return f.path }

// Due implements Source.
func (f *File) Due(ctx context.Context, now time.Time, lookahead time.Duration) ([]Entry, error) {
	p, err := f.load()
	if err != nil {
		return nil, err
	}
	return p.Due(ctx, now, lookahead)
}

// Location returns the timezone of the current file contents.
func (f *File) Location() (*time.Location, error) {
	p, err := f.load()
	if err != nil {
		return nil, err
	}
	return p.Location(), nil
}

func (f *File) load() (*Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	if f.plan != nil && info.ModTime().Equal(f.modTime) {
		return f.plan, nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("calendar: read %s: %w", f.path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f.plan, f.modTime = p, info.ModTime()
	return p, nil
}
