package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/calendar"
	"github.com/alimaamoun/DM-Agent/gateway"
	"github.com/alimaamoun/DM-Agent/id"
)

type handler func(ctx context.Context, args json.RawMessage) (any, error)

func (s *Server) handlers() map[string]handler {
	return map[string]handler{
		"enhance_prompt":       s.enhancePrompt,
		"create_social_post":   s.createSocialPost,
		"get_job_status":       s.getJobStatus,
		"revise_content":       s.reviseContent,
		"approve_content":      s.approveContent,
		"reject_content":       s.rejectContent,
		"cancel_content":       s.cancelContent,
		"resubmit_content":     s.resubmitContent,
		"schedule_content":     s.scheduleContent,
		"get_content_calendar": s.getContentCalendar,
	}
}

// argumentError is a malformed tool call. It is reported as a protocol
// error rather than a tool result.
type argumentError struct{ msg string }

func (e *argumentError) Error() string { return e.msg }

func badArgs(format string, args ...any) error {
	return &argumentError{msg: fmt.Sprintf(format, args...)}
}

func decode(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return badArgs("Invalid arguments: %v", err)
	}
	return nil
}

type creativeArgs struct {
	Prompt       *string `json:"prompt"`
	Enhance      *bool   `json:"enhance_prompt"`
	Style        *string `json:"style"`
	Size         *string `json:"size"`
	Template     *string `json:"template"`
	Logo         *bool   `json:"add_logo"`
	Tone         *string `json:"tone"`
	Hashtags     *bool   `json:"include_hashtags"`
	HashtagCount *int    `json:"hashtag_count"`
	MaxLength    *int    `json:"max_length"`
}

func (a creativeArgs) patch() gateway.Patch {
	return gateway.Patch{
		Prompt:       a.Prompt,
		Enhance:      a.Enhance,
		Style:        a.Style,
		Size:         a.Size,
		Template:     a.Template,
		Logo:         a.Logo,
		Tone:         a.Tone,
		Hashtags:     a.Hashtags,
		HashtagCount: a.HashtagCount,
		MaxLength:    a.MaxLength,
	}
}

type jobArgs struct {
	JobID string `json:"job_id"`
}

func (a jobArgs) id() (id.JobID, error) {
	return parseJobID("job_id", a.JobID)
}

func parseJobID(field, s string) (id.JobID, error) {
	if s == "" {
		return id.Nil, badArgs("%s is required", field)
	}
	jobID, err := id.ParseJobID(s)
	if err != nil {
		return id.Nil, badArgs("%s: %v", field, err)
	}
	return jobID, nil
}

func parseTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, badArgs("%s: %q is not an ISO 8601 time", field, s)
}

func (s *Server) enhancePrompt(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		BasicPrompt     string `json:"basic_prompt"`
		StylePreference string `json:"style_preference"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.BasicPrompt) == "" {
		return nil, badArgs("basic_prompt is required")
	}
	enhanced, err := s.svc.EnhancePrompt(ctx, args.BasicPrompt, args.StylePreference)
	if err != nil {
		return nil, err
	}
	return map[string]any{"prompt": args.BasicPrompt, "enhanced_prompt": enhanced}, nil
}

func (s *Server) createSocialPost(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		creativeArgs
		Date      string `json:"date"`
		Platform  string `json:"platform"`
		Theme     string `json:"theme"`
		PublishAt string `json:"publish_at"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Theme) == "" || strings.TrimSpace(args.Platform) == "" {
		return nil, badArgs("theme and platform are required")
	}
	at, err := parseTime("publish_at", args.PublishAt)
	if err != nil {
		return nil, err
	}

	patch := args.patch()
	if patch.Tone == nil {
		patch.Tone = ptr("professional")
	}
	if patch.Hashtags == nil {
		patch.Hashtags = ptr(true)
	}
	if patch.Logo == nil {
		patch.Logo = ptr(true)
	}

	j, created, err := s.svc.CreateOrFetch(ctx, gateway.CreateRequest{
		Date:      args.Date,
		Platform:  args.Platform,
		Theme:     args.Theme,
		Params:    patch,
		PublishAt: at,
	})
	if err != nil {
		return nil, err
	}
	msg := "Job created. It will be generated and wait for review."
	if !created {
		msg = "This slot already has an active job; returning it unchanged."
	}
	return map[string]any{"created": created, "message": msg, "job": gateway.View(j)}, nil
}

func (s *Server) getJobStatus(ctx context.Context, raw json.RawMessage) (any, error) {
	var args jobArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	jobID, err := args.id()
	if err != nil {
		return nil, err
	}
	j, err := s.svc.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return gateway.View(j), nil
}

func (s *Server) reviseContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		jobArgs
		creativeArgs
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	jobID, err := args.id()
	if err != nil {
		return nil, err
	}
	patch := args.patch()
	if patch.Empty() {
		return nil, badArgs("at least one parameter to change is required")
	}
	j, err := s.svc.Revise(ctx, jobID, patch)
	if err != nil {
		return nil, err
	}
	return gateway.View(j), nil
}

func (s *Server) approveContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		jobArgs
		PublishAt string `json:"publish_at"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	jobID, err := args.id()
	if err != nil {
		return nil, err
	}
	at, err := parseTime("publish_at", args.PublishAt)
	if err != nil {
		return nil, err
	}
	j, err := s.svc.Approve(ctx, jobID, at)
	if err != nil {
		return nil, err
	}
	return gateway.View(j), nil
}

func (s *Server) rejectContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		jobArgs
		creativeArgs
		Reason string `json:"reason"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	jobID, err := args.id()
	if err != nil {
		return nil, err
	}
	var revise *gateway.Patch
	if p := args.patch(); !p.Empty() {
		revise = &p
	}
	j, err := s.svc.Reject(ctx, jobID, args.Reason, revise)
	if err != nil {
		return nil, err
	}
	return gateway.View(j), nil
}

func (s *Server) cancelContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args jobArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	jobID, err := args.id()
	if err != nil {
		return nil, err
	}
	j, err := s.svc.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return gateway.View(j), nil
}

func (s *Server) resubmitContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		jobArgs
		creativeArgs
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	jobID, err := args.id()
	if err != nil {
		return nil, err
	}
	var patch *gateway.Patch
	if p := args.patch(); !p.Empty() {
		patch = &p
	}
	j, err := s.svc.Resubmit(ctx, jobID, patch)
	if err != nil {
		return nil, err
	}
	return gateway.View(j), nil
}

func (s *Server) scheduleContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		ContentID    string   `json:"content_id"`
		ScheduleTime string   `json:"schedule_time"`
		Platforms    []string `json:"platforms"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	jobID, err := parseJobID("content_id", args.ContentID)
	if err != nil {
		return nil, err
	}
	if args.ScheduleTime == "" {
		return nil, badArgs("schedule_time is required")
	}
	at, err := parseTime("schedule_time", args.ScheduleTime)
	if err != nil {
		return nil, err
	}

	res, err := s.svc.Schedule(ctx, jobID, at, args.Platforms)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"approved": gateway.View(res.Approved),
		"created":  gateway.Views(res.Created),
		"existing": gateway.Views(res.Existing),
	}, nil
}

func (s *Server) getContentCalendar(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		DateRange string `json:"date_range"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	view, err := s.svc.Calendar(ctx, args.DateRange)
	if errors.Is(err, calendar.ErrUnknownRange) {
		return nil, badArgs("%v", err)
	}
	if err != nil {
		return nil, err
	}
	return view.Result(), nil
}

// toolError classifies a domain error for the caller.
func toolError(err error) ToolError {
	te := ToolError{Error: err.Error(), Kind: "internal"}
	switch {
	case dmagent.IsContention(err):
		te.Kind, te.Retryable = "contention", true
	case errors.Is(err, dmagent.ErrJobNotFound):
		te.Kind = "not_found"
	case errors.Is(err, dmagent.ErrInvalidTransition):
		te.Kind = "invalid_transition"
	case errors.Is(err, dmagent.ErrDuplicateActiveJob):
		te.Kind = "duplicate"
	case errors.Is(err, dmagent.ErrSlotPublished):
		te.Kind = "slot_published"
	case errors.Is(err, dmagent.ErrInvalidSlot), errors.Is(err, dmagent.ErrUnknownPlatform):
		te.Kind = "invalid_request"
	case errors.Is(err, gateway.ErrNoEnhancer):
		te.Kind = "unavailable"
	}
	return te
}

func ptr[T any](v T) *T { return &v }
