package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/scheduler"
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add(invalid("log.level", "must be one of debug, info, warn, error"))
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		add(invalid("log.format", "must be json or console"))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		add(validateURL("store.redis_url", c.Store.RedisURL))
	case BackendPostgres:
		add(validateURL("store.database_url", c.Store.DatabaseURL))
	default:
		add(invalid("store.backend", "must be one of memory, redis, postgres"))
	}

	add(validateURL("ollama.host", c.Ollama.Host))
	add(validateURL("diffusion.url", c.Diffusion.URL))

	if _, _, err := collab.ParseSize(c.Content.ImageSize); err != nil {
		add(invalid("content.image_size", "%v", err))
	}
	if c.Content.MaxCaptionLength <= 0 {
		add(invalid("content.max_caption_length", "must be positive"))
	}
	if c.Content.HashtagCount < 0 {
		add(invalid("content.hashtag_count", "must not be negative"))
	}

	if _, err := c.Schedule.Location(); err != nil {
		add(invalid("schedule.timezone", "%v", err))
	}
	if _, err := scheduler.ParseSchedule(c.Schedule.Cron); err != nil {
		add(invalid("schedule.cron", "%v", err))
	}
	if c.Schedule.Lookahead <= 0 {
		add(invalid("schedule.lookahead", "must be positive"))
	}
	if c.Schedule.LeaderTTL <= 0 {
		add(invalid("schedule.leader_ttl", "must be positive"))
	}

	p := c.Pipeline
	if p.Workers <= 0 {
		add(invalid("pipeline.workers", "must be positive"))
	}
	if p.QueueSize < 0 {
		add(invalid("pipeline.queue_size", "must not be negative"))
	}
	if p.MaxRetries < 0 {
		add(invalid("pipeline.max_retries", "must not be negative"))
	}
	if p.LeaseTTL <= 0 {
		add(invalid("pipeline.lease_ttl", "must be positive"))
	}
	if p.StageTimeout > 0 && p.StageTimeout >= p.LeaseTTL {
		add(invalid("pipeline.stage_timeout", "must be shorter than pipeline.lease_ttl"))
	}
	if p.PollInterval <= 0 {
		add(invalid("pipeline.poll_interval", "must be positive"))
	}
	if p.RunnerConcurrency <= 0 {
		add(invalid("pipeline.runner_concurrency", "must be positive"))
	}
	if p.PublishRate < 0 {
		add(invalid("pipeline.publish_rate", "must not be negative"))
	}

	if c.Notify.ApprovalEmail != "" && c.Notify.SMTPAddr == "" {
		add(invalid("notify.smtp_addr", "is required when approval_email is set"))
	}

	for name, base := range map[string]string{
		"platforms.instagram.base_url": c.Platforms.Instagram.BaseURL,
		"platforms.twitter.base_url":   c.Platforms.Twitter.BaseURL,
		"platforms.linkedin.base_url":  c.Platforms.LinkedIn.BaseURL,
		"notify.webhook_url":           c.Notify.WebhookURL,
	} {
		if base != "" {
			add(validateURL(name, base))
		}
	}

	return errors.Join(errs...)
}

func validateURL(field, raw string) error {
	if raw == "" {
		return invalid(field, "is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid(field, "must be an absolute URL")
	}
	return nil
}

// LogFormat resolves the effective log format.
func (c *Config) LogFormat() string {
	if c.Log.Format != "" {
		return c.Log.Format
	}
	if c.Debug {
		return "console"
	}
	return "json"
}
