package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// LogSink writes summaries to a logger. Failures log at error level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver implements Sink.
func (l *LogSink) Deliver(ctx context.Context, s Summary) error {
	level := slog.LevelInfo
	if s.Kind == KindFailed {
		level = slog.LevelError
	}
	l.logger.LogAttrs(ctx, level, "job "+string(s.Kind),
		slog.String("job_id", s.JobID.String()),
		slog.String("slot", s.Slot.Key()),
		slog.String("stage", string(s.Stage)),
		slog.String("reason", s.Reason),
		slog.String("post_id", s.PostID),
	)
	return nil
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailConfig configures a MailSink.
type MailConfig struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	To       []string
}

// MailSink emails summaries over SMTP.
type MailSink struct {
	cfg  MailConfig
	send SendFunc
}

// NewMailSink creates a MailSink. A nil send uses smtp.SendMail.
func NewMailSink(cfg MailConfig, send SendFunc) *MailSink {
	if send == nil {
		send = smtp.SendMail
	}
	return &MailSink{cfg: cfg, send: send}
}

// Deliver implements Sink.
func (m *MailSink) Deliver(ctx context.Context, s Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(m.cfg.To) == 0 {
		return nil
	}
	var auth smtp.Auth
	if m.cfg.Username != "" {
		host, _, err := net.SplitHostPort(m.cfg.Addr)
		if err != nil {
			return fmt.Errorf("dmagent/notify: smtp addr %q: %w", m.cfg.Addr, err)
		}
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}
	if err := m.send(m.cfg.Addr, auth, m.cfg.From, m.cfg.To, m.message(s)); err != nil {
		return fmt.Errorf("dmagent/notify: send mail: %w", err)
	}
	return nil
}

func (m *MailSink) message(s Summary) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", s.Subject())
	fmt.Fprintf(&b, "Date: %s\r\n", s.At.Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Job:      %s\r\n", s.JobID)
	fmt.Fprintf(&b, "Date:     %s\r\n", s.Slot.Date)
	fmt.Fprintf(&b, "Platform: %s\r\n", s.Slot.Platform)
	fmt.Fprintf(&b, "Theme:    %s\r\n", s.Slot.Theme)
	fmt.Fprintf(&b, "Stage:    %s\r\n", s.Stage)
	if s.Reason != "" {
		fmt.Fprintf(&b, "Reason:   %s\r\n", s.Reason)
	}
	if s.PostID != "" {
		fmt.Fprintf(&b, "Post:     %s\r\n", s.PostID)
	}
	if s.Kind == KindAwaitingReview {
		fmt.Fprintf(&b, "\r\nApprove with approve_content or POST /v1/jobs/%s/approve.\r\n", s.JobID)
	}
	return b.Bytes()
}
