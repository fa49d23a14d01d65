package relayhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alimaamoun/DM-Agent/backoff"
	"github.com/alimaamoun/DM-Agent/provider/httpx"
	"github.com/alimaamoun/DM-Agent/task"
)

// Header names set on every delivery.
const (
	HeaderEvent     = "X-DMAgent-Event"
	HeaderSignature = "X-DMAgent-Signature"
)

// HTTPSender posts events as JSON to one URL. Transient failures are
// retried with backoff.
type HTTPSender struct {
	client   *httpx.Client
	secret   []byte
	attempts int
	backoff  backoff.Strategy
	timeout  time.Duration
}

var _ Sender = (*HTTPSender)(nil)

// SenderOption configures an HTTPSender.
type SenderOption func(*HTTPSender)

// WithSecret signs every body with HMAC-SHA256 in the signature header.
func WithSecret(secret string) SenderOption {
	return func(s *HTTPSender) { s.secret = []byte(secret) }
}

// WithAttempts sets the total number of delivery attempts.
func WithAttempts(n int) SenderOption {
	return func(s *HTTPSender) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithBackoff sets the delay between attempts.
func WithBackoff(b backoff.Strategy) SenderOption {
	return func(s *HTTPSender) { s.backoff = b }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) SenderOption {
	return func(s *HTTPSender) { s.timeout = d }
}

// WithClient replaces the HTTP client.
func WithClient(hc *http.Client) SenderOption {
	return func(s *HTTPSender) { s.client = httpx.New(s.client.BaseURL(), httpx.WithHTTPClient(hc)) }
}

// NewHTTPSender creates a sender for url.
func NewHTTPSender(url string, opts ...SenderOption) *HTTPSender {
	s := &HTTPSender{
		client:   httpx.New(url),
		attempts: 3,
		backoff:  backoff.NewExponential(500*time.Millisecond, 5*time.Second),
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, evt *Event) error {
	header := http.Header{}
	header.Set(HeaderEvent, evt.Type)
	if len(s.secret) > 0 {
		body, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("relay_hook: marshal event: %w", err)
		}
		header.Set(HeaderSignature, "sha256="+Sign(s.secret, body))
	}

	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			if werr := backoff.Wait(ctx, s.backoff.Delay(attempt-1)); werr != nil {
				return werr
			}
		}
		err = s.deliver(ctx, evt, header)
		if err == nil || !task.IsTransient(err) {
			return err
		}
	}
	return err
}

func (s *HTTPSender) deliver(ctx context.Context, evt *Event, header http.Header) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Do(ctx, "webhook.deliver", http.MethodPost, "", evt, nil, header)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
