package platform

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/provider/httpx"
	"github.com/alimaamoun/DM-Agent/task"
)

// MediaReader loads a composed asset for upload.
type MediaReader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

type postRequest struct {
	Caption   string     `json:"caption"`
	Media     string     `json:"media"`
	MediaName string     `json:"media_name"`
	PublishAt *time.Time `json:"publish_at,omitempty"`
}

type postResponse struct {
	ID string `json:"id"`
}

// HTTPPublisher posts through a platform's content API. The request carries
// the idempotency key in the Idempotency-Key header; the platform returns
// the original post id when it sees a key twice.
type HTTPPublisher struct {
	limits Limits
	client *httpx.Client
	media  MediaReader
	path   string
}

var _ collab.Publisher = (*HTTPPublisher)(nil)

// NewHTTPPublisher creates a publisher posting to path on client.
func NewHTTPPublisher(limits Limits, client *httpx.Client, media MediaReader, path string) *HTTPPublisher {
	return &HTTPPublisher{limits: limits, client: client, media: media, path: path}
}

// NewInstagram creates the Instagram publisher.
func NewInstagram(client *httpx.Client, media MediaReader) *HTTPPublisher {
	l, _ := KnownLimits(Instagram)
	return NewHTTPPublisher(l, client, media, "/v1/media")
}

// NewTwitter creates the Twitter publisher.
func NewTwitter(client *httpx.Client, media MediaReader) *HTTPPublisher {
	l, _ := KnownLimits(Twitter)
	return NewHTTPPublisher(l, client, media, "/2/tweets")
}

// NewLinkedIn creates the LinkedIn publisher.
func NewLinkedIn(client *httpx.Client, media MediaReader) *HTTPPublisher {
	l, _ := KnownLimits(LinkedIn)
	return NewHTTPPublisher(l, client, media, "/v2/posts")
}

// Platform implements collab.Publisher.
func (p *HTTPPublisher) Platform() string { return p.limits.Platform }

// Limits returns the publisher's content limits.
func (p *HTTPPublisher) Limits() Limits { return p.limits }

// Validate implements collab.Publisher.
func (p *HTTPPublisher) Validate(req collab.PublishRequest) error {
	return p.limits.Validate(req)
}

// Publish implements collab.Publisher.
func (p *HTTPPublisher) Publish(ctx context.Context, req collab.PublishRequest) (string, error) {
	op := p.limits.Platform + ".publish"

	data, err := p.media.Read(ctx, req.MediaPath)
	if err != nil {
		return "", task.Permanent(op, fmt.Errorf("read media: %w", err))
	}
	body := postRequest{
		Caption:   req.Caption,
		Media:     base64.StdEncoding.EncodeToString(data),
		MediaName: filepath.Base(req.MediaPath),
	}
	if !req.PublishAt.IsZero() {
		at := req.PublishAt.UTC()
		body.PublishAt = &at
	}

	var resp postResponse
	err = p.client.Do(ctx, op, http.MethodPost, p.path, body, &resp, http.Header{
		"Idempotency-Key": []string{req.IdempotencyKey},
	})
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		// Accepted without an id: retrying with the same key is safe.
		return "", task.Transient(op, errors.New("response carried no post id"))
	}
	return resp.ID, nil
}
