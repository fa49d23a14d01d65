// Package collab defines the external collaborators the pipeline calls:
// image synthesis, branded composition, captioning and platform publishing.
//
// Implementations classify their failures with task.Transient and
// task.Permanent so the executor knows what to retry.
package collab

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ImageRequest asks for one generated image.
type ImageRequest struct {
	JobID  string
	Prompt string
	Style  string
	// Size is "WIDTHxHEIGHT", for example "1024x1024".
	Size string
	// Enhance asks the generator to run the prompt through its enhancer.
	Enhance bool
}

// ImageGenerator synthesizes an image and returns the path it was written to.
type ImageGenerator interface {
	Generate(ctx context.Context, req ImageRequest) (string, error)
}

// PromptEnhancer rewrites a short prompt into a detailed one.
type PromptEnhancer interface {
	Enhance(ctx context.Context, prompt, style string) (string, error)
}

// BrandAssets is the branding applied during composition.
type BrandAssets struct {
	LogoPath   string   `json:"logo_path,omitempty" yaml:"logo_path"`
	Colors     []string `json:"colors,omitempty" yaml:"colors"`
	Font       string   `json:"font,omitempty" yaml:"font"`
	Watermark  string   `json:"watermark,omitempty" yaml:"watermark"`
	CompanyURL string   `json:"company_url,omitempty" yaml:"company_url"`
}

// ComposeRequest asks for a branded layout around an image.
type ComposeRequest struct {
	JobID     string
	ImagePath string
	Template  string
	Platform  string
	Logo      bool
	Brand     BrandAssets
}

// Composer renders a branded asset and returns its path.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (string, error)
}

// CaptionRequest asks for a caption bounded by MaxLength characters.
type CaptionRequest struct {
	JobID        string
	Theme        string
	Platform     string
	Tone         string
	MaxLength    int
	Hashtags     bool
	HashtagCount int
}

// Captioner writes caption text.
type Captioner interface {
	Caption(ctx context.Context, req CaptionRequest) (string, error)
}

// PublishRequest asks a platform to post a composed asset.
type PublishRequest struct {
	MediaPath string
	Caption   string
	// IdempotencyKey is stable for one slot; a second call with the same
	// key returns the first call's post id.
	IdempotencyKey string
	PublishAt      time.Time
}

// Publisher posts content to one platform.
type Publisher interface {
	// Platform returns the lower-case platform name, e.g. "instagram".
	Platform() string
	// Validate checks the request against platform limits without calling
	// the platform.
	Validate(req PublishRequest) error
	// Publish posts the content and returns the platform post id.
	Publish(ctx context.Context, req PublishRequest) (string, error)
}

// ParseSize parses "WIDTHxHEIGHT".
func ParseSize(size string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(size)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WIDTHxHEIGHT", size)
	}
	if width, err = strconv.Atoi(w); err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("size %q: bad width", size)
	}
	if height, err = strconv.Atoi(h); err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("size %q: bad height", size)
	}
	return width, height, nil
}
