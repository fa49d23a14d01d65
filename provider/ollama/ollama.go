// Package ollama implements prompt enhancement and captioning on top of an
// Ollama server's generate API.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/provider/httpx"
	"github.com/alimaamoun/DM-Agent/task"
)

// Default model names.
const (
	DefaultCaptionModel  = "llama3:latest"
	DefaultEnhancerModel = "brxce/stable-diffusion-prompt-generator"
)

// fallbackSuffix is appended to the basic prompt when enhancement fails.
const fallbackSuffix = ", high quality, detailed, professional photography"

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Client talks to Ollama.
type Client struct {
	http          *httpx.Client
	captionModel  string
	enhancerModel string
	logger        *slog.Logger
}

var (
	_ collab.Captioner      = (*Client)(nil)
	_ collab.PromptEnhancer = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithCaptionModel sets the model used for captions.
func WithCaptionModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.captionModel = m
		}
	}
}

// WithEnhancerModel sets the model used for prompt enhancement.
func WithEnhancerModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.enhancerModel = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client.
func New(hc *httpx.Client, opts ...Option) *Client {
	c := &Client{
		http:          hc,
		captionModel:  DefaultCaptionModel,
		enhancerModel: DefaultEnhancerModel,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) generate(ctx context.Context, op, model, prompt string) (string, error) {
	var resp generateResponse
	if err := c.http.Do(ctx, op, http.MethodPost, "/api/generate", generateRequest{
		Model:  model,
		Prompt: prompt,
	}, &resp, nil); err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.Response)
	if out == "" {
		return "", task.Transient(op, errors.New("empty response"))
	}
	return out, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// CheckModels reports an error naming every model in required that the
// server has not pulled. A name without a tag matches ":latest".
func (c *Client) CheckModels(ctx context.Context, required ...string) error {
	var resp tagsResponse
	if err := c.http.Do(ctx, "ollama.tags", http.MethodGet, "/api/tags", nil, &resp, nil); err != nil {
		return err
	}
	have := make(map[string]bool, len(resp.Models))
	for _, m := range resp.Models {
		have[modelName(m.Name)] = true
	}
	var missing []string
	for _, m := range required {
		if m != "" && !have[modelName(m)] {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("dmagent/ollama: models not available: %s", strings.Join(missing, ", "))
	}
	return nil
}

func modelName(s string) string {
	if !strings.Contains(s, ":") {
		return s + ":latest"
	}
	return s
}

// Enhance implements collab.PromptEnhancer. It never fails on a model
// error: the basic prompt with quality modifiers is returned instead. A
// cancelled context is still reported.
func (c *Client) Enhance(ctx context.Context, prompt, style string) (string, error) {
	if style == "" {
		style = "creative and professional"
	}
	req := fmt.Sprintf(`Transform this basic description into a detailed, artistic prompt for Stable Diffusion:

Basic idea: %s
Style preference: %s

Make it detailed with artistic elements, lighting, composition, and quality modifiers.`, prompt, style)

	out, err := c.generate(ctx, "ollama.enhance", c.enhancerModel, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("prompt enhancement failed, using fallback", slog.Any("error", err))
		return prompt + fallbackSuffix, nil
	}
	return out, nil
}

// Caption implements collab.Captioner. The result is trimmed to MaxLength
// characters.
func (c *Client) Caption(ctx context.Context, req collab.CaptionRequest) (string, error) {
	const op = "ollama.caption"
	if strings.TrimSpace(req.Theme) == "" {
		return "", task.Permanent(op, errors.New("theme is required"))
	}
	out, err := c.generate(ctx, op, c.captionModel, captionPrompt(req))
	if err != nil {
		return "", err
	}
	return Truncate(cleanCaption(out), req.MaxLength), nil
}

func captionPrompt(req collab.CaptionRequest) string {
	tone := req.Tone
	if tone == "" {
		tone = "professional"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s social media caption for %s about: %s.\n", tone, req.Platform, req.Theme)
	if req.MaxLength > 0 {
		fmt.Fprintf(&b, "Keep it under %d characters including hashtags.\n", req.MaxLength)
	}
	if req.Hashtags && req.HashtagCount > 0 {
		fmt.Fprintf(&b, "End with %d relevant hashtags.\n", req.HashtagCount)
	} else {
		b.WriteString("Do not use hashtags.\n")
	}
	b.WriteString("Reply with the caption text only.")
	return b.String()
}

// cleanCaption strips wrapping quotes models like to add.
func cleanCaption(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// Truncate shortens s to at most max runes, preferring a word boundary.
// max <= 0 means no limit.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)[:max]
	cut := string(runes)
	if i := strings.LastIndexAny(cut, " \n"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
