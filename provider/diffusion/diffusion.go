// Package diffusion generates images through a Stable Diffusion HTTP server
// exposing the txt2img API.
package diffusion

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/provider/httpx"
	"github.com/alimaamoun/DM-Agent/task"
)

// Defaults for generation.
const (
	DefaultSteps    = 30
	DefaultGuidance = 7.0
)

// Writer persists image bytes and returns the stored path.
type Writer interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	BatchSize      int     `json:"batch_size"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

// Generator implements collab.ImageGenerator.
type Generator struct {
	client   *httpx.Client
	out      Writer
	enhancer collab.PromptEnhancer
	steps    int
	guidance float64
	negative string
	logger   *slog.Logger
}

var _ collab.ImageGenerator = (*Generator)(nil)

// Option configures a Generator.
type Option func(*Generator)

// WithEnhancer sets the prompt enhancer used for requests with Enhance set.
func WithEnhancer(e collab.PromptEnhancer) Option {
	return func(g *Generator) { g.enhancer = e }
}

// WithSteps sets the number of inference steps.
func WithSteps(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.steps = n
		}
	}
}

// WithGuidance sets the classifier-free guidance scale.
func WithGuidance(scale float64) Option {
	return func(g *Generator) {
		if scale > 0 {
			g.guidance = scale
		}
	}
}

// WithNegativePrompt sets a negative prompt applied to every request.
func WithNegativePrompt(p string) Option {
	return func(g *Generator) { g.negative = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New creates a Generator that writes images through out.
func New(client *httpx.Client, out Writer, opts ...Option) *Generator {
	g := &Generator{
		client:   client,
		out:      out,
		steps:    DefaultSteps,
		guidance: DefaultGuidance,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate implements collab.ImageGenerator.
func (g *Generator) Generate(ctx context.Context, req collab.ImageRequest) (string, error) {
	const op = "diffusion.txt2img"

	width, height, err := collab.ParseSize(req.Size)
	if err != nil {
		return "", task.Permanent(op, err)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", task.Permanent(op, errors.New("prompt is required"))
	}
	prompt = g.prompt(ctx, prompt, req)

	var resp txt2imgResponse
	err = g.client.Do(ctx, op, http.MethodPost, "/sdapi/v1/txt2img", txt2imgRequest{
		Prompt:         prompt,
		NegativePrompt: g.negative,
		Width:          width,
		Height:         height,
		Steps:          g.steps,
		CFGScale:       g.guidance,
		BatchSize:      1,
	}, &resp, nil)
	if err != nil {
		return "", err
	}
	if len(resp.Images) == 0 {
		return "", task.Transient(op, errors.New("no image returned"))
	}
	data, err := base64.StdEncoding.DecodeString(stripDataURL(resp.Images[0]))
	if err != nil {
		return "", task.Permanent(op, fmt.Errorf("decode image: %w", err))
	}

	key := fmt.Sprintf("images/%s/generated_%dx%d.png", req.JobID, width, height)
	path, err := g.out.Write(ctx, key, data)
	if err != nil {
		return "", task.Transient(op, err)
	}
	g.logger.Debug("image generated",
		slog.String("job_id", req.JobID),
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return path, nil
}

// prompt applies enhancement or the style suffix. A failing enhancer never
// fails the generation; it falls back to its own default.
func (g *Generator) prompt(ctx context.Context, prompt string, req collab.ImageRequest) string {
	if req.Enhance && g.enhancer != nil {
		enhanced, err := g.enhancer.Enhance(ctx, prompt, req.Style)
		if err == nil && strings.TrimSpace(enhanced) != "" {
			return enhanced
		}
		g.logger.Warn("prompt enhancement skipped", slog.String("job_id", req.JobID), slog.Any("error", err))
		return prompt
	}
	if req.Style != "" {
		return fmt.Sprintf("%s, %s style", prompt, req.Style)
	}
	return prompt
}

func stripDataURL(s string) string {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		return s[i+1:]
	}
	return s
}
