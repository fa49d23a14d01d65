package engine

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/config"
	"github.com/alimaamoun/DM-Agent/pipeline"
	"github.com/alimaamoun/DM-Agent/platform"
	"github.com/alimaamoun/DM-Agent/provider/diffusion"
	"github.com/alimaamoun/DM-Agent/provider/httpx"
	"github.com/alimaamoun/DM-Agent/provider/ollama"
	"github.com/alimaamoun/DM-Agent/provider/renderer"
	"github.com/alimaamoun/DM-Agent/storage"
)

// buildCollaborators assembles the stage collaborators from the
// configuration and fills in whatever WithCollaborators left empty.
func (e *Engine) buildCollaborators() (pipeline.Collaborators, error) {
	var c pipeline.Collaborators
	if e.collaborators != nil {
		c = *e.collaborators
	}
	cfg := e.cfg

	output, err := storage.NewFileStore(cfg.Paths.Output)
	if err != nil {
		return c, err
	}

	if c.Images == nil || c.Captioner == nil {
		e.ollama = ollama.New(
			httpx.New(cfg.Ollama.Host, httpx.WithHTTPClient(&http.Client{Timeout: cfg.Ollama.Timeout})),
			ollama.WithCaptionModel(cfg.Ollama.CaptionModel),
			ollama.WithEnhancerModel(cfg.Ollama.EnhancerModel),
			ollama.WithLogger(e.logger),
		)
	}
	if c.Images == nil {
		c.Images = diffusion.New(
			httpx.New(cfg.Diffusion.URL, diffusionClientOptions(cfg.Diffusion)...),
			output,
			diffusion.WithEnhancer(e.ollama),
			diffusion.WithSteps(cfg.Diffusion.Steps),
			diffusion.WithGuidance(cfg.Diffusion.Guidance),
			diffusion.WithNegativePrompt(cfg.Diffusion.NegativePrompt),
			diffusion.WithLogger(e.logger),
		)
	}
	if c.Captioner == nil {
		c.Captioner = e.ollama
	}

	// Composed files land in the output tree; brand assets are read from
	// the asset tree.
	assets, err := storage.NewFileStore(cfg.Paths.Assets)
	if err != nil {
		return c, err
	}
	media := storage.NewUnion(output, assets)
	if c.Composer == nil {
		c.Composer = renderer.New(media, brandAssets(cfg.Brand, assets.BasePath()))
	}

	if reg, ok := c.Publishers.(*platform.Registry); ok {
		e.platforms = reg
	} else {
		e.platforms = platform.NewRegistry(configuredPublishers(cfg.Platforms, output)...)
	}
	for _, p := range e.publishers {
		e.platforms.Register(p)
	}
	c.Publishers = e.platforms
	if len(e.platforms.Names()) == 0 {
		return c, fmt.Errorf("dmagent/engine: no platforms configured")
	}
	return c, nil
}

func diffusionClientOptions(cfg config.DiffusionConfig) []httpx.Option {
	opts := []httpx.Option{httpx.WithHTTPClient(&http.Client{Timeout: cfg.Timeout})}
	if cfg.Token != "" {
		opts = append(opts, httpx.WithBearer(cfg.Token))
	}
	return opts
}

// configuredPublishers returns an HTTP publisher for every platform with a
// base URL and an in-memory publisher for the rest.
func configuredPublishers(cfg config.PlatformsConfig, media platform.MediaReader) []collab.Publisher {
	client := func(base, token string) *httpx.Client {
		var opts []httpx.Option
		if token != "" {
			opts = append(opts, httpx.WithBearer(token))
		}
		return httpx.New(base, opts...)
	}

	var pubs []collab.Publisher
	if p := cfg.Instagram; p.BaseURL != "" {
		pubs = append(pubs, platform.NewInstagram(client(p.BaseURL, p.AccessToken), media))
	} else {
		pubs = append(pubs, platform.NewMemory(platform.Instagram))
	}
	if p := cfg.Twitter; p.BaseURL != "" {
		pubs = append(pubs, platform.NewTwitter(client(p.BaseURL, p.AccessToken), media))
	} else {
		pubs = append(pubs, platform.NewMemory(platform.Twitter))
	}
	if p := cfg.LinkedIn; p.BaseURL != "" {
		pubs = append(pubs, platform.NewLinkedIn(client(p.BaseURL, p.AccessToken), media))
	} else {
		pubs = append(pubs, platform.NewMemory(platform.LinkedIn))
	}
	return pubs
}

// brandAssets resolves a relative logo path against the asset directory.
func brandAssets(b collab.BrandAssets, assetDir string) collab.BrandAssets {
	if b.LogoPath != "" && !filepath.IsAbs(b.LogoPath) {
		b.LogoPath = filepath.Join(assetDir, b.LogoPath)
	}
	return b
}
