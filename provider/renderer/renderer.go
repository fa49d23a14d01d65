// Package renderer composes branded social assets from a generated image:
// a template frame in the brand colors and an optional logo overlay.
package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // decode jpeg sources
	"image/png"
	"strconv"
	"strings"

	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/task"
)

// Templates.
const (
	TemplateMinimal = "minimal"
	TemplateBold    = "bold"
	TemplateElegant = "elegant"
)

// Store reads sources and writes composed assets.
type Store interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Renderer implements collab.Composer.
type Renderer struct {
	store Store
	brand collab.BrandAssets
}

var _ collab.Composer = (*Renderer)(nil)

// New creates a Renderer. brand is used when a request carries no colors
// or logo of its own.
func New(store Store, brand collab.BrandAssets) *Renderer {
	return &Renderer{store: store, brand: brand}
}

// Compose implements collab.Composer.
func (r *Renderer) Compose(ctx context.Context, req collab.ComposeRequest) (string, error) {
	const op = "renderer.compose"

	tmpl := strings.ToLower(strings.TrimSpace(req.Template))
	if tmpl == "" {
		tmpl = TemplateMinimal
	}
	if tmpl != TemplateMinimal && tmpl != TemplateBold && tmpl != TemplateElegant {
		return "", task.Permanent(op, fmt.Errorf("unknown template %q", req.Template))
	}

	src, err := r.decode(ctx, req.ImagePath)
	if err != nil {
		return "", task.Permanent(op, fmt.Errorf("source image: %w", err))
	}
	brand := r.merge(req.Brand)
	primary, accent := brandColors(brand.Colors)

	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)
	frame(canvas, tmpl, primary, accent)

	if req.Logo && brand.LogoPath != "" {
		logo, err := r.decode(ctx, brand.LogoPath)
		if err != nil {
			return "", task.Permanent(op, fmt.Errorf("logo: %w", err))
		}
		overlay(canvas, logo)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return "", task.Permanent(op, fmt.Errorf("encode: %w", err))
	}
	key := fmt.Sprintf("composed/%s/%s_%s.png", req.JobID, req.Platform, tmpl)
	path, err := r.store.Write(ctx, key, buf.Bytes())
	if err != nil {
		return "", task.Transient(op, err)
	}
	return path, nil
}

func (r *Renderer) decode(ctx context.Context, path string) (image.Image, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	data, err := r.store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func (r *Renderer) merge(b collab.BrandAssets) collab.BrandAssets {
	if len(b.Colors) == 0 {
		b.Colors = r.brand.Colors
	}
	if b.LogoPath == "" {
		b.LogoPath = r.brand.LogoPath
	}
	return b
}

// frame draws the template decoration in place.
func frame(img *image.RGBA, tmpl string, primary, accent color.Color) {
	b := img.Bounds()
	switch tmpl {
	case TemplateBold:
		// Bottom band, 12% of the height.
		h := b.Dy() * 12 / 100
		draw.Draw(img, image.Rect(b.Min.X, b.Max.Y-h, b.Max.X, b.Max.Y), image.NewUniform(primary), image.Point{}, draw.Over)
		draw.Draw(img, image.Rect(b.Min.X, b.Max.Y-h, b.Max.X, b.Max.Y-h+max(1, h/10)), image.NewUniform(accent), image.Point{}, draw.Over)
	case TemplateElegant:
		// Inset hairline border.
		inset := min(b.Dx(), b.Dy()) / 25
		w := max(1, inset/8)
		u := image.NewUniform(accent)
		in := b.Inset(inset)
		draw.Draw(img, image.Rect(in.Min.X, in.Min.Y, in.Max.X, in.Min.Y+w), u, image.Point{}, draw.Over)
		draw.Draw(img, image.Rect(in.Min.X, in.Max.Y-w, in.Max.X, in.Max.Y), u, image.Point{}, draw.Over)
		draw.Draw(img, image.Rect(in.Min.X, in.Min.Y, in.Min.X+w, in.Max.Y), u, image.Point{}, draw.Over)
		draw.Draw(img, image.Rect(in.Max.X-w, in.Min.Y, in.Max.X, in.Max.Y), u, image.Point{}, draw.Over)
	}
}

// overlay places logo in the bottom-right corner, scaled to at most a fifth
// of the canvas width.
func overlay(img *image.RGBA, logo image.Image) {
	b := img.Bounds()
	target := b.Dx() / 5
	if target <= 0 {
		return
	}
	scaled := scale(logo, target)
	margin := b.Dx() / 40
	sb := scaled.Bounds()
	at := image.Pt(b.Max.X-sb.Dx()-margin, b.Max.Y-sb.Dy()-margin)
	draw.Draw(img, sb.Add(at), scaled, sb.Min, draw.Over)
}

// scale shrinks src to width w with nearest-neighbour sampling. Images
// already narrower are returned unchanged.
func scale(src image.Image, w int) image.Image {
	sb := src.Bounds()
	if sb.Dx() <= w {
		return src
	}
	h := max(1, sb.Dy()*w/sb.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		sy := sb.Min.Y + y*sb.Dy()/h
		for x := range w {
			dst.Set(x, y, src.At(sb.Min.X+x*sb.Dx()/w, sy))
		}
	}
	return dst
}

var (
	defaultPrimary = color.RGBA{R: 0x11, G: 0x11, B: 0x11, A: 0xff}
	defaultAccent  = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

func brandColors(colors []string) (primary, accent color.Color) {
	primary, accent = defaultPrimary, defaultAccent
	if len(colors) > 0 {
		if c, ok := ParseHex(colors[0]); ok {
			primary = c
		}
	}
	if len(colors) > 1 {
		if c, ok := ParseHex(colors[1]); ok {
			accent = c
		}
	}
	return primary, accent
}

// ParseHex parses "#RRGGBB" or "RRGGBB".
func ParseHex(s string) (color.RGBA, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}
