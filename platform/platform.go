// Package platform holds the social platform publishers, their content
// limits and a registry resolving a slot's platform to its publisher.
package platform

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/collab"
)

// Well-known platform names.
const (
	Instagram = "instagram"
	Twitter   = "twitter"
	LinkedIn  = "linkedin"
)

// Limits are the content constraints of one platform.
type Limits struct {
	Platform    string
	MaxCaption  int
	MaxHashtags int
	// Size is the preferred image size, "WIDTHxHEIGHT".
	Size string
}

// KnownLimits returns the limits of a well-known platform.
func KnownLimits(name string) (Limits, bool) {
	switch strings.ToLower(name) {
	case Instagram:
		return Limits{Platform: Instagram, MaxCaption: 2200, MaxHashtags: 30, Size: "1024x1024"}, true
	case Twitter:
		return Limits{Platform: Twitter, MaxCaption: 280, Size: "1024x576"}, true
	case LinkedIn:
		return Limits{Platform: LinkedIn, MaxCaption: 3000, Size: "1024x576"}, true
	}
	return Limits{}, false
}

// Validate checks req against l.
func (l Limits) Validate(req collab.PublishRequest) error {
	var errs []error
	if strings.TrimSpace(req.MediaPath) == "" {
		errs = append(errs, errors.New("media is required"))
	}
	if strings.TrimSpace(req.Caption) == "" {
		errs = append(errs, errors.New("caption is required"))
	}
	if n := utf8.RuneCountInString(req.Caption); l.MaxCaption > 0 && n > l.MaxCaption {
		errs = append(errs, fmt.Errorf("caption has %d characters, %s allows %d", n, l.Platform, l.MaxCaption))
	}
	if n := CountHashtags(req.Caption); l.MaxHashtags > 0 && n > l.MaxHashtags {
		errs = append(errs, fmt.Errorf("caption has %d hashtags, %s allows %d", n, l.Platform, l.MaxHashtags))
	}
	if req.IdempotencyKey == "" {
		errs = append(errs, errors.New("idempotency key is required"))
	}
	return errors.Join(errs...)
}

// CountHashtags counts whitespace-separated words starting with '#'.
func CountHashtags(s string) int {
	n := 0
	for _, f := range strings.Fields(s) {
		if len(f) > 1 && f[0] == '#' {
			n++
		}
	}
	return n
}

// IdempotencyKey derives the publish key from the slot. Every job of the
// slot, including one resubmitted after an ambiguous publish, sends the same
// key, so the platform returns the first post instead of creating a second.
func IdempotencyKey(slotKey string) string {
	h := sha256.New()
	h.Write([]byte("dmagent/publish"))
	h.Write([]byte{0})
	h.Write([]byte(slotKey))
	return hex.EncodeToString(h.Sum(nil))
}

// ──────────────────────────────────────────────────
// Registry
// ──────────────────────────────────────────────────

// Registry maps platform names to publishers.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]collab.Publisher
}

// NewRegistry creates a registry holding pubs.
func NewRegistry(pubs ...collab.Publisher) *Registry {
	r := &Registry{publishers: make(map[string]collab.Publisher)}
	for _, p := range pubs {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the publisher for p.Platform().
func (r *Registry) Register(p collab.Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[strings.ToLower(p.Platform())] = p
}

// Get returns the publisher for name.
func (r *Registry) Get(name string) (collab.Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", dmagent.ErrUnknownPlatform, name)
	}
	return p, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Names returns the registered platform names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
