package gateway

import "github.com/alimaamoun/DM-Agent/job"

// Patch holds optional parameter changes. Nil fields keep the current value.
type Patch struct {
	Prompt       *string `json:"prompt,omitempty"`
	Enhance      *bool   `json:"enhance,omitempty"`
	Style        *string `json:"style,omitempty"`
	Size         *string `json:"size,omitempty"`
	Template     *string `json:"template,omitempty"`
	Logo         *bool   `json:"logo,omitempty"`
	Tone         *string `json:"tone,omitempty"`
	Hashtags     *bool   `json:"hashtags,omitempty"`
	HashtagCount *int    `json:"hashtag_count,omitempty"`
	MaxLength    *int    `json:"max_length,omitempty"`
}

// PatchFrom returns a Patch that sets every field to the value in p.
func PatchFrom(p job.Params) Patch {
	return Patch{
		Prompt:       &p.Prompt,
		Enhance:      &p.Enhance,
		Style:        &p.Style,
		Size:         &p.Size,
		Template:     &p.Template,
		Logo:         &p.Logo,
		Tone:         &p.Tone,
		Hashtags:     &p.Hashtags,
		HashtagCount: &p.HashtagCount,
		MaxLength:    &p.MaxLength,
	}
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply returns base with the set fields of p replacing their values.
func (p Patch) Apply(base job.Params) job.Params {
	if p.Prompt != nil {
		base.Prompt = *p.Prompt
	}
	if p.Enhance != nil {
		base.Enhance = *p.Enhance
	}
	if p.Style != nil {
		base.Style = *p.Style
	}
	if p.Size != nil {
		base.Size = *p.Size
	}
	if p.Template != nil {
		base.Template = *p.Template
	}
	if p.Logo != nil {
		base.Logo = *p.Logo
	}
	if p.Tone != nil {
		base.Tone = *p.Tone
	}
	if p.Hashtags != nil {
		base.Hashtags = *p.Hashtags
	}
	if p.HashtagCount != nil {
		base.HashtagCount = *p.HashtagCount
	}
	if p.MaxLength != nil {
		base.MaxLength = *p.MaxLength
	}
	return base
}
