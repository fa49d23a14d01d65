package mcp

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func object(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// creativeProps are the parameters that shape generated content.
func creativeProps(extra map[string]any) map[string]any {
	props := map[string]any{
		"prompt":           str("Image prompt. Defaults to '{theme} content for {platform}'"),
		"enhance_prompt":   boolean("Rewrite the prompt with the local LLM before generating"),
		"style":            str("Art style: realistic, cartoon, abstract, etc."),
		"size":             str("Image size such as 1024x1024 or 1024x576"),
		"template":         str("Brand template: minimal, bold, elegant"),
		"add_logo":         boolean("Whether to add the company logo"),
		"tone":             str("Content tone: professional, casual, inspirational"),
		"include_hashtags": boolean("Whether to include hashtags"),
		"hashtag_count":    integer("Number of hashtags"),
		"max_length":       integer("Maximum caption length in characters"),
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func jobIDProps(extra map[string]any) map[string]any {
	props := map[string]any{"job_id": str("Job ID returned by create_social_post")}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func allTools() []Tool {
	return []Tool{
		{
			Name:        "enhance_prompt",
			Description: "Enhance a basic prompt into a detailed Stable Diffusion prompt using the local LLM.",
			InputSchema: object(map[string]any{
				"basic_prompt":     str("Simple description to enhance"),
				"style_preference": str("Preferred artistic style"),
			}, "basic_prompt"),
		},
		{
			Name: "create_social_post",
			Description: "Create the content job for a calendar slot (date, platform, theme) or return the job " +
				"that already owns it. The job generates an image, brands it, writes a caption and waits for review.",
			InputSchema: object(creativeProps(map[string]any{
				"date":       str("Slot date YYYY-MM-DD. Defaults to today"),
				"platform":   str("Target platform: instagram, twitter, linkedin"),
				"theme":      str("Content theme/topic"),
				"publish_at": str("Planned publish time, ISO 8601"),
			}), "theme", "platform"),
		},
		{
			Name:        "get_job_status",
			Description: "Get the stage, artifacts and errors of a content job.",
			InputSchema: object(jobIDProps(nil), "job_id"),
		},
		{
			Name: "revise_content",
			Description: "Change a job's parameters and regenerate it. A job mid-stage is revised when the " +
				"stage finishes.",
			InputSchema: object(creativeProps(jobIDProps(nil)), "job_id"),
		},
		{
			Name:        "approve_content",
			Description: "Approve a job awaiting review so it is published at its publish time.",
			InputSchema: object(jobIDProps(map[string]any{
				"publish_at": str("Publish time, ISO 8601. Defaults to the planned time or now"),
			}), "job_id"),
		},
		{
			Name:        "reject_content",
			Description: "Reject a job awaiting review. With revised parameters it is regenerated, otherwise cancelled.",
			InputSchema: object(creativeProps(jobIDProps(map[string]any{
				"reason": str("Why the content was rejected"),
			})), "job_id"),
		},
		{
			Name:        "cancel_content",
			Description: "Cancel a content job. A job mid-stage is cancelled when the stage finishes.",
			InputSchema: object(jobIDProps(nil), "job_id"),
		},
		{
			Name:        "resubmit_content",
			Description: "Start a new job for the slot of a failed or cancelled job, optionally with new parameters.",
			InputSchema: object(creativeProps(jobIDProps(nil)), "job_id"),
		},
		{
			Name:        "schedule_content",
			Description: "Approve reviewed content for posting at a time, and create jobs for any further platforms.",
			InputSchema: object(map[string]any{
				"content_id":    str("Job ID of the reviewed content"),
				"schedule_time": str("ISO 8601 datetime"),
				"platforms": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Target platforms",
				},
			}, "content_id", "schedule_time"),
		},
		{
			Name:        "get_content_calendar",
			Description: "View scheduled content and pipeline status.",
			InputSchema: object(map[string]any{
				"date_range": str("Date range: today, this_week, next_week, this_month"),
			}),
		},
	}
}
