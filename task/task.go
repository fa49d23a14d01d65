package task

import (
	"context"
	"time"

	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/id"
)

// Kind names a collaborator call.
type Kind string

const (
	KindImage   Kind = "image.generate"
	KindCompose Kind = "design.compose"
	KindCaption Kind = "caption.generate"
	KindPublish Kind = "platform.publish"
)

// Kinds returns every task kind.
func Kinds() []Kind {
	return []Kind{KindImage, KindCompose, KindCaption, KindPublish}
}

// Call performs one attempt and returns the produced reference.
type Call func(ctx context.Context) (string, error)

// Task is one collaborator call for a job.
type Task struct {
	Kind  Kind
	JobID id.JobID
	// Target is the slot key or platform, used for logs and metrics.
	Target string
	// Attempt is the 1-indexed attempt number, set by the executor.
	Attempt int
	Call    Call
}

// Result is the outcome of a successful task.
type Result struct {
	Ref      string
	Attempts int
	Elapsed  time.Duration
}

// GenerateImage builds an image generation task.
func GenerateImage(jobID id.JobID, target string, g collab.ImageGenerator, req collab.ImageRequest) Task {
	return Task{Kind: KindImage, JobID: jobID, Target: target, Call: func(ctx context.Context) (string, error) {
		return g.Generate(ctx, req)
	}}
}

// Compose builds a composition task.
func Compose(jobID id.JobID, target string, c collab.Composer, req collab.ComposeRequest) Task {
	return Task{Kind: KindCompose, JobID: jobID, Target: target, Call: func(ctx context.Context) (string, error) {
		return c.Compose(ctx, req)
	}}
}

// WriteCaption builds a caption task.
func WriteCaption(jobID id.JobID, target string, c collab.Captioner, req collab.CaptionRequest) Task {
	return Task{Kind: KindCaption, JobID: jobID, Target: target, Call: func(ctx context.Context) (string, error) {
		return c.Caption(ctx, req)
	}}
}

// Publish builds a publish task. The request is validated on every attempt
// so that a limit violation fails permanently without calling the platform.
func Publish(jobID id.JobID, p collab.Publisher, req collab.PublishRequest) Task {
	return Task{Kind: KindPublish, JobID: jobID, Target: p.Platform(), Call: func(ctx context.Context) (string, error) {
		if err := p.Validate(req); err != nil {
			return "", Permanent("validate", err)
		}
		return p.Publish(ctx, req)
	}}
}
