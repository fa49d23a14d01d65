// Package config loads the application configuration from a YAML file,
// .env files and environment variables.
//
// Sources apply in this order, later ones winning:
//
//  1. [Default]
//  2. the YAML file, when a path is given
//  3. environment variables named by the `env` struct tags, after
//     ENV_FILE or .env.local and .env have been loaded into the process
//     environment
//
// Example config.yml:
//
//	store:
//	  backend: redis
//	  redis_url: redis://localhost:6379/0
//	schedule:
//	  calendar: ./calendar.yml
//	  timezone: America/New_York
//	platforms:
//	  instagram:
//	    base_url: https://graph.example.com
package config

import (
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/job"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the application configuration.
type Config struct {
	Debug     bool               `yaml:"debug" env:"DEBUG"`
	Log       LogConfig          `yaml:"log"`
	HTTP      HTTPConfig         `yaml:"http"`
	Store     StoreConfig        `yaml:"store"`
	Ollama    OllamaConfig       `yaml:"ollama"`
	Diffusion DiffusionConfig    `yaml:"diffusion"`
	Content   ContentConfig      `yaml:"content"`
	Schedule  ScheduleConfig     `yaml:"schedule"`
	Paths     PathsConfig        `yaml:"paths"`
	Brand     collab.BrandAssets `yaml:"brand"`
	Notify    NotifyConfig       `yaml:"notify"`
	Platforms PlatformsConfig    `yaml:"platforms"`
	Pipeline  PipelineConfig     `yaml:"pipeline"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
	// Format is json or console. Empty picks console when Debug is set.
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// HTTPConfig holds the HTTP API settings.
type HTTPConfig struct {
	Addr         string        `yaml:"addr" env:"HTTP_ADDR"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT"`
}

// StoreConfig selects and configures the job store.
type StoreConfig struct {
	Backend     string `yaml:"backend" env:"STORE_BACKEND"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
	RedisPrefix string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
}

// OllamaConfig configures the captioning and prompt-enhancement models.
type OllamaConfig struct {
	Host          string        `yaml:"host" env:"OLLAMA_HOST"`
	CaptionModel  string        `yaml:"caption_model" env:"CAPTION_MODEL"`
	TextModel     string        `yaml:"text_model" env:"TEXT_MODEL"`
	EnhancerModel string        `yaml:"enhancer_model" env:"PROMPT_ENHANCER_MODEL"`
	Timeout       time.Duration `yaml:"timeout" env:"OLLAMA_TIMEOUT"`
}

// DiffusionConfig configures the image generation server.
type DiffusionConfig struct {
	URL            string        `yaml:"url" env:"DIFFUSION_URL"`
	Token          string        `yaml:"token" env:"HUGGINGFACE_TOKEN"`
	Steps          int           `yaml:"steps" env:"DIFFUSION_STEPS"`
	Guidance       float64       `yaml:"guidance" env:"DIFFUSION_GUIDANCE"`
	NegativePrompt string        `yaml:"negative_prompt" env:"DIFFUSION_NEGATIVE_PROMPT"`
	Timeout        time.Duration `yaml:"timeout" env:"DIFFUSION_TIMEOUT"`
}

// ContentConfig holds the parameter defaults applied to new jobs.
type ContentConfig struct {
	ImageSize        string `yaml:"image_size" env:"DEFAULT_IMAGE_SIZE"`
	Style            string `yaml:"style" env:"DEFAULT_STYLE"`
	Template         string `yaml:"template" env:"DEFAULT_TEMPLATE"`
	Tone             string `yaml:"tone" env:"DEFAULT_TONE"`
	HashtagCount     int    `yaml:"hashtag_count" env:"DEFAULT_HASHTAG_COUNT"`
	MaxCaptionLength int    `yaml:"max_caption_length" env:"MAX_CAPTION_LENGTH"`
}

// Defaults returns the job parameter defaults.
func (c ContentConfig) Defaults() job.Defaults {
	return job.Defaults{
		Style:        c.Style,
		Size:         c.ImageSize,
		Template:     c.Template,
		Tone:         c.Tone,
		HashtagCount: c.HashtagCount,
		MaxLength:    c.MaxCaptionLength,
	}
}

// ScheduleConfig configures the scheduled trigger.
type ScheduleConfig struct {
	// Calendar is the path of the YAML content calendar. Empty disables the
	// scheduler.
	Calendar  string        `yaml:"calendar" env:"CONTENT_CALENDAR"`
	Timezone  string        `yaml:"timezone" env:"CONTENT_SCHEDULE_TIMEZONE"`
	Cron      string        `yaml:"cron" env:"SCHEDULE_CRON"`
	Lookahead time.Duration `yaml:"lookahead" env:"SCHEDULE_LOOKAHEAD"`
	// LeaderTTL is how long the scheduler leadership lease lives between
	// ticks. It must exceed the tick interval.
	LeaderTTL time.Duration `yaml:"leader_ttl" env:"SCHEDULE_LEADER_TTL"`
}

// Location loads the schedule timezone.
func (c ScheduleConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	Assets string `yaml:"assets" env:"LOCAL_ASSET_PATH"`
	Output string `yaml:"output" env:"OUTPUT_PATH"`
	Temp   string `yaml:"temp" env:"TEMP_PATH"`
}

// NotifyConfig configures the notification sinks. Without an approval
// email summaries are only logged.
type NotifyConfig struct {
	ApprovalEmail string `yaml:"approval_email" env:"APPROVAL_EMAIL"`
	SMTPAddr      string `yaml:"smtp_addr" env:"SMTP_ADDR"`
	SMTPUsername  string `yaml:"smtp_username" env:"SMTP_USERNAME"`
	SMTPPassword  string `yaml:"smtp_password" env:"SMTP_PASSWORD"`
	From          string `yaml:"from" env:"SMTP_FROM"`

	// WebhookURL receives lifecycle events as signed JSON posts.
	WebhookURL    string `yaml:"webhook_url" env:"NOTIFY_WEBHOOK_URL"`
	WebhookSecret string `yaml:"webhook_secret" env:"NOTIFY_WEBHOOK_SECRET"`
}

// PlatformsConfig holds per-platform API settings. A platform without a
// base URL is served by an in-memory publisher that records posts.
type PlatformsConfig struct {
	Instagram InstagramConfig `yaml:"instagram"`
	Twitter   TwitterConfig   `yaml:"twitter"`
	LinkedIn  LinkedInConfig  `yaml:"linkedin"`
}

// InstagramConfig is the Instagram Graph API endpoint and token.
type InstagramConfig struct {
	BaseURL     string `yaml:"base_url" env:"INSTAGRAM_BASE_URL"`
	AccessToken string `yaml:"access_token" env:"INSTAGRAM_ACCESS_TOKEN"`
}

// TwitterConfig carries the credentials the Twitter API issues. Posting
// uses the bearer access token.
type TwitterConfig struct {
	BaseURL      string `yaml:"base_url" env:"TWITTER_BASE_URL"`
	APIKey       string `yaml:"api_key" env:"TWITTER_API_KEY"`
	APISecret    string `yaml:"api_secret" env:"TWITTER_API_SECRET"`
	AccessToken  string `yaml:"access_token" env:"TWITTER_ACCESS_TOKEN"`
	AccessSecret string `yaml:"access_secret" env:"TWITTER_ACCESS_SECRET"`
}

// LinkedInConfig is the LinkedIn API endpoint and token.
type LinkedInConfig struct {
	BaseURL     string `yaml:"base_url" env:"LINKEDIN_BASE_URL"`
	AccessToken string `yaml:"access_token" env:"LINKEDIN_ACCESS_TOKEN"`
}

// PipelineConfig holds the orchestrator tunables.
type PipelineConfig struct {
	Workers           int           `yaml:"workers" env:"PIPELINE_WORKERS"`
	QueueSize         int           `yaml:"queue_size" env:"PIPELINE_QUEUE_SIZE"`
	SubmitWait        time.Duration `yaml:"submit_wait" env:"PIPELINE_SUBMIT_WAIT"`
	MaxRetries        int           `yaml:"max_retries" env:"PIPELINE_MAX_RETRIES"`
	StageTimeout      time.Duration `yaml:"stage_timeout" env:"PIPELINE_STAGE_TIMEOUT"`
	LeaseTTL          time.Duration `yaml:"lease_ttl" env:"PIPELINE_LEASE_TTL"`
	LockWait          time.Duration `yaml:"lock_wait" env:"PIPELINE_LOCK_WAIT"`
	MaxReviewWait     time.Duration `yaml:"max_review_wait" env:"PIPELINE_MAX_REVIEW_WAIT"`
	PollInterval      time.Duration `yaml:"poll_interval" env:"PIPELINE_POLL_INTERVAL"`
	RunnerConcurrency int           `yaml:"runner_concurrency" env:"PIPELINE_RUNNER_CONCURRENCY"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"PIPELINE_SHUTDOWN_TIMEOUT"`
	// PublishRate bounds publish calls per second across all platforms.
	// Zero disables the limit.
	PublishRate float64 `yaml:"publish_rate" env:"PIPELINE_PUBLISH_RATE"`
}

// Orchestrator converts the pipeline settings to the root Config.
func (p PipelineConfig) Orchestrator() dmagent.Config {
	return dmagent.Config{
		Workers:           p.Workers,
		QueueSize:         p.QueueSize,
		SubmitWait:        p.SubmitWait,
		MaxRetries:        p.MaxRetries,
		LeaseTTL:          p.LeaseTTL,
		LockWait:          p.LockWait,
		MaxReviewWait:     p.MaxReviewWait,
		PollInterval:      p.PollInterval,
		RunnerConcurrency: p.RunnerConcurrency,
		ShutdownTimeout:   p.ShutdownTimeout,
	}
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	orch := dmagent.DefaultConfig()
	return Config{
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend:     BackendMemory,
			RedisURL:    "redis://localhost:6379/0",
			RedisPrefix: "dmagent:",
		},
		Ollama: OllamaConfig{
			Host:          "http://localhost:11434",
			CaptionModel:  "llama3:latest",
			TextModel:     "mistral:latest",
			EnhancerModel: "brxce/stable-diffusion-prompt-generator",
			Timeout:       2 * time.Minute,
		},
		Diffusion: DiffusionConfig{
			URL:      "http://localhost:7860",
			Steps:    30,
			Guidance: 7.0,
			Timeout:  5 * time.Minute,
		},
		Content: ContentConfig{
			ImageSize:        "1024x1024",
			Style:            "photorealistic",
			Template:         "minimal",
			Tone:             "professional",
			HashtagCount:     15,
			MaxCaptionLength: 2200,
		},
		Schedule: ScheduleConfig{
			Timezone:  "America/New_York",
			Cron:      "@every 1m",
			Lookahead: 24 * time.Hour,
			LeaderTTL: 5 * time.Minute,
		},
		Paths: PathsConfig{
			Assets: "./assets",
			Output: "./output",
			Temp:   "./temp",
		},
		Notify: NotifyConfig{From: "dm-agent@localhost"},
		Pipeline: PipelineConfig{
			Workers:           orch.Workers,
			QueueSize:         orch.QueueSize,
			SubmitWait:        orch.SubmitWait,
			MaxRetries:        orch.MaxRetries,
			StageTimeout:      4 * time.Minute,
			LeaseTTL:          orch.LeaseTTL,
			LockWait:          orch.LockWait,
			MaxReviewWait:     orch.MaxReviewWait,
			PollInterval:      orch.PollInterval,
			RunnerConcurrency: orch.RunnerConcurrency,
			ShutdownTimeout:   orch.ShutdownTimeout,
		},
	}
}
