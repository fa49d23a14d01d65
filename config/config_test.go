package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alimaamoun/DM-Agent/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != config.BackendMemory {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Content.MaxCaptionLength != 2200 {
		t.Errorf("MaxCaptionLength = %d, want 2200", cfg.Content.MaxCaptionLength)
	}
	if cfg.Content.HashtagCount != 15 {
		t.Errorf("HashtagCount = %d, want 15", cfg.Content.HashtagCount)
	}
	if cfg.Schedule.Timezone != "America/New_York" {
		t.Errorf("Timezone = %q", cfg.Schedule.Timezone)
	}
	if d := cfg.Content.Defaults(); d.Size != "1024x1024" || d.MaxLength != 2200 {
		t.Errorf("Defaults() = %+v", d)
	}
	if got := cfg.LogFormat(); got != "json" {
		t.Errorf("LogFormat() = %q, want json", got)
	}
	if cfg.Pipeline.StageTimeout >= cfg.Pipeline.LeaseTTL {
		t.Errorf("StageTimeout %s not shorter than LeaseTTL %s", cfg.Pipeline.StageTimeout, cfg.Pipeline.LeaseTTL)
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, "config.yml", `
debug: true
store:
  backend: redis
  redis_url: redis://cache:6379/1
content:
  image_size: 512x512
  tone: casual
schedule:
  calendar: ./calendar.yml
  lookahead: 12h
pipeline:
  workers: 8
  lock_wait: 3s
platforms:
  twitter:
    base_url: https://api.twitter.test
brand:
  colors: ["#112233", "#ffffff"]
`)
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("MAX_CAPTION_LENGTH", "280")
	t.Setenv("PIPELINE_LOCK_WAIT", "7s")
	t.Setenv("TWITTER_ACCESS_TOKEN", "secret")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"backend from file", cfg.Store.Backend, config.BackendRedis},
		{"redis url from file", cfg.Store.RedisURL, "redis://cache:6379/1"},
		{"size from file", cfg.Content.ImageSize, "512x512"},
		{"tone from file", cfg.Content.Tone, "casual"},
		{"template keeps default", cfg.Content.Template, "minimal"},
		{"lookahead from file", cfg.Schedule.Lookahead, 12 * time.Hour},
		{"workers from file", cfg.Pipeline.Workers, 8},
		{"env beats file", cfg.Pipeline.LockWait, 7 * time.Second},
		{"ollama host from env", cfg.Ollama.Host, "http://gpu-box:11434"},
		{"caption length from env", cfg.Content.MaxCaptionLength, 280},
		{"twitter token from env", cfg.Platforms.Twitter.AccessToken, "secret"},
		{"brand colors", len(cfg.Brand.Colors), 2},
		{"console in debug", cfg.LogFormat(), "console"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = "DMAGENT_TEST_ENV_FILE_TEMP_PATH"
	path := writeFile(t, ".env", "TEMP_PATH=/from/env/file\n"+key+"=1\n")
	t.Setenv("ENV_FILE", path)
	t.Setenv("TEMP_PATH", "")
	t.Cleanup(func() { os.Unsetenv(key) })

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if os.Getenv(key) != "1" {
		t.Fatalf("env file was not loaded")
	}
	// A variable already present in the environment is not replaced.
	if cfg.Paths.Temp != "./temp" {
		t.Errorf("Paths.Temp = %q, want default", cfg.Paths.Temp)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad yaml", file: "store: [", wantErr: "parse config"},
		{name: "bad duration", env: map[string]string{"PIPELINE_LOCK_WAIT": "soon"}, wantErr: "PIPELINE_LOCK_WAIT"},
		{name: "bad int", env: map[string]string{"MAX_CAPTION_LENGTH": "long"}, wantErr: "MAX_CAPTION_LENGTH"},
		{name: "unknown backend", env: map[string]string{"STORE_BACKEND": "sqlite"}, wantErr: "store.backend"},
		{name: "postgres without url", env: map[string]string{"STORE_BACKEND": "postgres"}, wantErr: "store.database_url"},
		{name: "bad timezone", env: map[string]string{"CONTENT_SCHEDULE_TIMEZONE": "Mars/Olympus"}, wantErr: "schedule.timezone"},
		{name: "bad cron", env: map[string]string{"SCHEDULE_CRON": "whenever"}, wantErr: "schedule.cron"},
		{name: "bad size", env: map[string]string{"DEFAULT_IMAGE_SIZE": "huge"}, wantErr: "content.image_size"},
		{name: "email without smtp", env: map[string]string{"APPROVAL_EMAIL": "boss@example.com"}, wantErr: "notify.smtp_addr"},
		{name: "relative webhook", env: map[string]string{"NOTIFY_WEBHOOK_URL": "/hooks"}, wantErr: "notify.webhook_url"},
		{name: "bad level", env: map[string]string{"LOG_LEVEL": "loud"}, wantErr: "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, "config.yml", tt.file)
			}
			_, err := config.Load(path)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load(absent) = %v, want ErrNotExist", err)
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.Workers = 0
	cfg.Pipeline.StageTimeout = cfg.Pipeline.LeaseTTL
	err := cfg.Validate()
	var ve *config.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Validate() = %v, want ValidationError", err)
	}
	for _, field := range []string{"pipeline.workers", "pipeline.stage_timeout"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestPath(t *testing.T) {
	if got := config.Path("config.yml"); got != "config.yml" {
		t.Errorf("Path() = %q, want default", got)
	}
	t.Setenv("CONFIG_PATH", "/etc/dmagent.yml")
	if got := config.Path("config.yml"); got != "/etc/dmagent.yml" {
		t.Errorf("Path() = %q, want CONFIG_PATH", got)
	}
}
