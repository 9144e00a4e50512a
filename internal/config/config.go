// Package config loads the orchestrator's runtime configuration from
// the environment (and an optional config file), following the
// viper-based pattern used across the reference stack: SetDefault for
// every key, AutomaticEnv so operators never have to touch a file,
// and an optional YAML file for anyone who wants one.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable named in the external interface's
// configuration table.
type Config struct {
	AudiosDir          string
	VideosDir          string
	TranscriptionsDir  string
	TaskStorePath      string
	LogFile            string
	HTTPAddr           string
	MaxConcurrentTasks int
	TaskTimeout        time.Duration
	MaxAudioBytes      int64
	MaxVideoBytes      int64
	ExtractorTimeout   time.Duration
	VersionModel       string
	ForceCPU           bool
	JanitorInterval    time.Duration
	TaskRetention      time.Duration
	UploadIdleTimeout  time.Duration
}

// Load reads configuration from environment variables, an optional
// config.yaml in the working directory or ./config, and finally
// built-in defaults, in that order of precedence (env highest).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	v.SetDefault("audios_dir", "./public/audios")
	v.SetDefault("videos_dir", "./public/videos")
	v.SetDefault("transcriptions_dir", "./public/transcriptions")
	// task_store_path has no independent default: it lives inside
	// transcriptions_dir per spec's on-disk layout, and is only
	// resolved once transcriptions_dir itself is known (below).
	v.SetDefault("task_store_path", "")
	v.SetDefault("log_file", "")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("max_concurrent_tasks", 3)
	v.SetDefault("task_timeout_seconds", 600)
	v.SetDefault("max_audio_bytes", 104_857_600)
	v.SetDefault("max_video_bytes", 524_288_000)
	v.SetDefault("extractor_timeout_seconds", 600)
	v.SetDefault("version_model", "turbo")
	v.SetDefault("force_cpu", false)
	v.SetDefault("janitor_interval_seconds", 300)
	v.SetDefault("task_retention_hours", 168)
	v.SetDefault("upload_idle_timeout_seconds", 60)

	// Optional; absence of a config file is not an error.
	_ = v.ReadInConfig()

	transcriptionsDir := v.GetString("transcriptions_dir")
	taskStorePath := v.GetString("task_store_path")
	if taskStorePath == "" {
		taskStorePath = filepath.Join(transcriptionsDir, "tasks.json")
	}

	cfg := &Config{
		AudiosDir:          v.GetString("audios_dir"),
		VideosDir:          v.GetString("videos_dir"),
		TranscriptionsDir:  transcriptionsDir,
		TaskStorePath:      taskStorePath,
		LogFile:            v.GetString("log_file"),
		HTTPAddr:           v.GetString("http_addr"),
		MaxConcurrentTasks: v.GetInt("max_concurrent_tasks"),
		TaskTimeout:        time.Duration(v.GetInt64("task_timeout_seconds")) * time.Second,
		MaxAudioBytes:      v.GetInt64("max_audio_bytes"),
		MaxVideoBytes:      v.GetInt64("max_video_bytes"),
		ExtractorTimeout:   time.Duration(v.GetInt64("extractor_timeout_seconds")) * time.Second,
		VersionModel:       v.GetString("version_model"),
		ForceCPU:           v.GetBool("force_cpu"),
		JanitorInterval:    time.Duration(v.GetInt64("janitor_interval_seconds")) * time.Second,
		TaskRetention:      time.Duration(v.GetInt64("task_retention_hours")) * time.Hour,
		UploadIdleTimeout:  time.Duration(v.GetInt64("upload_idle_timeout_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AudiosDir == "" || c.TranscriptionsDir == "" || c.VideosDir == "" || c.TaskStorePath == "" {
		return fmt.Errorf("config: audios_dir, videos_dir, transcriptions_dir and task_store_path must not be empty")
	}
	if c.MaxConcurrentTasks < 1 {
		return fmt.Errorf("config: max_concurrent_tasks must be >= 1, got %d", c.MaxConcurrentTasks)
	}
	if c.MaxAudioBytes <= 0 || c.MaxVideoBytes <= 0 {
		return fmt.Errorf("config: max_audio_bytes and max_video_bytes must be positive")
	}
	if c.ExtractorTimeout <= 0 || c.TaskTimeout <= 0 {
		return fmt.Errorf("config: extractor and task timeouts must be positive")
	}
	return nil
}

// QueueDepth is the Scheduler's bounded admission queue size, fixed
// at 16x the concurrency ceiling per spec.
func (c *Config) QueueDepth() int {
	return c.MaxConcurrentTasks * 16
}
