package config

// Config is the whole application configuration. Secrets (platform
// credentials, API keys, bot tokens) never live here; they come from the
// environment so config files stay safe to commit.
//
// All durations are Go duration strings (e.g. "500ms", "30m", "1h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Platform  PlatformConfig  `json:"platform"`
	Trends    TrendsConfig    `json:"trends,omitempty"`
	Hashtags  HashtagConfig   `json:"hashtags,omitempty"`
	Bridge    BridgeConfig    `json:"bridge,omitempty"`
	Generate  GenerateConfig  `json:"generate,omitempty"`
	Notify    *NotifyConfig   `json:"notify,omitempty"`
	Pipeline  PipelineConfig  `json:"pipeline,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the cron service and the two standing jobs.
// Jobs maps task name to a 5-field cron spec; omitted names keep their
// defaults ("content": "0 0 * * *", "hashtag-refresh": "0 3 * * *").
// An empty string disables that job.
type SchedulerConfig struct {
	Enabled        bool              `json:"enabled"`
	Timezone       string            `json:"timezone,omitempty"`
	DefaultTimeout string            `json:"default_timeout,omitempty"`
	HistorySize    int               `json:"history_size,omitempty"`
	Jobs           map[string]string `json:"jobs,omitempty"`
}

// PlatformConfig points at the trend platform's API. The credential pool is
// read from PLATFORM_* / PLATFORM<n>_* environment variables.
type PlatformConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
	Region  int    `json:"region,omitempty"` // WOEID, default 1 (worldwide)
}

type TrendsConfig struct {
	TrendTTL  string `json:"trend_ttl,omitempty"`  // default "1h"
	SampleTTL string `json:"sample_ttl,omitempty"` // default "30m"
}

// HashtagConfig controls the bulk refresh job. The hashtag API key comes from
// the HASHTAG_API_KEY environment variable.
type HashtagConfig struct {
	BaseURL    string   `json:"base_url,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Pause      string   `json:"pause,omitempty"` // between category fetches, default "2s"
}

type BridgeConfig struct {
	Executable    string `json:"executable,omitempty"`
	ScriptsDir    string `json:"scripts_dir,omitempty"`
	OutputDir     string `json:"output_dir,omitempty"`
	Script        string `json:"script,omitempty"` // script name under scripts_dir
	InvokeTimeout string `json:"invoke_timeout,omitempty"`
	ReadyTimeout  string `json:"ready_timeout,omitempty"`
}

// GenerateConfig controls the fallback completion client. The API key comes
// from the COMPLETION_API_KEY environment variable.
type GenerateConfig struct {
	BaseURL     string  `json:"base_url,omitempty"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Timeout     string  `json:"timeout,omitempty"`
	Persona     string  `json:"persona,omitempty"`
}

// NotifyConfig controls Telegram announcements. The bot token comes from the
// TELEGRAM_BOT_TOKEN environment variable. A nil section means disabled.
type NotifyConfig struct {
	Enabled    bool  `json:"enabled"`
	ChatID     int64 `json:"chat_id"`
	RatePerSec int   `json:"rate_per_sec,omitempty"`
}

type PipelineConfig struct {
	Publish   bool `json:"publish"`
	MaxLength int  `json:"max_length,omitempty"`
}
