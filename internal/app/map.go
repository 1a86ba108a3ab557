package app

import (
	"os"
	"strings"
	"time"

	"trendpipe/internal/config"
	"trendpipe/internal/generate"
	"trendpipe/internal/hashtag"
	"trendpipe/internal/notify"
	"trendpipe/internal/procbridge"
	"trendpipe/internal/scheduler"
	"trendpipe/internal/storage"
	"trendpipe/internal/trends"
	logx "trendpipe/pkg/logx"
)

// Task names for the two standing jobs.
const (
	TaskContent        = "content"
	TaskHashtagRefresh = "hashtag-refresh"
)

var defaultJobSpecs = map[string]string{
	TaskContent:        "0 0 * * *",
	TaskHashtagRefresh: "0 3 * * *",
}

// Secrets stay out of config files; these are the environment keys the app
// reads at startup.
const (
	envHashtagAPIKey    = "HASHTAG_API_KEY"
	envCompletionAPIKey = "COMPLETION_API_KEY"
	envTelegramToken    = "TELEGRAM_BOT_TOKEN"
)

func envValue(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./data/trendpipe.db"
	}
	return storage.Config{Path: path, BusyTimeout: busy}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	timeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 10*time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		DefaultTimeout: timeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
	}, nil
}

// jobSpecs merges configured specs over the defaults. An explicit empty
// string disables that job.
func jobSpecs(cfg *config.Config) map[string]string {
	out := make(map[string]string, len(defaultJobSpecs))
	for name, spec := range defaultJobSpecs {
		out[name] = spec
	}
	for name, spec := range cfg.Scheduler.Jobs {
		out[name] = strings.TrimSpace(spec)
	}
	return out
}

func mapTrendsConfig(cfg *config.Config) (trends.Config, error) {
	trendTTL, err := config.ParseDurationField("trends.trend_ttl", cfg.Trends.TrendTTL)
	if err != nil {
		return trends.Config{}, err
	}
	sampleTTL, err := config.ParseDurationField("trends.sample_ttl", cfg.Trends.SampleTTL)
	if err != nil {
		return trends.Config{}, err
	}
	return trends.Config{
		TrendTTL:  trendTTL,
		SampleTTL: sampleTTL,
		Region:    cfg.Platform.Region,
	}, nil
}

func mapRefreshConfig(cfg *config.Config) (hashtag.RefreshConfig, error) {
	pause, err := config.ParseDurationField("hashtags.pause", cfg.Hashtags.Pause)
	if err != nil {
		return hashtag.RefreshConfig{}, err
	}
	rc := hashtag.RefreshConfig{
		Categories: cfg.Hashtags.Categories,
		Pause:      pause,
	}
	if cfg.Platform.Region > 0 {
		rc.Regions = []int{cfg.Platform.Region}
	}
	return rc, nil
}

func mapBridgeConfig(cfg *config.Config) (procbridge.Config, error) {
	invoke, err := config.ParseDurationField("bridge.invoke_timeout", cfg.Bridge.InvokeTimeout)
	if err != nil {
		return procbridge.Config{}, err
	}
	ready, err := config.ParseDurationField("bridge.ready_timeout", cfg.Bridge.ReadyTimeout)
	if err != nil {
		return procbridge.Config{}, err
	}
	return procbridge.Config{
		Executable:    cfg.Bridge.Executable,
		ScriptsDir:    cfg.Bridge.ScriptsDir,
		OutputDir:     cfg.Bridge.OutputDir,
		InvokeTimeout: invoke,
		ReadyTimeout:  ready,
	}, nil
}

func mapGenerateConfig(cfg *config.Config) (generate.Config, error) {
	timeout, err := config.ParseDurationField("generate.timeout", cfg.Generate.Timeout)
	if err != nil {
		return generate.Config{}, err
	}
	baseURL := strings.TrimSpace(cfg.Generate.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return generate.Config{
		BaseURL:     baseURL,
		APIKey:      os.Getenv(envCompletionAPIKey),
		Model:       cfg.Generate.Model,
		MaxTokens:   cfg.Generate.MaxTokens,
		Temperature: cfg.Generate.Temperature,
		Timeout:     timeout,
		Persona:     cfg.Generate.Persona,
	}, nil
}

func mapNotifyConfig(cfg *config.Config) notify.Config {
	if cfg.Notify == nil {
		return notify.Config{}
	}
	return notify.Config{
		Enabled:    cfg.Notify.Enabled,
		Token:      os.Getenv(envTelegramToken),
		ChatID:     cfg.Notify.ChatID,
		RatePerSec: cfg.Notify.RatePerSec,
	}
}
