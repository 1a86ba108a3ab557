package config

import (
	"fmt"
	"time"
)

// Validate checks everything that can be checked without touching the
// network: duration strings parse, the timezone resolves, numeric knobs are
// sane. Cron specs are validated by the scheduler when jobs are installed.
func (c *Config) Validate() error {
	durations := []struct {
		path, raw string
	}{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"scheduler.default_timeout", c.Scheduler.DefaultTimeout},
		{"platform.timeout", c.Platform.Timeout},
		{"trends.trend_ttl", c.Trends.TrendTTL},
		{"trends.sample_ttl", c.Trends.SampleTTL},
		{"hashtags.pause", c.Hashtags.Pause},
		{"bridge.invoke_timeout", c.Bridge.InvokeTimeout},
		{"bridge.ready_timeout", c.Bridge.ReadyTimeout},
		{"generate.timeout", c.Generate.Timeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	if tz := c.Scheduler.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if c.Platform.Region < 0 {
		return fmt.Errorf("platform.region must be >= 0")
	}
	if c.Notify != nil && c.Notify.Enabled && c.Notify.ChatID == 0 {
		return fmt.Errorf("notify.chat_id required when notify is enabled")
	}
	if c.Pipeline.MaxLength < 0 {
		return fmt.Errorf("pipeline.max_length must be >= 0")
	}
	return nil
}
