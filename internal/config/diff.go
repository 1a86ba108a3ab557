package config

import (
	"reflect"
	"sort"
	"strings"

	logx "trendpipe/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets never appear here; they are not part
// of Config in the first place.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.job_count", len(newCfg.Scheduler.Jobs)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Platform, newCfg.Platform) {
		changed = append(changed, "platform")
		attrs = append(attrs,
			logx.String("platform.base_url", strings.TrimSpace(newCfg.Platform.BaseURL)),
			logx.Int("platform.region", newCfg.Platform.Region),
		)
	}

	if !reflect.DeepEqual(oldCfg.Trends, newCfg.Trends) {
		changed = append(changed, "trends")
		attrs = append(attrs,
			logx.String("trends.trend_ttl", newCfg.Trends.TrendTTL),
			logx.String("trends.sample_ttl", newCfg.Trends.SampleTTL),
		)
	}

	if !reflect.DeepEqual(oldCfg.Hashtags, newCfg.Hashtags) {
		changed = append(changed, "hashtags")
		attrs = append(attrs,
			logx.Int("hashtags.category_count", len(newCfg.Hashtags.Categories)),
			logx.String("hashtags.pause", newCfg.Hashtags.Pause),
		)
	}

	if !reflect.DeepEqual(oldCfg.Bridge, newCfg.Bridge) {
		changed = append(changed, "bridge")
		attrs = append(attrs,
			logx.Bool("bridge.configured", strings.TrimSpace(newCfg.Bridge.Executable) != ""),
			logx.String("bridge.script", newCfg.Bridge.Script),
		)
	}

	if !reflect.DeepEqual(oldCfg.Generate, newCfg.Generate) {
		changed = append(changed, "generate")
		attrs = append(attrs,
			logx.String("generate.model", newCfg.Generate.Model),
			logx.String("generate.base_url", strings.TrimSpace(newCfg.Generate.BaseURL)),
		)
	}

	oldN, newN := oldCfg.Notify, newCfg.Notify
	if (oldN == nil) != (newN == nil) || (oldN != nil && *oldN != *newN) {
		changed = append(changed, "notify")
		var enabled bool
		var chatSet bool
		if newN != nil {
			enabled = newN.Enabled
			chatSet = newN.ChatID != 0
		}
		attrs = append(attrs,
			logx.Bool("notify.enabled", enabled),
			logx.Bool("notify.chat_set", chatSet),
		)
	}

	if oldCfg.Pipeline != newCfg.Pipeline {
		changed = append(changed, "pipeline")
		attrs = append(attrs,
			logx.Bool("pipeline.publish", newCfg.Pipeline.Publish),
			logx.Int("pipeline.max_length", newCfg.Pipeline.MaxLength),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
