package app

import (
	"testing"

	"trendpipe/internal/config"
)

func TestJobSpecsDefaults(t *testing.T) {
	t.Parallel()
	specs := jobSpecs(&config.Config{})
	if specs[TaskContent] != "0 0 * * *" {
		t.Fatalf("content spec = %q", specs[TaskContent])
	}
	if specs[TaskHashtagRefresh] != "0 3 * * *" {
		t.Fatalf("refresh spec = %q", specs[TaskHashtagRefresh])
	}
}

func TestJobSpecsOverrideAndDisable(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Scheduler.Jobs = map[string]string{
		TaskContent:        "30 6 * * *",
		TaskHashtagRefresh: "",
	}
	specs := jobSpecs(cfg)
	if specs[TaskContent] != "30 6 * * *" {
		t.Fatalf("content spec = %q", specs[TaskContent])
	}
	if specs[TaskHashtagRefresh] != "" {
		t.Fatalf("refresh spec should be disabled, got %q", specs[TaskHashtagRefresh])
	}
}

func TestMapStorageConfigDefaults(t *testing.T) {
	t.Parallel()
	sc, err := mapStorageConfig(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if sc.Path == "" {
		t.Fatal("expected a default storage path")
	}
}

func TestMapTrendsConfigBadDuration(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Trends.TrendTTL = "whenever"
	if _, err := mapTrendsConfig(cfg); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestMapNotifyConfigNilSection(t *testing.T) {
	t.Parallel()
	nc := mapNotifyConfig(&config.Config{})
	if nc.Enabled {
		t.Fatal("nil notify section must map to disabled")
	}
}
