// Package app wires configuration, storage, clients and services into one
// process and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"trendpipe/internal/config"
	"trendpipe/internal/credentials"
	"trendpipe/internal/generate"
	"trendpipe/internal/hashtag"
	"trendpipe/internal/notify"
	"trendpipe/internal/pipeline"
	"trendpipe/internal/platform"
	"trendpipe/internal/procbridge"
	"trendpipe/internal/scheduler"
	"trendpipe/internal/storage"
	"trendpipe/internal/trends"
	logx "trendpipe/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager

	log  logx.Logger
	logs *logx.Service

	store  *storage.Store
	client *platform.Client
	src    *trends.Source
	scorer *hashtag.Scorer
	refr   *hashtag.Refresher
	sched  *scheduler.Service
	notif  *notify.Notifier
	pipe   *pipeline.Pipeline

	mu      sync.Mutex
	started bool
	stopFns []func()
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(ctx context.Context, c *config.Config) error {
		return c.Validate()
	})

	a := &App{cfgm: cfgm, log: log, logs: logSvc}
	if err := a.build(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	pool, err := credentials.FromEnv(time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("loading platform credentials: %w", err)
	}

	stCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(stCfg, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	a.store = store

	platformTimeout, err := config.ParseDurationOrDefault("platform.timeout", cfg.Platform.Timeout, 15*time.Second)
	if err != nil {
		return err
	}
	var clientOpts []platform.Option
	if base := strings.TrimSpace(cfg.Platform.BaseURL); base != "" {
		clientOpts = append(clientOpts, platform.WithBaseURL(base))
	}
	a.client = platform.NewClient(pool, platformTimeout, a.log.With(logx.String("comp", "platform")), clientOpts...)

	var hashtagOpts []platform.HashtagOption
	if base := strings.TrimSpace(cfg.Hashtags.BaseURL); base != "" {
		hashtagOpts = append(hashtagOpts, platform.WithHashtagBaseURL(base))
	}
	hashtagClient := platform.NewHashtagClient(
		envValue(envHashtagAPIKey), platformTimeout,
		a.log.With(logx.String("comp", "hashtags")), hashtagOpts...)

	trCfg, err := mapTrendsConfig(cfg)
	if err != nil {
		return err
	}
	a.src = trends.NewSource(trCfg, a.client, a.log.With(logx.String("comp", "trends")))

	a.scorer = hashtag.NewScorer(store, a.log.With(logx.String("comp", "scorer")))

	rc, err := mapRefreshConfig(cfg)
	if err != nil {
		return err
	}
	a.refr = hashtag.NewRefresher(rc, hashtagClient, a.client, store, a.log.With(logx.String("comp", "refresh")))

	var bridge pipeline.Bridge
	if strings.TrimSpace(cfg.Bridge.Executable) != "" {
		bCfg, err := mapBridgeConfig(cfg)
		if err != nil {
			return err
		}
		bridge = procbridge.New(bCfg, a.log.With(logx.String("comp", "bridge")))
	}

	genCfg, err := mapGenerateConfig(cfg)
	if err != nil {
		return err
	}
	composer := generate.New(genCfg, a.log.With(logx.String("comp", "generate")))

	notif, err := notify.New(mapNotifyConfig(cfg), a.log.With(logx.String("comp", "notify")))
	if err != nil {
		return err
	}
	a.notif = notif

	var announcer pipeline.Announcer
	if cfg.Notify != nil && cfg.Notify.Enabled {
		announcer = notif
	}
	a.pipe = pipeline.New(pipeline.Config{
		Publish:   cfg.Pipeline.Publish,
		Script:    cfg.Bridge.Script,
		MaxLength: cfg.Pipeline.MaxLength,
	}, a.src, bridge, composer, a.client, store, announcer, a.log.With(logx.String("comp", "pipeline")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return err
	}
	a.sched = scheduler.New(schedCfg, a.log.With(logx.String("comp", "scheduler")))
	return nil
}

// Start installs the standing jobs, starts the scheduler when enabled, and
// begins watching the config file for live changes.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	cfg := a.cfgm.Get()
	if err := a.installJobs(cfg); err != nil {
		return err
	}
	if cfg.Scheduler.Enabled {
		a.sched.Start(ctx)
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	a.stopFns = append(a.stopFns, cancelWatch)
	go func() {
		_ = a.cfgm.Watch(watchCtx)
	}()

	sub := a.cfgm.Subscribe(4)
	reloadCtx, cancelReload := context.WithCancel(ctx)
	a.stopFns = append(a.stopFns, cancelReload)
	go a.reloadLoop(reloadCtx, sub, cfg)

	a.started = true
	a.log.Info("started",
		logx.Bool("scheduler", cfg.Scheduler.Enabled),
		logx.Bool("publish", cfg.Pipeline.Publish))
	return nil
}

// installJobs arms the content and hashtag-refresh jobs from config. A job
// with an empty spec is cancelled if present.
func (a *App) installJobs(cfg *config.Config) error {
	actions := map[string]scheduler.Action{
		TaskContent:        a.pipe.Run,
		TaskHashtagRefresh: a.refr.RefreshAll,
	}
	for name, spec := range jobSpecs(cfg) {
		action, ok := actions[name]
		if !ok {
			a.log.Warn("unknown job in config, skipping", logx.String("job", name))
			continue
		}
		if spec == "" {
			if err := a.sched.Cancel(name); err != nil && err != scheduler.ErrNotScheduled {
				return err
			}
			continue
		}
		if _, err := a.sched.Install(name, spec, action); err != nil {
			return fmt.Errorf("installing job %q: %w", name, err)
		}
	}
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config, last *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			sections, attrs := config.SummarizeConfigChange(last, newCfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, no effective changes")
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config changed", fields...)

			for _, s := range sections {
				switch s {
				case "logging":
					a.logs.Apply(mapLoggingConfig(newCfg))
				case "scheduler":
					if err := a.installJobs(newCfg); err != nil {
						a.log.Warn("job re-install failed, keeping previous schedules", logx.Err(err))
					}
					if newCfg.Scheduler.Enabled && !last.Scheduler.Enabled {
						a.sched.Start(ctx)
					} else if !newCfg.Scheduler.Enabled && last.Scheduler.Enabled {
						a.sched.Stop(ctx)
					}
				default:
					a.log.Warn("config section changed, restart required to apply",
						logx.String("section", s))
				}
			}
			last = newCfg
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.stopFns) - 1; i >= 0; i-- {
		a.stopFns[i]()
	}
	a.stopFns = nil
	if a.started {
		a.sched.Stop(ctx)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing storage", logx.Err(err))
	}
	_ = a.logs.Close()
	a.started = false
	return nil
}

// StartTask installs (or replaces) the schedule for a known task and returns
// the next invocation time.
func (a *App) StartTask(name, spec string) (time.Time, error) {
	var action scheduler.Action
	switch name {
	case TaskContent:
		action = a.pipe.Run
	case TaskHashtagRefresh:
		action = a.refr.RefreshAll
	default:
		return time.Time{}, fmt.Errorf("unknown task %q", name)
	}
	h, err := a.sched.Install(name, spec, action)
	if err != nil {
		return time.Time{}, err
	}
	return h.NextRun(), nil
}

// StopTask cancels a task's schedule. scheduler.ErrNotScheduled means there
// was nothing to cancel, which callers may treat as benign.
func (a *App) StopTask(name string) error {
	return a.sched.Cancel(name)
}

// RunContentCycle executes one pipeline run immediately, outside the
// schedule.
func (a *App) RunContentCycle(ctx context.Context) error {
	return a.pipe.Run(ctx)
}

// RefreshHashtags runs the bulk hashtag refresh immediately.
func (a *App) RefreshHashtags(ctx context.Context) error {
	return a.refr.RefreshAll(ctx)
}

// SuggestHashtags scores stored candidates against the given text.
func (a *App) SuggestHashtags(ctx context.Context, text, category string, count int) ([]hashtag.Suggestion, error) {
	return a.scorer.Suggest(ctx, text, category, count)
}

// NextRuns reports the next fire time per installed job.
func (a *App) NextRuns() map[string]time.Time {
	out := map[string]time.Time{}
	for _, j := range a.sched.Jobs() {
		out[j.Name] = j.Next
	}
	return out
}
