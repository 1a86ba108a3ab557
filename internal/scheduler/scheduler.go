package scheduler

import (
	"context"
	"errors"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "trendpipe/pkg/logx"
)

// ErrNotScheduled reports a Cancel for a name with nothing armed. It is a
// benign status, not a hard failure; callers typically surface it as
// "nothing to cancel".
var ErrNotScheduled = errors.New("no schedule installed for task")

// Action is one tick's work. The context carries the per-run timeout.
type Action func(ctx context.Context) error

// Config controls the scheduler service.
type Config struct {
	DefaultTimeout time.Duration // per-tick timeout; 0 disables
	HistorySize    int
	Timezone       string // IANA TZ; empty means local
}

// HistoryItem records one completed tick.
type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type jobDef struct {
	name    string
	spec    string
	sched   cron.Schedule
	action  Action
	timeout time.Duration
	entryID cron.EntryID
}

// Service owns the cron runtime and the named job slots.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*jobDef

	runCtx    context.Context
	runCancel context.CancelFunc

	hmu     sync.Mutex
	history []HistoryItem
}

// Handle exposes one installed schedule. At most one live handle exists per
// task name; installing a replacement invalidates the previous one.
type Handle struct {
	Name string
	Spec string
	svc  *Service
}

// NextRun reports the next invocation time, or the zero time when the
// schedule has been cancelled or replaced.
func (h Handle) NextRun() time.Time { return h.svc.NextRun(h.Name) }

// Cancel removes the schedule. Idempotent in effect; a second call reports
// ErrNotScheduled.
func (h Handle) Cancel() error { return h.svc.Cancel(h.Name) }

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log,
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:   map[string]*jobDef{},
	}
}

// Start arms all installed definitions and begins firing ticks. Definitions
// installed before Start are armed here.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	for _, d := range s.defs {
		s.armLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("schedules", len(s.defs)), logx.String("tz", loc.String()))
}

// Stop halts tick firing. A tick already in flight completes; definitions are
// kept and re-arm on the next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCtx = nil
	s.runCancel = nil
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("scheduler stopped")
}

// Install parses the cron expression and arms a recurring job under name,
// cancelling any schedule previously installed for that name first
// (cancel-then-arm). Install before Start records the definition; it arms
// when the service starts.
func (s *Service) Install(name, spec string, action Action) (Handle, error) {
	return s.InstallWithTimeout(name, spec, 0, action)
}

// InstallWithTimeout is Install with a per-tick timeout override.
func (s *Service) InstallWithTimeout(name, spec string, timeout time.Duration, action Action) (Handle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Handle{}, errors.New("task name required")
	}
	if action == nil {
		return Handle{}, errors.New("action required")
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return Handle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Cancel-then-arm: at most one outstanding timer per name.
	if prev, ok := s.defs[name]; ok {
		if s.c != nil && prev.entryID != 0 {
			s.c.Remove(prev.entryID)
		}
		delete(s.defs, name)
		s.log.Debug("replacing schedule", logx.String("task", name), logx.String("old", prev.spec), logx.String("new", spec))
	}

	d := &jobDef{
		name:    name,
		spec:    spec,
		sched:   sched,
		action:  action,
		timeout: s.resolveTimeout(timeout),
	}
	s.defs[name] = d
	if s.c != nil {
		s.armLocked(d)
	}

	next := s.nextRunLocked(d)
	s.log.Info("schedule installed",
		logx.String("task", name),
		logx.String("spec", spec),
		logx.Time("next", next))
	return Handle{Name: name, Spec: spec, svc: s}, nil
}

// Cancel removes the schedule for name. Returns ErrNotScheduled when nothing
// is armed for that name; a tick already in flight completes, but no further
// ticks fire.
func (s *Service) Cancel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[strings.TrimSpace(name)]
	if !ok {
		return ErrNotScheduled
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, d.name)
	s.log.Info("schedule cancelled", logx.String("task", d.name))
	return nil
}

// NextRun reports the next invocation for name, or the zero time when the
// name has no schedule.
func (s *Service) NextRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[strings.TrimSpace(name)]
	if !ok {
		return time.Time{}
	}
	return s.nextRunLocked(d)
}

// JobInfo describes one installed schedule.
type JobInfo struct {
	Name string
	Spec string
	Next time.Time
}

// Jobs lists installed schedules sorted by name.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, JobInfo{Name: d.name, Spec: d.spec, Next: s.nextRunLocked(d)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns the most recent completed ticks, newest last.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) armLocked(d *jobDef) {
	runCtx := s.runCtx
	// cron runs each job in its own goroutine, so ticks never block the
	// scheduler loop.
	eid := s.c.Schedule(d.sched, cron.FuncJob(func() {
		s.runTick(runCtx, d)
	}))
	d.entryID = eid
}

// runTick executes one tick asynchronously. Errors and panics are logged and
// never unregister the schedule; the next tick still fires at the next cron
// boundary.
func (s *Service) runTick(ctx context.Context, d *jobDef) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	var cancel context.CancelFunc
	if d.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduled task",
					logx.String("task", d.name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
				err = errors.New("task panicked")
			}
		}()
		err = d.action(ctx)
	}()

	dur := time.Since(start)
	item := HistoryItem{Name: d.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed", logx.String("task", d.name), logx.Err(err), logx.Duration("dur", dur))
	} else {
		s.log.Info("task completed", logx.String("task", d.name), logx.Duration("dur", dur))
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	size := s.cfg.HistorySize
	if size <= 0 {
		size = 200
	}
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) nextRunLocked(d *jobDef) time.Time {
	if s.c != nil && d.entryID != 0 {
		if e := s.c.Entry(d.entryID); e.ID == d.entryID && !e.Next.IsZero() {
			return e.Next
		}
	}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	return d.sched.Next(time.Now().In(loc))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return s.cfg.DefaultTimeout
}
