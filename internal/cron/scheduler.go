package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"aninotify/internal/anilist"
	"aninotify/internal/db"
	"aninotify/internal/logger"
	"aninotify/internal/notify"
	"aninotify/internal/report"
	"aninotify/internal/settings"
	"aninotify/internal/updater"
)

const (
	TaskDefaultCheck          = "Default-Check"
	TaskIntelligentCheck      = "Intelligent-Check"
	TaskIntelligentDailyCheck = "Intelligent-Daily-Check"
	TaskDailyCleanup          = "Daily-Cleanup"
	TaskAniListUpdate         = "Anilist-Update"
	TaskAutoRegister          = "Auto-Register"

	dailySpec      = "0 0 * * *"
	reloadInterval = time.Minute
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrTaskRunning = errors.New("task is already running")
)

// TaskNames lists every task in a stable order.
func TaskNames() []string {
	return []string{
		TaskDefaultCheck,
		TaskIntelligentCheck,
		TaskIntelligentDailyCheck,
		TaskDailyCleanup,
		TaskAniListUpdate,
		TaskAutoRegister,
	}
}

type Store interface {
	ListTitlesByStatus(ctx context.Context, status db.TitleStatus) ([]db.Title, error)
	ListEpisodes(ctx context.Context, titleID string) ([]db.Episode, error)
	LastReleaseAt(ctx context.Context, titleID string) (time.Time, bool, error)
	DeleteTitlesByStatus(ctx context.Context, status db.TitleStatus) (int64, error)

	ListUsersWithAniList(ctx context.Context) ([]db.User, error)
	SetUserAniListID(ctx context.Context, userID int64, aniListID string) error
	SubscribedTitleIDs(ctx context.Context, userID int64) ([]string, error)

	UpdateTaskLastRun(ctx context.Context, task string, at time.Time) error
}

type Settings interface {
	Snapshot(ctx context.Context) settings.Snapshot
}

type Reconciler interface {
	Reconcile(ctx context.Context, title db.Title, known []db.Episode, providers []string, snap settings.Snapshot) []db.Episode
}

type Notifier interface {
	NotifyAll(ctx context.Context, title db.Title, eps []db.Episode) notify.Summary
}

type Registrar interface {
	AddTitle(ctx context.Context, id string, snap settings.Snapshot, user *db.User) error
	AddTitleToUser(ctx context.Context, id string, user db.User, snap settings.Snapshot) error
	Untracked(ctx context.Context, ids []string) ([]string, []updater.Failure)
}

type Lists interface {
	ResolveUserID(ctx context.Context, ref string) (string, error)
	List(ctx context.Context, userID string, status anilist.ListStatus) ([]string, error)
	AiringTitles(ctx context.Context, days int) ([]string, error)
}

// Deps wires the scheduler to the rest of the engine.
type Deps struct {
	Store      Store
	Settings   Settings
	Reconciler Reconciler
	Notifier   Notifier
	Registrar  Registrar
	Lists      Lists
	Sink       report.Sink

	Providers []string
	Location  *time.Location
	Debug     bool
}

type entry struct {
	name string
	spec string
}

// Scheduler runs the recurring tasks and rebuilds its cron table when a
// cadence or toggle changes.
type Scheduler struct {
	deps Deps

	// Throttles applied per run; tests shorten them.
	CheckBatch int
	CheckDelay time.Duration
	SyncBatch  int
	SyncDelay  time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error

	now func() time.Time
	log zerolog.Logger

	guardsMu sync.Mutex
	guards   map[string]*atomic.Bool

	mu     sync.Mutex
	ctx    context.Context
	cron   *cron.Cron
	active []entry
}

func NewScheduler(deps Deps) *Scheduler {
	if deps.Sink == nil {
		deps.Sink = report.Discard
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &Scheduler{
		deps:       deps,
		CheckBatch: 3,
		CheckDelay: 30 * time.Second,
		SyncBatch:  40,
		SyncDelay:  60 * time.Second,
		Sleep:      sleepContext,
		now:        time.Now,
		log:        logger.With("scheduler"),
		guards:     make(map[string]*atomic.Bool),
	}
}

// Start builds the cron table from the current settings and keeps it in
// sync until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.rebuild(false)

	go func() {
		ticker := time.NewTicker(reloadInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rebuild(false)
			}
		}
	}()
}

// Restart rebuilds the cron table even when nothing changed.
func (s *Scheduler) Restart() {
	s.rebuild(true)
}

// Stop stops the cron table. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := s.cron.Stop()
	s.cron = nil
	s.active = nil
	return ctx
}

// Entries reports the scheduled task names and their cron specs.
func (s *Scheduler) Entries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.active))
	for _, e := range s.active {
		out[e.name] = e.spec
	}
	return out
}

func plan(snap settings.Snapshot) []entry {
	var entries []entry
	if snap.IntelligentChecks {
		entries = append(entries,
			entry{name: TaskIntelligentCheck, spec: snap.IntelligentCron},
			entry{name: TaskIntelligentDailyCheck, spec: dailySpec},
		)
	} else {
		entries = append(entries, entry{name: TaskDefaultCheck, spec: snap.Cron})
	}
	entries = append(entries,
		entry{name: TaskDailyCleanup, spec: dailySpec},
		entry{name: TaskAniListUpdate, spec: snap.AniListUpdateCron},
	)
	if snap.AutoRegister {
		entries = append(entries, entry{name: TaskAutoRegister, spec: snap.AutoRegisterCron})
	}
	return entries
}

func (s *Scheduler) rebuild(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	next := plan(s.deps.Settings.Snapshot(ctx))
	if !force && s.cron != nil && slices.Equal(next, s.active) {
		return
	}

	c := cron.New(
		cron.WithLocation(s.deps.Location),
		cron.WithChain(cron.Recover(cronLogger{log: s.log})),
	)
	var scheduled []entry
	for _, e := range next {
		name := e.name
		if _, err := c.AddFunc(e.spec, func() { _ = s.Run(ctx, name) }); err != nil {
			s.log.Error().Err(err).Str("task", name).Str("spec", e.spec).Msg("Failed to schedule task")
			s.deps.Sink.Capture(err, report.Fields{"task": name, "spec": e.spec})
			continue
		}
		scheduled = append(scheduled, e)
	}

	if s.cron != nil {
		s.cron.Stop()
	}
	s.cron = c
	// Keep the requested plan so a bad spec is not retried every minute.
	s.active = next
	c.Start()

	s.log.Info().Int("tasks", len(scheduled)).Str("timezone", s.deps.Location.String()).Msg("Scheduler (re)built")
	for _, e := range scheduled {
		s.log.Debug().Str("task", e.name).Str("spec", e.spec).Msg("Scheduled task")
	}
}

func (s *Scheduler) guard(name string) *atomic.Bool {
	s.guardsMu.Lock()
	defer s.guardsMu.Unlock()
	g, ok := s.guards[name]
	if !ok {
		g = &atomic.Bool{}
		s.guards[name] = g
	}
	return g
}

// Run executes one task now. A run of the same task that is still in
// progress makes this call return ErrTaskRunning. Panics are recovered and
// reported.
func (s *Scheduler) Run(ctx context.Context, name string) (err error) {
	if !slices.Contains(TaskNames(), name) {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	g := s.guard(name)
	if !g.CompareAndSwap(false, true) {
		s.log.Warn().Str("task", name).Msg("Previous run still in progress, skipping")
		return ErrTaskRunning
	}
	defer g.Store(false)

	log := s.log.With().Str("task", name).Str("run_id", uuid.NewString()).Logger()
	start := s.now()
	log.Info().Msg("Task started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
			log.Error().Str("stack", string(debug.Stack())).Msg(err.Error())
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			s.deps.Sink.Capture(err, report.Fields{"task": name})
		}
		if uerr := s.deps.Store.UpdateTaskLastRun(context.WithoutCancel(ctx), name, s.now()); uerr != nil {
			log.Warn().Err(uerr).Msg("Failed to record task run")
		}
		log.Info().Err(err).Dur("took", s.now().Sub(start)).Msg("Task finished")
	}()

	snap := s.deps.Settings.Snapshot(ctx)
	switch name {
	case TaskDefaultCheck, TaskIntelligentDailyCheck:
		return s.checkTitles(ctx, snap, false, log)
	case TaskIntelligentCheck:
		return s.checkTitles(ctx, snap, true, log)
	case TaskDailyCleanup:
		return s.cleanup(ctx, log)
	case TaskAniListUpdate:
		return s.syncLists(ctx, snap, log)
	default:
		return s.autoRegister(ctx, snap, log)
	}
}

// cronLogger adapts zerolog to the cron.Logger interface.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
