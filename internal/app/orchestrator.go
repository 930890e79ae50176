// Package app wires the sync engine: the orchestrator that sequences
// push then pull on every trigger, and the capture service the UI and the
// admin API write through.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/scoutsync/internal/adapters/mq/queue"
	"github.com/okian/scoutsync/internal/adapters/mq/worker"
	"github.com/okian/scoutsync/internal/adapters/remote"
	"github.com/okian/scoutsync/internal/adapters/signal"
	"github.com/okian/scoutsync/internal/domain/normalize"
	"github.com/okian/scoutsync/internal/domain/push"
	"github.com/okian/scoutsync/internal/domain/reconcile"
	"github.com/okian/scoutsync/pkg/logger"
	"github.com/okian/scoutsync/pkg/metrics"
)

const (
	defaultInterval      = 60 * time.Second
	defaultProbeInterval = 15 * time.Second
	signalBuffer         = 16
	shutdownTimeout      = 5 * time.Second
)

// Pusher drains the pending queue.
type Pusher interface {
	Push(ctx context.Context) (push.Result, error)
}

// Puller reconciles roster and schedule.
type Puller interface {
	Pull(ctx context.Context) (reconcile.PullResult, error)
}

// Normalizer runs the local clean pass.
type Normalizer interface {
	Run(ctx context.Context) (normalize.Report, error)
}

// Caches drops locally cached remote snapshots.
type Caches interface {
	ClearCaches(ctx context.Context) error
}

// PendingCounter reports the pending queue length.
type PendingCounter interface {
	Len(ctx context.Context) (int, error)
}

// Deps are the collaborators of an Orchestrator. Client may be nil: sync
// then keeps everything pending and never probes.
type Deps struct {
	Pusher     Pusher
	Puller     Puller
	Normalizer Normalizer
	Caches     Caches
	Pending    PendingCounter
	Client     remote.Client
}

// RunReport describes one pipeline run.
type RunReport struct {
	Trigger    string               `json:"trigger"`
	StartedAt  time.Time            `json:"started_at"`
	Duration   time.Duration        `json:"duration_ns"`
	Outcome    string               `json:"outcome"`
	Normalize  *normalize.Report    `json:"normalize,omitempty"`
	Push       push.Result          `json:"push"`
	Pull       reconcile.PullResult `json:"pull"`
	CacheReset bool                 `json:"cache_reset"`
	Error      string               `json:"error,omitempty"`
}

// Run outcomes.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Orchestrator runs the push then pull pipeline, at most one at a time.
type Orchestrator struct {
	deps Deps

	queue  queue.Queue
	worker *worker.Worker
	bus    *signal.Bus

	interval      time.Duration
	probeInterval time.Duration
	now           func() time.Time
	log           logger.Logger

	running atomic.Bool
	state   atomic.Int32
	online  atomic.Bool
	started atomic.Bool
	stopped atomic.Bool

	mu          sync.RWMutex
	last        *RunReport
	lastSuccess time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator. Call Start to begin reacting to
// triggers; FullRefresh and HardReset work without Start.
func NewOrchestrator(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:          deps,
		interval:      defaultInterval,
		probeInterval: defaultProbeInterval,
		now:           time.Now,
		log:           logger.Get().Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.queue == nil {
		o.queue = queue.NewInMemoryQueue()
	}
	o.setState(StateIdle)
	return o
}

// Start launches the worker, the timer, the connectivity monitor and the
// signal listener. A startup trigger fires when the remote is reachable.
// Start and Stop are one-shot: Start after Stop returns ErrStopped.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.stopped.Load() {
		return ErrStopped
	}
	if !o.started.CompareAndSwap(false, true) {
		return nil
	}
	ctx, o.cancel = context.WithCancel(ctx)

	o.worker = worker.New(o.queue, worker.HandlerFunc(o.handle), worker.WithName("sync"))
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.worker.Run(ctx)
	}()

	if o.deps.Client != nil && o.probe(ctx) {
		o.Trigger(queue.SourceStartup)
	}
	if o.interval > 0 {
		o.loop(ctx, o.interval, func() { o.Trigger(queue.SourceTimer) })
	}
	if o.deps.Client != nil && o.probeInterval > 0 {
		o.loop(ctx, o.probeInterval, func() {
			wasOnline := o.online.Load()
			if o.probe(ctx) && !wasOnline {
				o.log.Info(ctx, "remote reachable again")
				o.Trigger(queue.SourceConnectivity)
			}
		})
	}
	if o.bus != nil {
		o.listen(ctx)
	}

	o.log.Info(ctx, "orchestrator started",
		logger.Duration("interval", o.interval),
		logger.Duration("probe_interval", o.probeInterval),
		logger.Bool("remote", o.deps.Client != nil))
	return nil
}

// Stop halts the background loops and waits for an in-flight run. The
// trigger queue is closed, so the orchestrator cannot be started again.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if !o.started.CompareAndSwap(true, false) {
		return nil
	}
	o.stopped.Store(true)
	_ = o.queue.Close()
	o.cancel()
	var err error
	if o.worker != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		err = o.worker.Shutdown(shutdownCtx)
		cancel()
	}
	o.wg.Wait()
	return err
}

// Trigger asks for a sync without blocking. It reports false when the
// request was coalesced: a run is in progress or the queue is full.
func (o *Orchestrator) Trigger(source string) bool {
	metrics.RecordTrigger(source)
	if o.running.Load() {
		metrics.RecordTriggerCoalesced(source)
		return false
	}
	err := o.queue.Enqueue(context.Background(), queue.Trigger{Source: source, At: o.now()})
	if err != nil {
		metrics.RecordTriggerCoalesced(source)
		return false
	}
	return true
}

// FullRefresh runs the clean pass, then push and pull, synchronously.
func (o *Orchestrator) FullRefresh(ctx context.Context) (RunReport, error) {
	return o.exclusive(ctx, queue.SourceManual, true, false)
}

// HardReset is FullRefresh plus local cache invalidation. The roster and
// schedule snapshots are always dropped after the first pull attempt and are
// then rebuilt from the remote when one is configured.
func (o *Orchestrator) HardReset(ctx context.Context) (RunReport, error) {
	return o.exclusive(ctx, queue.SourceManual, true, true)
}

// SyncNow runs push and pull synchronously.
func (o *Orchestrator) SyncNow(ctx context.Context) (RunReport, error) {
	return o.exclusive(ctx, queue.SourceManual, false, false)
}

// State returns the current pipeline state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Busy reports whether a run holds the pipeline.
func (o *Orchestrator) Busy() bool { return o.running.Load() }

// Online reports the last connectivity probe result.
func (o *Orchestrator) Online() bool { return o.online.Load() }

// Probe pings the remote once and records the result. It is false without a
// remote.
func (o *Orchestrator) Probe(ctx context.Context) bool {
	if o.deps.Client == nil {
		return false
	}
	return o.probe(ctx)
}

// LastRun returns the most recent run, if any.
func (o *Orchestrator) LastRun() (RunReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return RunReport{}, false
	}
	return *o.last, true
}

// LastSuccess returns when a run last completed without errors.
func (o *Orchestrator) LastSuccess() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastSuccess
}

// Status is a short human readable summary for the admin UI.
func (o *Orchestrator) Status(ctx context.Context) string {
	parts := []string{o.State().String()}
	if o.deps.Pending != nil {
		if n, err := o.deps.Pending.Len(ctx); err == nil {
			parts = append(parts, fmt.Sprintf("%d pending", n))
		}
	}
	if o.deps.Client == nil {
		parts = append(parts, "no remote")
	} else if !o.online.Load() {
		parts = append(parts, "offline")
	}
	if last := o.LastSuccess(); !last.IsZero() {
		parts = append(parts, "last sync "+last.Local().Format(time.TimeOnly))
	} else {
		parts = append(parts, "never synced")
	}
	return strings.Join(parts, " · ")
}

func (o *Orchestrator) handle(ctx context.Context, t queue.Trigger) error {
	if !o.running.CompareAndSwap(false, true) {
		metrics.RecordTriggerCoalesced(t.Source)
		return nil
	}
	defer o.running.Store(false)

	rep, err := o.run(ctx, t.Source, false, false)
	if dropped := o.queue.Drain(); dropped > 0 {
		o.log.Debug(ctx, "coalesced queued triggers", logger.Int("dropped", dropped))
	}
	if err != nil {
		return fmt.Errorf("sync run (%s): %w", rep.Trigger, err)
	}
	return nil
}

func (o *Orchestrator) exclusive(ctx context.Context, source string, clean, reset bool) (RunReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		return RunReport{}, ErrBusy
	}
	defer o.running.Store(false)
	return o.run(ctx, source, clean, reset)
}

// run executes one pipeline. The caller holds the running guard. A panic in
// any step is recovered into that step's error so the run still ends idle.
func (o *Orchestrator) run(ctx context.Context, source string, clean, reset bool) (RunReport, error) {
	rep := RunReport{Trigger: source, StartedAt: o.now()}
	var errs []error

	o.setState(StatePushing)
	if clean && o.deps.Normalizer != nil {
		err := o.guard(ctx, "normalize", func() (err error) {
			var nrep normalize.Report
			if nrep, err = o.deps.Normalizer.Run(ctx); err == nil {
				rep.Normalize = &nrep
			}
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("normalize: %w", err))
		}
	}

	if err := o.guard(ctx, "push", func() (err error) {
		rep.Push, err = o.deps.Pusher.Push(ctx)
		return err
	}); err != nil {
		errs = append(errs, fmt.Errorf("push: %w", err))
	}

	o.setState(StatePulling)
	if err := o.pull(ctx, &rep); err != nil {
		errs = append(errs, fmt.Errorf("pull: %w", err))
	}

	// Caches are dropped after the first pull attempt, whatever its outcome,
	// so locally authoritative roster entries get one chance to go upstream.
	if reset && o.deps.Caches != nil {
		if err := o.guard(ctx, "clear caches", func() error { return o.deps.Caches.ClearCaches(ctx) }); err != nil {
			errs = append(errs, fmt.Errorf("clear caches: %w", err))
		} else {
			rep.CacheReset = true
			if err := o.pull(ctx, &rep); err != nil {
				errs = append(errs, fmt.Errorf("pull after reset: %w", err))
			}
		}
	}

	runErr := errors.Join(errs...)
	rep.Duration = o.now().Sub(rep.StartedAt)
	rep.Outcome = outcome(rep, runErr)
	if runErr != nil {
		rep.Error = runErr.Error()
		o.setState(StateError)
		metrics.RecordErrorByComponent("orchestrator", "run_error")
		o.log.Warn(ctx, "sync run failed",
			logger.String("trigger", source),
			logger.Error(runErr))
	}
	metrics.RecordSyncRun(rep.Outcome, float64(rep.Duration.Milliseconds()))

	o.mu.Lock()
	o.last = &rep
	if runErr == nil && rep.Outcome != OutcomeSkipped {
		o.lastSuccess = rep.StartedAt.Add(rep.Duration)
	}
	o.mu.Unlock()

	o.log.Info(ctx, "sync run complete",
		logger.String("trigger", source),
		logger.String("outcome", rep.Outcome),
		logger.Int("pushed", rep.Push.Pushed),
		logger.Int("failed_batches", rep.Push.FailedBatches),
		logger.Int("roster_merged", rep.Pull.Roster.Merged),
		logger.Int("schedule_merged", rep.Pull.Schedule.Merged),
		logger.Duration("duration", rep.Duration))

	o.setState(StateIdle)
	return rep, runErr
}

func (o *Orchestrator) pull(ctx context.Context, rep *RunReport) error {
	return o.guard(ctx, "pull", func() (err error) {
		rep.Pull, err = o.deps.Puller.Pull(ctx)
		return err
	})
}

// guard runs one pipeline step, turning a panic into ErrStepPanic.
func (o *Orchestrator) guard(ctx context.Context, step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("orchestrator", "panic")
			o.log.Error(ctx, "sync step panicked",
				logger.String("step", step),
				logger.Any("panic", r))
			err = fmt.Errorf("%w: %s: %v", ErrStepPanic, step, r)
		}
	}()
	return fn()
}

func outcome(rep RunReport, err error) string {
	switch {
	case err != nil:
		return OutcomeError
	case rep.Push.Skipped && rep.Pull.Skipped:
		return OutcomeSkipped
	case rep.Push.FailedBatches > 0:
		return OutcomePartial
	}
	return OutcomeOK
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	metrics.UpdateSyncState(int(s))
}

func (o *Orchestrator) probe(ctx context.Context) bool {
	err := o.deps.Client.Ping(ctx)
	online := err == nil
	if o.online.Swap(online) && !online {
		o.log.Warn(ctx, "remote unreachable", logger.Error(err))
	}
	return online
}

func (o *Orchestrator) loop(ctx context.Context, every time.Duration, tick func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
}

// listen triggers a sync when the pending queue changes and still holds
// ids, whether the change came from this process or another one.
func (o *Orchestrator) listen(ctx context.Context) {
	events, cancel := o.bus.Subscribe(signalBuffer)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Collection != signal.CollectionPending {
					continue
				}
				var ids []string
				if err := json.Unmarshal(ev.Value, &ids); err != nil || len(ids) == 0 {
					continue
				}
				o.Trigger(queue.SourcePending)
			}
		}
	}()
}
