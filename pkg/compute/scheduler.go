// Package compute is the Compute Job Scheduler: it admits JobSpecs
// onto a bounded worker pool, probes the cache before running
// anything, drives a sandbox.Executor under a deadline, forwards
// partials and the terminal event to the event bus, and binds
// successful outputs into workspace state.
package compute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/uicp/engine/pkg/cache"
	"github.com/uicp/engine/pkg/canonicalize"
	"github.com/uicp/engine/pkg/eventbus"
	"github.com/uicp/engine/pkg/kernel"
	"github.com/uicp/engine/pkg/model"
	"github.com/uicp/engine/pkg/registry"
	"github.com/uicp/engine/pkg/runtime/sandbox"
)

func contentHash(data []byte) (string, error) {
	return "sha256:" + canonicalize.HashBytes(data), nil
}

// cancelGrace is how long Cancel waits for a job to observe context
// cancellation before the scheduler considers it forcibly terminated.
const cancelGrace = 250 * time.Millisecond

// TaskProfile supplies per-task resource defaults applied when a
// JobSpec omits fuel or a memory limit.
type TaskProfile struct {
	DefaultFuel       uint64
	DefaultMemLimitMb int
}

// StateBinder receives a completed job's bound outputs. Implemented by
// *apply.Engine.
type StateBinder interface {
	BindOutput(toStatePath string, output json.RawMessage)
}

// jobRecord tracks one admitted job's lifecycle state.
type jobRecord struct {
	mu     sync.Mutex
	state  string // queued, running, cancelling, done
	cancel context.CancelFunc
}

func (r *jobRecord) setState(s string) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *jobRecord) getState() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Scheduler is the Compute Job Scheduler.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*jobRecord
	sem  chan struct{}

	registry      registry.Registry
	executor      sandbox.Executor
	cache         cache.Cache
	bus           *eventbus.Bus
	binder        StateBinder
	profiles      map[string]TaskProfile
	workspaceRoot string

	limiter       kernel.LimiterStore
	limiterPolicy kernel.BackpressurePolicy

	nondeterminism *kernel.NondeterminismTracker
}

// New builds a Scheduler. concurrency <= 0 selects min(4, GOMAXPROCS).
// profiles may be nil; unknown tasks fall back to budget.DefaultBudget.
func New(reg registry.Registry, exec sandbox.Executor, c cache.Cache, bus *eventbus.Bus, binder StateBinder, workspaceRoot string, concurrency int, profiles map[string]TaskProfile) *Scheduler {
	if concurrency <= 0 {
		concurrency = defaultConcurrency()
	}
	if profiles == nil {
		profiles = make(map[string]TaskProfile)
	}
	return &Scheduler{
		jobs:          make(map[string]*jobRecord),
		sem:           make(chan struct{}, concurrency),
		registry:      reg,
		executor:      exec,
		cache:         c,
		bus:           bus,
		binder:        binder,
		profiles:      profiles,
		workspaceRoot: workspaceRoot,

		nondeterminism: kernel.NewNondeterminismTracker(),
	}
}

// NondeterminismReceipt returns the sealed receipt of every replay
// hash-mismatch detected for workspaceID since process start, or an
// error if none has been detected yet.
func (s *Scheduler) NondeterminismReceipt(workspaceID string) (*kernel.NondeterminismReceipt, error) {
	return s.nondeterminism.Receipt(workspaceID)
}

// WithBackpressure attaches a per-workspace admission limiter. Submit
// rejects with Resource.Limit before a job ever reaches the worker
// pool once its workspace exceeds policy; a nil store (the default)
// leaves admission governed by the worker-pool semaphore alone.
func (s *Scheduler) WithBackpressure(store kernel.LimiterStore, policy kernel.BackpressurePolicy) *Scheduler {
	s.limiter = store
	s.limiterPolicy = policy
	return s
}

func defaultConcurrency() int {
	n := runtime.GOMAXPROCS(0)
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Submit implements apply.ComputeSubmitter. A cache hit is served
// synchronously so it is measurably faster than a miss; a miss is
// admitted onto the worker pool and Submit returns immediately —
// execution, streaming, and binding continue asynchronously.
func (s *Scheduler) Submit(ctx context.Context, job model.JobSpec) error {
	job = job.WithDefaults()
	submitAt := time.Now()

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, job.WorkspaceID, s.limiterPolicy, 1)
		if err != nil {
			return fmt.Errorf("backpressure check: %w", err)
		}
		if !allowed {
			s.emitFinal(job, model.ErrResourceLimit, "workspace exceeded compute admission rate")
			return nil
		}
	}

	if job.Cache != model.CacheBypass && s.cache != nil {
		key, err := model.ComputeCacheKey(job)
		if err == nil {
			entry, getErr := s.cache.Get(ctx, job.WorkspaceID, key)
			if getErr == nil && entry != nil {
				s.serveCacheHit(job, entry)
				return nil
			}
			if errors.Is(getErr, cache.ErrNondeterministic) {
				s.nondeterminism.Capture(job.WorkspaceID, kernel.NDSourceCacheReplay,
					"cache replay hash mismatch", string(key), "", "")
			}
		}
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	rec := &jobRecord{cancel: cancel, state: "queued"}
	s.mu.Lock()
	s.jobs[job.JobID] = rec
	s.mu.Unlock()

	go s.run(jobCtx, rec, job, submitAt)
	return nil
}

// Cancel transitions jobID to cancelling, signals its context, and
// waits up to cancelGrace for it to settle. Already-terminal or
// unknown jobs are a no-op (returns false).
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	rec, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if rec.getState() == "done" {
		return false
	}
	rec.setState("cancelling")
	rec.cancel()

	deadline := time.Now().Add(cancelGrace)
	for time.Now().Before(deadline) {
		if rec.getState() == "done" {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}

func (s *Scheduler) run(ctx context.Context, rec *jobRecord, job model.JobSpec, submitAt time.Time) {
	defer func() {
		rec.setState("done")
		s.mu.Lock()
		delete(s.jobs, job.JobID)
		s.mu.Unlock()
	}()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		s.emitFinal(job, model.ErrCancelled, "cancelled while queued")
		return
	}
	rec.setState("running")

	deadline := job.Deadline(submitAt)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	entry, err := s.registry.Resolve(job.Task, "")
	if err != nil {
		s.emitFinal(job, model.ErrTaskNotFound, err.Error())
		return
	}

	profile := s.profiles[job.Task]
	runJob := job
	if runJob.Fuel == nil && profile.DefaultFuel > 0 {
		fuel := profile.DefaultFuel
		runJob.Fuel = &fuel
	}
	if runJob.MemLimitMb == nil && profile.DefaultMemLimitMb > 0 {
		mem := profile.DefaultMemLimitMb
		runJob.MemLimitMb = &mem
	}
	pol := sandbox.PolicyFromCapabilities(job.JobID, job.Capabilities, s.workspaceRoot)

	emitter := &busEmitter{bus: s.bus, traceID: job.Provenance.AgentTraceID}
	result, runErr := s.executor.Run(runCtx, runJob, entry.Wasm, pol, emitter)
	durationMs := time.Since(submitAt).Milliseconds()

	if runErr != nil {
		code, msg := classifyRunError(runCtx, runErr)
		s.emitFinal(job, code, msg)
		return
	}

	outputHash, err := contentHash(result.Output)
	if err != nil {
		s.emitFinal(job, model.ErrRuntimeFault, fmt.Sprintf("hashing output: %v", err))
		return
	}

	metrics := model.Metrics{
		DurationMs:    durationMs,
		FuelUsed:      result.FuelUsed,
		MemPeakMb:     result.MemPeakMb,
		CacheHit:      false,
		PartialFrames: emitter.seq,
		OutputHash:    outputHash,
	}

	for _, b := range job.Bind {
		if s.binder != nil {
			s.binder.BindOutput(b.ToStatePath, result.Output)
		}
	}

	if job.Replayable && job.Cache != model.CacheBypass && s.cache != nil {
		if key, err := model.ComputeCacheKey(job); err == nil {
			_ = s.cache.Put(context.Background(), job.WorkspaceID, model.CacheEntry{
				Key: key, Output: result.Output, Metrics: metrics,
				CreatedAt: time.Now().UTC(), Bytes: int64(len(result.Output)), Replayable: true,
			})
		}
	}

	final := model.NewOkFinal(job.JobID, job.Task, result.Output, metrics)
	s.bus.PublishFinal(job.Provenance.AgentTraceID, final)
}

// classifyRunError maps a sandbox error to the closed ComputeErrorCode
// taxonomy, distinguishing a deadline expiry (Timeout) from an
// explicit Cancel (Cancelled) using the run context's error.
func classifyRunError(runCtx context.Context, err error) (model.ComputeErrorCode, string) {
	var modelErr *model.Error
	kind := model.KindUnknown
	if asModelError(err, &modelErr) {
		kind = modelErr.Kind
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return model.ErrTimeout, "execution exceeded job deadline"
	}
	if runCtx.Err() == context.Canceled {
		return model.ErrCancelled, "job cancelled"
	}

	switch kind {
	case model.KindComputeTimeout:
		return model.ErrTimeout, err.Error()
	case model.KindComputeCancelled:
		return model.ErrCancelled, err.Error()
	case model.KindComputeCapabilityDenied:
		return model.ErrCapabilityDenied, err.Error()
	case model.KindComputeResourceLimit:
		return model.ErrResourceLimit, err.Error()
	case model.KindComputeIODenied:
		return model.ErrIODenied, err.Error()
	case model.KindComputeTaskNotFound:
		return model.ErrTaskNotFound, err.Error()
	case model.KindComputeNondeterministic:
		return model.ErrNondeterministic, err.Error()
	default:
		return model.ErrRuntimeFault, err.Error()
	}
}

func asModelError(err error, target **model.Error) bool {
	me, ok := err.(*model.Error)
	if ok {
		*target = me
	}
	return ok
}

func (s *Scheduler) emitFinal(job model.JobSpec, code model.ComputeErrorCode, message string) {
	final := model.NewErrFinal(job.JobID, job.Task, code, message)
	s.bus.PublishFinal(job.Provenance.AgentTraceID, final)
}

// serveCacheHit binds the cached output and publishes a synthetic
// Final with metrics.cacheHit=true, without touching the run-queue.
func (s *Scheduler) serveCacheHit(job model.JobSpec, entry *model.CacheEntry) {
	metrics := entry.Metrics
	metrics.CacheHit = true
	for _, b := range job.Bind {
		if s.binder != nil {
			s.binder.BindOutput(b.ToStatePath, entry.Output)
		}
	}
	final := model.NewOkFinal(job.JobID, job.Task, entry.Output, metrics)
	s.bus.PublishFinal(job.Provenance.AgentTraceID, final)
}

// busEmitter adapts the event bus to sandbox.PartialEmitter, counting
// frames and dropping malformed ones (empty jobID/task) rather than
// failing the job.
type busEmitter struct {
	bus     *eventbus.Bus
	traceID string
	seq     int
}

func (e *busEmitter) EmitPartial(jobID, task string, seq int, payload []byte) {
	if jobID == "" || task == "" {
		return
	}
	e.seq++
	e.bus.PublishPartial(e.traceID, model.PartialFrame{JobID: jobID, Task: task, Seq: int64(seq), Payload: payload})
}
