// Package queue implements the per-window FIFO queue: admission,
// idempotency dedup, partitioning by windowId, and ordered per-partition
// apply.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uicp/engine/pkg/model"
)

// ApplyFunc executes one partition's envelope slice and returns the
// outcome for that partition. Implemented by the Apply Engine.
type ApplyFunc func(ctx context.Context, windowID string, envelopes []model.Envelope) model.ApplyOutcome

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithTTL overrides the idempotency dedup TTL (default 15 minutes).
func WithTTL(ttl time.Duration) Option {
	return func(q *Queue) { q.ttl = ttl }
}

// WithCompactionThreshold overrides the lazy-compaction size trigger
// for the idempotency map (default 1000 entries).
func WithCompactionThreshold(n int) Option {
	return func(q *Queue) { q.compactionThreshold = n }
}

// WithWorkspaceReadyCheck injects a predicate consulted on every
// enqueue; batches are deferred (not processed) while it returns false.
func WithWorkspaceReadyCheck(ready func() bool) Option {
	return func(q *Queue) { q.workspaceReady = ready }
}

// WithClock overrides the queue's time source for testing.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// DefaultTTL is the idempotency dedup window per §4.3.
const DefaultTTL = 15 * time.Minute

// DefaultCompactionThreshold is the idempotency map's lazy-compaction
// trigger per §4.3.
const DefaultCompactionThreshold = 1000

// Queue is the per-window FIFO queue.
type Queue struct {
	apply               ApplyFunc
	ttl                 time.Duration
	compactionThreshold int
	workspaceReady      func() bool
	now                 func() time.Time

	mu        sync.Mutex
	seenAt    map[string]time.Time
	partLocks map[string]*sync.Mutex
}

// New builds a Queue that dispatches admitted partitions to apply.
func New(apply ApplyFunc, opts ...Option) *Queue {
	q := &Queue{
		apply:               apply,
		ttl:                 DefaultTTL,
		compactionThreshold: DefaultCompactionThreshold,
		now:                 time.Now,
		seenAt:              make(map[string]time.Time),
		partLocks:           make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnqueueResult reports whether the batch was deferred (workspace not
// yet mounted) or processed into an outcome.
type EnqueueResult struct {
	Deferred bool
	Outcome  model.ApplyOutcome
}

// Enqueue admits b per the §4.3 algorithm: validate, defer if the
// workspace isn't mounted, short-circuit txn.cancel, dedupe by
// idempotencyKey, partition by windowId, and run each partition.
// Distinct partitions execute concurrently; within a partition,
// envelopes apply in strict FIFO order because each partition serializes
// on its own mutex.
func (q *Queue) Enqueue(ctx context.Context, b model.Batch) EnqueueResult {
	if err := model.ValidateBatch(b); err != nil {
		return EnqueueResult{Outcome: model.ApplyOutcome{
			Success: false,
			Errors:  []string{err.Error()},
			BatchID: b.BatchID,
		}}
	}

	if q.workspaceReady != nil && !q.workspaceReady() {
		return EnqueueResult{Deferred: true}
	}

	if b.HasTxnCancel() {
		q.resetPartitions()
		outcome := q.runPartition(ctx, "", b.Envelopes)
		outcome.BatchID = b.BatchID
		return EnqueueResult{Outcome: outcome}
	}

	deduped, skipped := q.dedupe(b.Envelopes)
	partitioned := model.Batch{Envelopes: deduped}.Partition()

	type partResult struct {
		outcome model.ApplyOutcome
	}
	results := make(chan partResult, len(partitioned))
	var wg sync.WaitGroup
	for windowID, envs := range partitioned {
		wg.Add(1)
		go func(windowID string, envs []model.Envelope) {
			defer wg.Done()
			results <- partResult{outcome: q.runPartition(ctx, windowID, envs)}
		}(windowID, envs)
	}
	wg.Wait()
	close(results)

	merged := model.ApplyOutcome{Success: true, BatchID: b.BatchID}
	for r := range results {
		merged = merged.Merge(r.outcome)
	}
	merged.SkippedDuplicates += skipped

	if hash, err := model.HashOps(b); err == nil {
		merged.OpsHash = hash
	}
	return EnqueueResult{Outcome: merged}
}

// runPartition serializes execution for windowID and recovers any
// panic from apply into an error outcome so one partition's failure
// never halts another partition's progress.
func (q *Queue) runPartition(ctx context.Context, windowID string, envs []model.Envelope) (outcome model.ApplyOutcome) {
	if len(envs) == 0 {
		return model.ApplyOutcome{Success: true}
	}
	lock := q.partitionLock(windowID)
	lock.Lock()
	defer lock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			outcome = model.ApplyOutcome{
				Success: false,
				Errors:  []string{fmt.Sprintf("partition %q apply panicked: %v", windowID, r)},
			}
		}
	}()
	return q.apply(ctx, windowID, envs)
}

func (q *Queue) partitionLock(windowID string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	lock, ok := q.partLocks[windowID]
	if !ok {
		lock = &sync.Mutex{}
		q.partLocks[windowID] = lock
	}
	return lock
}

// resetPartitions drops references to per-window locks so that any
// work not yet admitted picks up a fresh lock; in-flight holders keep
// executing to completion (in-flight applies are never interrupted
// mid-apply per §5).
func (q *Queue) resetPartitions() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.partLocks = make(map[string]*sync.Mutex)
}

// dedupe filters envelopes whose idempotencyKey was seen within the
// TTL, recording newly seen keys and lazily compacting expired
// entries once the map exceeds compactionThreshold.
func (q *Queue) dedupe(envs []model.Envelope) (kept []model.Envelope, skipped int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.seenAt) > q.compactionThreshold {
		q.compactLocked()
	}

	now := q.now()
	kept = make([]model.Envelope, 0, len(envs))
	for _, e := range envs {
		if e.IdempotencyKey == "" {
			kept = append(kept, e)
			continue
		}
		if seenAt, ok := q.seenAt[e.IdempotencyKey]; ok && now.Sub(seenAt) < q.ttl {
			skipped++
			continue
		}
		q.seenAt[e.IdempotencyKey] = now
		kept = append(kept, e)
	}
	return kept, skipped
}

func (q *Queue) compactLocked() {
	now := q.now()
	for k, seenAt := range q.seenAt {
		if now.Sub(seenAt) >= q.ttl {
			delete(q.seenAt, k)
		}
	}
}
