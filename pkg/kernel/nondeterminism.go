// Package kernel — nondeterminism bounds and receipts.
//
// A job marked replayable must not consult the wall clock or
// non-seeded randomness, and a cache hit must reproduce the exact
// outputHash recorded at write time. When the host detects one of
// these anyway, it captures a bound rather than silently serving (or
// discarding) the divergent result, and the workspace's sealed receipt
// is what the bridge exposes to callers asking why a replay diverged.
package kernel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// NondeterminismSource identifies why a job or cache replay could not
// be trusted to reproduce its prior result.
type NondeterminismSource string

const (
	// NDSourceClock marks a replayable task observing wall-clock time.
	NDSourceClock NondeterminismSource = "WALL_CLOCK"
	// NDSourceRandom marks a replayable task drawing non-seeded randomness.
	NDSourceRandom NondeterminismSource = "RANDOM_SEED"
	// NDSourceExternal marks a capability call (network, filesystem) whose
	// response cannot be guaranteed to repeat on replay.
	NDSourceExternal NondeterminismSource = "CAPABILITY_IO"
	// NDSourceCacheReplay marks a cache hit whose recomputed outputHash
	// disagreed with the hash recorded at write time.
	NDSourceCacheReplay NondeterminismSource = "CACHE_REPLAY"
)

// NondeterminismBound captures one nondeterministic observation tied
// to a workspace, with enough hash material to audit it later.
type NondeterminismBound struct {
	BoundID     string               `json:"bound_id"`
	WorkspaceID string               `json:"workspace_id"`
	Source      NondeterminismSource `json:"source"`
	Description string               `json:"description"`
	InputHash   string               `json:"input_hash"`
	OutputHash  string               `json:"output_hash"`
	Seed        string               `json:"seed,omitempty"`
	CapturedAt  time.Time            `json:"captured_at"`
	ContentHash string               `json:"content_hash"`
}

// NondeterminismReceipt seals every bound captured for a workspace so
// far into one auditable, content-hashed record.
type NondeterminismReceipt struct {
	ReceiptID   string                `json:"receipt_id"`
	WorkspaceID string                `json:"workspace_id"`
	Bounds      []NondeterminismBound `json:"bounds"`
	TotalBounds int                   `json:"total_bounds"`
	ContentHash string                `json:"content_hash"`
}

// NondeterminismTracker accumulates bounds per workspace for the
// process lifetime and seals them into receipts on demand.
type NondeterminismTracker struct {
	mu          sync.Mutex
	byWorkspace map[string][]NondeterminismBound
	seq         int64
	clock       func() time.Time
}

// NewNondeterminismTracker creates an empty tracker.
func NewNondeterminismTracker() *NondeterminismTracker {
	return &NondeterminismTracker{
		byWorkspace: make(map[string][]NondeterminismBound),
		clock:       time.Now,
	}
}

// WithClock overrides the tracker's clock; tests use this for
// deterministic CapturedAt/ContentHash values.
func (t *NondeterminismTracker) WithClock(clock func() time.Time) *NondeterminismTracker {
	t.clock = clock
	return t
}

// Capture records one nondeterministic observation for workspaceID.
func (t *NondeterminismTracker) Capture(workspaceID string, source NondeterminismSource, description, inputHash, outputHash, seed string) *NondeterminismBound {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	boundID := fmt.Sprintf("nd-%d", t.seq)
	now := t.clock()

	hashInput := fmt.Sprintf("%s:%s:%s:%s:%s", boundID, source, inputHash, outputHash, now.String())
	h := sha256.Sum256([]byte(hashInput))

	bound := NondeterminismBound{
		BoundID:     boundID,
		WorkspaceID: workspaceID,
		Source:      source,
		Description: description,
		InputHash:   inputHash,
		OutputHash:  outputHash,
		Seed:        seed,
		CapturedAt:  now,
		ContentHash: "sha256:" + hex.EncodeToString(h[:]),
	}

	t.byWorkspace[workspaceID] = append(t.byWorkspace[workspaceID], bound)
	return &bound
}

// Receipt seals every bound captured for workspaceID. It errors if
// nothing has been captured yet, distinguishing "clean" from "never
// checked" for callers like the admin bridge route.
func (t *NondeterminismTracker) Receipt(workspaceID string) (*NondeterminismReceipt, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bounds, ok := t.byWorkspace[workspaceID]
	if !ok {
		return nil, fmt.Errorf("no nondeterminism tracked for workspace %q", workspaceID)
	}

	hashInput := fmt.Sprintf("receipt:%s:%d", workspaceID, len(bounds))
	h := sha256.Sum256([]byte(hashInput))

	return &NondeterminismReceipt{
		ReceiptID:   fmt.Sprintf("ndr-%s", workspaceID),
		WorkspaceID: workspaceID,
		Bounds:      bounds,
		TotalBounds: len(bounds),
		ContentHash: "sha256:" + hex.EncodeToString(h[:]),
	}, nil
}

// BoundsForWorkspace returns every bound captured for workspaceID.
func (t *NondeterminismTracker) BoundsForWorkspace(workspaceID string) []NondeterminismBound {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byWorkspace[workspaceID]
}
