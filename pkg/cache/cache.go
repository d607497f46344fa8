// Package cache is the content-addressed, replay-deterministic cache:
// a sqlite-backed LRU index over blobs held in an artifacts.Store.
// Key identity is computed by model.ComputeCacheKey; a replayed hit
// whose recomputed outputHash disagrees with the recorded one is
// treated as Nondeterministic and evicted rather than served.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uicp/engine/pkg/artifacts"
	"github.com/uicp/engine/pkg/canonicalize"
	"github.com/uicp/engine/pkg/model"
)

// ErrNondeterministic signals a cached entry's output no longer
// matches its recorded hash; the caller must treat this as a miss and
// re-run the job.
var ErrNondeterministic = errors.New("cache: output hash mismatch, entry evicted")

// Cache exposes the Content-Addressed Cache's external surface.
type Cache interface {
	Get(ctx context.Context, workspaceID string, key model.CacheKey) (*model.CacheEntry, error)
	Put(ctx context.Context, workspaceID string, entry model.CacheEntry) error
	Clear(ctx context.Context, workspaceID string) error
	Size(ctx context.Context, workspaceID string) (int64, error)
}

// SQLiteCache indexes cache entries in a sqlite table and stores
// their output blobs in an artifacts.Store, with byte-budgeted LRU
// eviction per workspace.
type SQLiteCache struct {
	db         *sql.DB
	blobs      artifacts.Store
	byteBudget int64
}

// NewSQLiteCache opens (or creates) the index table at db and pairs it
// with blobs for output storage. byteBudget bounds each workspace's
// total cached bytes; LRU eviction runs on every Put that exceeds it.
func NewSQLiteCache(ctx context.Context, db *sql.DB, blobs artifacts.Store, byteBudget int64) (*SQLiteCache, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	workspace_id TEXT NOT NULL,
	cache_key    TEXT NOT NULL,
	blob_hash    TEXT NOT NULL,
	metrics_json TEXT NOT NULL,
	bytes        INTEGER NOT NULL,
	replayable   INTEGER NOT NULL,
	created_at   TEXT NOT NULL,
	accessed_at  TEXT NOT NULL,
	PRIMARY KEY (workspace_id, cache_key)
);
CREATE INDEX IF NOT EXISTS idx_cache_lru ON cache_entries(workspace_id, accessed_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return &SQLiteCache{db: db, blobs: blobs, byteBudget: byteBudget}, nil
}

// Get probes the index for (workspaceID, key). On hit it re-fetches
// the blob, verifies its content hash still matches what was recorded,
// touches the access time (LRU bump), and returns the entry. A
// recomputed-hash mismatch returns ErrNondeterministic and evicts the
// row so no subsequent caller is served the stale entry.
func (c *SQLiteCache) Get(ctx context.Context, workspaceID string, key model.CacheKey) (*model.CacheEntry, error) {
	var blobHash, metricsJSON string
	var bytes int64
	var replayable int
	var createdAt string

	row := c.db.QueryRowContext(ctx,
		`SELECT blob_hash, metrics_json, bytes, replayable, created_at FROM cache_entries WHERE workspace_id = ? AND cache_key = ?`,
		workspaceID, string(key))
	if err := row.Scan(&blobHash, &metricsJSON, &bytes, &replayable, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: query entry: %w", err)
	}

	output, err := c.blobs.Get(ctx, blobHash)
	if err != nil {
		return nil, fmt.Errorf("cache: fetch blob: %w", err)
	}

	var metrics model.Metrics
	if err := json.Unmarshal([]byte(metricsJSON), &metrics); err != nil {
		return nil, fmt.Errorf("cache: decode metrics: %w", err)
	}

	if metrics.OutputHash != "" {
		recomputed, err := contentHash(output)
		if err != nil {
			return nil, err
		}
		if recomputed != metrics.OutputHash {
			_ = c.evict(ctx, workspaceID, key)
			return nil, ErrNondeterministic
		}
	}

	_, _ = c.db.ExecContext(ctx, `UPDATE cache_entries SET accessed_at = ? WHERE workspace_id = ? AND cache_key = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), workspaceID, string(key))

	created, _ := time.Parse(time.RFC3339Nano, createdAt)
	return &model.CacheEntry{
		Key:        key,
		Output:     output,
		Metrics:    metrics,
		CreatedAt:  created,
		Bytes:      bytes,
		Replayable: replayable != 0,
	}, nil
}

// Put persists entry's output blob and indexes it under
// (workspaceID, entry.Key), then runs LRU eviction if the workspace
// now exceeds the byte budget. Only replayable entries are ever
// written; callers must not call Put for non-replayable jobs.
func (c *SQLiteCache) Put(ctx context.Context, workspaceID string, entry model.CacheEntry) error {
	if !entry.Replayable {
		return nil
	}
	blobHash, err := c.blobs.Store(ctx, entry.Output)
	if err != nil {
		return fmt.Errorf("cache: store blob: %w", err)
	}
	metricsJSON, err := json.Marshal(entry.Metrics)
	if err != nil {
		return fmt.Errorf("cache: encode metrics: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = c.db.ExecContext(ctx, `
INSERT INTO cache_entries (workspace_id, cache_key, blob_hash, metrics_json, bytes, replayable, created_at, accessed_at)
VALUES (?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(workspace_id, cache_key) DO UPDATE SET
	blob_hash = excluded.blob_hash,
	metrics_json = excluded.metrics_json,
	bytes = excluded.bytes,
	accessed_at = excluded.accessed_at
`, workspaceID, string(entry.Key), blobHash, string(metricsJSON), entry.Bytes, now, now)
	if err != nil {
		return fmt.Errorf("cache: insert entry: %w", err)
	}

	return c.evictToBudget(ctx, workspaceID)
}

// Clear removes every entry for workspaceID, leaving other workspaces
// untouched.
func (c *SQLiteCache) Clear(ctx context.Context, workspaceID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return fmt.Errorf("cache: clear workspace: %w", err)
	}
	return nil
}

// Size returns workspaceID's total cached bytes across all entries.
func (c *SQLiteCache) Size(ctx context.Context, workspaceID string) (int64, error) {
	var total sql.NullInt64
	row := c.db.QueryRowContext(ctx, `SELECT SUM(bytes) FROM cache_entries WHERE workspace_id = ?`, workspaceID)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("cache: size query: %w", err)
	}
	return total.Int64, nil
}

func (c *SQLiteCache) evict(ctx context.Context, workspaceID string, key model.CacheKey) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE workspace_id = ? AND cache_key = ?`, workspaceID, string(key))
	return err
}

// evictToBudget drops the least-recently-accessed rows for workspaceID
// until its total bytes fits within c.byteBudget. A zero or negative
// budget disables eviction.
func (c *SQLiteCache) evictToBudget(ctx context.Context, workspaceID string) error {
	if c.byteBudget <= 0 {
		return nil
	}
	for {
		total, err := c.Size(ctx, workspaceID)
		if err != nil {
			return err
		}
		if total <= c.byteBudget {
			return nil
		}
		var key string
		row := c.db.QueryRowContext(ctx,
			`SELECT cache_key FROM cache_entries WHERE workspace_id = ? ORDER BY accessed_at ASC LIMIT 1`, workspaceID)
		if err := row.Scan(&key); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("cache: eviction scan: %w", err)
		}
		if err := c.evict(ctx, workspaceID, model.CacheKey(key)); err != nil {
			return fmt.Errorf("cache: evict oldest: %w", err)
		}
	}
}

func contentHash(data []byte) (string, error) {
	return "sha256:" + canonicalize.HashBytes(data), nil
}
