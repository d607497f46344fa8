package cache

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uicp/engine/pkg/model"
)

type fakeBlobStore struct {
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore { return &fakeBlobStore{blobs: make(map[string][]byte)} }

func (f *fakeBlobStore) Store(ctx context.Context, data []byte) (string, error) {
	hash, _ := contentHash(data)
	f.blobs[hash] = data
	return hash, nil
}

func (f *fakeBlobStore) Get(ctx context.Context, hash string) ([]byte, error) {
	data, ok := f.blobs[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (f *fakeBlobStore) Exists(ctx context.Context, hash string) (bool, error) {
	_, ok := f.blobs[hash]
	return ok, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, hash string) error {
	delete(f.blobs, hash)
	return nil
}

func TestSQLiteCache_GetMissReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &SQLiteCache{db: db, blobs: newFakeBlobStore(), byteBudget: 0}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT blob_hash, metrics_json, bytes, replayable, created_at FROM cache_entries")).
		WithArgs("ws1", "key1").
		WillReturnRows(sqlmock.NewRows([]string{"blob_hash", "metrics_json", "bytes", "replayable", "created_at"}))

	entry, err := c.Get(context.Background(), "ws1", model.CacheKey("key1"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSQLiteCache_PutThenGetRoundTrips(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	blobs := newFakeBlobStore()
	c := &SQLiteCache{db: db, blobs: blobs, byteBudget: 0}

	output := []byte(`{"result":42}`)
	hash, err := contentHash(output)
	require.NoError(t, err)
	metrics := model.Metrics{OutputHash: hash}
	metricsJSON, err := json.Marshal(metrics)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cache_entries")).
		WithArgs("ws1", "key1", hash, string(metricsJSON), int64(len(output)), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = c.Put(context.Background(), "ws1", model.CacheEntry{
		Key: "key1", Output: output, Metrics: metrics, Bytes: int64(len(output)), Replayable: true,
	})
	require.NoError(t, err)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT blob_hash, metrics_json, bytes, replayable, created_at FROM cache_entries")).
		WithArgs("ws1", "key1").
		WillReturnRows(sqlmock.NewRows([]string{"blob_hash", "metrics_json", "bytes", "replayable", "created_at"}).
			AddRow(hash, string(metricsJSON), int64(len(output)), 1, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cache_entries SET accessed_at")).
		WithArgs(sqlmock.AnyArg(), "ws1", "key1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry, err := c.Get(context.Background(), "ws1", model.CacheKey("key1"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, json.RawMessage(output), entry.Output)
	assert.True(t, entry.Replayable)
}

func TestSQLiteCache_HashMismatchEvictsAndReturnsNondeterministic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	blobs := newFakeBlobStore()
	staleOutput := []byte(`{"result":1}`)
	hash, _ := blobs.Store(context.Background(), staleOutput)
	c := &SQLiteCache{db: db, blobs: blobs, byteBudget: 0}

	metrics := model.Metrics{OutputHash: "sha256:does-not-match"}
	metricsJSON, _ := json.Marshal(metrics)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT blob_hash, metrics_json, bytes, replayable, created_at FROM cache_entries")).
		WithArgs("ws1", "key1").
		WillReturnRows(sqlmock.NewRows([]string{"blob_hash", "metrics_json", "bytes", "replayable", "created_at"}).
			AddRow(hash, string(metricsJSON), int64(len(staleOutput)), 1, time.Now().UTC().Format(time.RFC3339Nano)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cache_entries WHERE workspace_id = ? AND cache_key = ?")).
		WithArgs("ws1", "key1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = c.Get(context.Background(), "ws1", model.CacheKey("key1"))
	assert.ErrorIs(t, err, ErrNondeterministic)
}

func TestSQLiteCache_Clear(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &SQLiteCache{db: db, blobs: newFakeBlobStore(), byteBudget: 0}
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cache_entries WHERE workspace_id = ?")).
		WithArgs("ws1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, c.Clear(context.Background(), "ws1"))
}

func TestSQLiteCache_NonReplayableEntryIsNeverWritten(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &SQLiteCache{db: db, blobs: newFakeBlobStore(), byteBudget: 0}
	err = c.Put(context.Background(), "ws1", model.CacheEntry{Key: "key1", Replayable: false})
	assert.NoError(t, err)
}
