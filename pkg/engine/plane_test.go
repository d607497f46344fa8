package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uicp/engine/pkg/config"
	"github.com/uicp/engine/pkg/model"
	"github.com/uicp/engine/pkg/policy"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		WorkspaceRoot:                  root,
		ModulesDir:                     filepath.Join(root, "modules"),
		CacheDir:                       filepath.Join(root, "cache"),
		StateDir:                       filepath.Join(root, "state"),
		SchedulerConcurrency:           2,
		IdempotencyTTL:                 0,
		IdempotencyCompactionThreshold: 1000,
		SafeMode:                       true,
		CacheByteBudget:                64 * 1024 * 1024,
		ArtifactStorageType:            "fs",
	}
}

func TestBuild_WiresApplyAndSchedulerTogether(t *testing.T) {
	cfg := testConfig(t)
	plane, err := Build(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	defer plane.Shutdown(context.Background())

	assert.NotNil(t, plane.Queue)
	assert.NotNil(t, plane.Scheduler)
	assert.NotNil(t, plane.Apply)
}

func TestBuild_ComputeCallRoutesThroughApplyIntoScheduler(t *testing.T) {
	cfg := testConfig(t)
	plane, err := Build(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	defer plane.Shutdown(context.Background())

	bodyJSON, err := json.Marshal(map[string]any{"task": "missing.run", "input": "hi"})
	require.NoError(t, err)
	paramsJSON, err := json.Marshal(map[string]any{
		"url":  "uicp://compute.call",
		"body": json.RawMessage(bodyJSON),
	})
	require.NoError(t, err)

	batch := model.Batch{
		BatchID: "b1",
		Envelopes: []model.Envelope{
			{
				Op:       model.OpAPICall,
				WindowID: "w1",
				TraceID:  "t1",
				Params:   paramsJSON,
			},
		},
	}

	result := plane.Queue.Enqueue(context.Background(), batch)
	assert.False(t, result.Deferred)
	assert.True(t, result.Outcome.Success)
}

func TestLocalFileWriter_RejectsDesktopWithoutDevFlag(t *testing.T) {
	gate, err := policy.NewGate(false)
	require.NoError(t, err)
	w := newLocalFileWriter(t.TempDir(), gate)

	err = w.WriteTextFile(policy.BaseDirDesktop, "notes.txt", "hello")
	assert.Error(t, err)
}

func TestLocalFileWriter_WritesUnderWorkspaceRoot(t *testing.T) {
	gate, err := policy.NewGate(false)
	require.NoError(t, err)
	root := t.TempDir()
	w := newLocalFileWriter(root, gate)

	err = w.WriteTextFile(policy.BaseDirDocument, "notes.txt", "hello")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "fs", "Document", "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
