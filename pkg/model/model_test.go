package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBatchPartition_PreservesOrderWithinWindow(t *testing.T) {
	b := Batch{Envelopes: []Envelope{
		{Op: OpDomSet, WindowID: "w1"},
		{Op: OpStateSet, WindowID: ""},
		{Op: OpDomAppend, WindowID: "w1"},
		{Op: OpWindowCreate, WindowID: "w2"},
	}}

	parts := b.Partition()
	require.Len(t, parts["w1"], 2)
	require.Equal(t, OpDomSet, parts["w1"][0].Op)
	require.Equal(t, OpDomAppend, parts["w1"][1].Op)
	require.Len(t, parts[""], 1)
	require.Len(t, parts["w2"], 1)
}

func TestBatchHasTxnCancel(t *testing.T) {
	require.True(t, Batch{Envelopes: []Envelope{{Op: OpTxnCancel}}}.HasTxnCancel())
	require.False(t, Batch{Envelopes: []Envelope{{Op: OpStateSet}}}.HasTxnCancel())
}

func TestOpRequiresWindow(t *testing.T) {
	require.True(t, OpDomSet.RequiresWindow())
	require.True(t, OpComponentRender.RequiresWindow())
	require.False(t, OpStateSet.RequiresWindow())
	require.False(t, OpAPICall.RequiresWindow())
}

func TestJobSpecWithDefaults(t *testing.T) {
	j := JobSpec{}.WithDefaults()
	require.Equal(t, DefaultTimeoutMs, j.TimeoutMs)
	require.Equal(t, DefaultWorkspaceID, j.WorkspaceID)

	explicit := JobSpec{TimeoutMs: 5000, WorkspaceID: "ws-1"}.WithDefaults()
	require.Equal(t, 5000, explicit.TimeoutMs)
	require.Equal(t, "ws-1", explicit.WorkspaceID)
}

func TestJobSpecDeadline(t *testing.T) {
	submitAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := JobSpec{TimeoutMs: 1000}
	require.Equal(t, submitAt.Add(time.Second), j.Deadline(submitAt))
}

func TestJobSpecEffectiveFuelAndMem(t *testing.T) {
	var fuel uint64 = 500
	memLimit := 64
	j := JobSpec{Fuel: &fuel, MemLimitMb: &memLimit}
	require.Equal(t, uint64(500), j.EffectiveFuel(1000))
	require.Equal(t, 64, j.EffectiveMemLimitMb(128))

	empty := JobSpec{}
	require.Equal(t, uint64(1000), empty.EffectiveFuel(1000))
	require.Equal(t, 128, empty.EffectiveMemLimitMb(128))
}

func TestComputeCacheKey_StableAndEnvHashSensitive(t *testing.T) {
	j := JobSpec{
		Task:        "csv.parse@1.2.0",
		Input:       json.RawMessage(`{"b":2,"a":1}`),
		WorkspaceID: "default",
		Provenance:  Provenance{EnvHash: "e2e"},
	}
	k1, err := ComputeCacheKey(j)
	require.NoError(t, err)
	k2, err := ComputeCacheKey(j)
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	other := j
	other.Provenance = Provenance{EnvHash: "different"}
	k3, err := ComputeCacheKey(other)
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)
}

func TestComputeCacheKey_FieldOrderIndependent(t *testing.T) {
	a := JobSpec{Task: "t@1.0.0", Input: json.RawMessage(`{"x":1,"y":2}`), WorkspaceID: "default"}
	b := JobSpec{Task: "t@1.0.0", Input: json.RawMessage(`{"y":2,"x":1}`), WorkspaceID: "default"}

	ka, err := ComputeCacheKey(a)
	require.NoError(t, err)
	kb, err := ComputeCacheKey(b)
	require.NoError(t, err)
	require.Equal(t, ka, kb)
}

func TestNewOkFinalAndErrFinal(t *testing.T) {
	ok := NewOkFinal("job-1", "csv.parse@1.2.0", json.RawMessage(`{"rows":1}`), Metrics{CacheHit: true})
	require.True(t, ok.Ok)
	require.NotNil(t, ok.Metrics)
	require.True(t, ok.Metrics.CacheHit)

	failed := NewErrFinal("job-2", "csv.parse@1.2.0", ErrTimeout, "deadline exceeded")
	require.False(t, failed.Ok)
	require.Equal(t, ErrTimeout, failed.Code)
}

func TestApplyOutcomeMerge(t *testing.T) {
	a := ApplyOutcome{Success: true, Applied: 2, SkippedDuplicates: 1, Errors: []string{"e1"}}
	b := ApplyOutcome{Success: false, Applied: 1, DeniedByPolicy: 1, Errors: []string{"e2"}}

	merged := a.Merge(b)
	require.False(t, merged.Success)
	require.Equal(t, 3, merged.Applied)
	require.Equal(t, 1, merged.SkippedDuplicates)
	require.Equal(t, 1, merged.DeniedByPolicy)
	require.Equal(t, []string{"e1", "e2"}, merged.Errors)
}

func TestNewError_DerivesCodeFromKind(t *testing.T) {
	err := NewError(KindWindowNotFound, "window w1 not found", nil)
	require.Equal(t, "E-UICP-0403", err.Code)
	require.Contains(t, err.Error(), "window w1 not found")

	unknown := NewError(ErrorKind("bogus"), "fallback", nil)
	require.Equal(t, "E-UICP-0999", unknown.Code)
}

func TestFromComputeCode(t *testing.T) {
	require.Equal(t, KindComputeTimeout, FromComputeCode(ErrTimeout))
	require.Equal(t, KindComputeNondeterministic, FromComputeCode(ErrNondeterministic))
	require.Equal(t, KindUnknown, FromComputeCode(ComputeErrorCode("bogus")))
}
