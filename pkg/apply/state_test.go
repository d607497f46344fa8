package apply

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uicp/engine/pkg/model"
)

func TestStateSetAndGet_RoundTrips(t *testing.T) {
	e := newTestEngine()
	r := e.Dispatch(nil, envelope(model.OpStateSet, "", stateSetParams{Scope: model.ScopeWorkspace, Key: "k1", Value: json.RawMessage(`{"a":1}`)}))
	require.True(t, r.Success)

	r = e.Dispatch(nil, envelope(model.OpStateGet, "", stateGetParams{Scope: model.ScopeWorkspace, Key: "k1"}))
	require.True(t, r.Success)
	require.JSONEq(t, `{"a":1}`, string(r.Value.(json.RawMessage)))
}

func TestStateGet_ReturnsNilWithoutErrorWhenAbsent(t *testing.T) {
	e := newTestEngine()
	r := e.Dispatch(nil, envelope(model.OpStateGet, "", stateGetParams{Scope: model.ScopeGlobal, Key: "absent"}))
	require.True(t, r.Success)
	require.Nil(t, r.Value)
}

func TestStateSet_IsLastWriterWins(t *testing.T) {
	e := newTestEngine()
	e.Dispatch(nil, envelope(model.OpStateSet, "", stateSetParams{Scope: model.ScopeWindow, Key: "k", Value: json.RawMessage(`1`)}))
	e.Dispatch(nil, envelope(model.OpStateSet, "", stateSetParams{Scope: model.ScopeWindow, Key: "k", Value: json.RawMessage(`2`)}))

	v, exists := e.StateValue(model.ScopeWindow, "k")
	require.True(t, exists)
	require.JSONEq(t, "2", string(v))
}

func TestBindOutput_WritesWorkspaceScope(t *testing.T) {
	e := newTestEngine()
	e.bindOutput("workspace.artifacts.job1", json.RawMessage(`"done"`))

	v, exists := e.StateValue(model.ScopeWorkspace, "workspace.artifacts.job1")
	require.True(t, exists)
	require.JSONEq(t, `"done"`, string(v))
}
