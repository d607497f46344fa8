package apply

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uicp/engine/pkg/model"
)

func TestTxnCancel_ClearsComponentsButKeepsWindows(t *testing.T) {
	e := newTestEngine()
	e.Dispatch(nil, envelope(model.OpWindowCreate, "w1", windowParams{ID: "w1"}))
	e.Dispatch(nil, envelope(model.OpComponentRender, "w1", componentParams{WindowID: "w1", ID: "c1", HTML: "<div>hi</div>"}))

	r := e.Dispatch(nil, envelope(model.OpTxnCancel, "", nil))
	require.True(t, r.Success)

	e.mu.Lock()
	n := len(e.components)
	e.mu.Unlock()
	require.Equal(t, 0, n)

	_, exists := e.Window("w1")
	require.True(t, exists)
}

func TestTxnCancel_AlwaysSucceedsEvenWhenEmpty(t *testing.T) {
	e := newTestEngine()
	r := e.Dispatch(nil, envelope(model.OpTxnCancel, "", nil))
	require.True(t, r.Success)
}
