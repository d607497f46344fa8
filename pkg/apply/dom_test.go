package apply

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uicp/engine/pkg/model"
)

func TestDomWrite_RequiresExistingWindow(t *testing.T) {
	e := newTestEngine()
	r := e.Dispatch(nil, envelope(model.OpDomSet, "missing", domParams{WindowID: "missing", Target: "#root", HTML: "<p>hi</p>"}))
	require.False(t, r.Success)
}

func TestDomWrite_RequiresTarget(t *testing.T) {
	e := newTestEngine()
	e.Dispatch(nil, envelope(model.OpWindowCreate, "w1", windowParams{ID: "w1"}))
	r := e.Dispatch(nil, envelope(model.OpDomSet, "w1", domParams{WindowID: "w1", HTML: "<p>hi</p>"}))
	require.False(t, r.Success)
}

func TestDomWrite_SanitizesHTML(t *testing.T) {
	e := newTestEngine()
	e.Dispatch(nil, envelope(model.OpWindowCreate, "w1", windowParams{ID: "w1"}))

	r := e.Dispatch(nil, envelope(model.OpDomSet, "w1", domParams{WindowID: "w1", Target: "#root", HTML: "<script>alert(1)</script><p onclick=\"x()\">hi</p>"}))
	require.True(t, r.Success)

	res, ok := r.Value.(domWriteResult)
	require.True(t, ok)
	require.NotContains(t, string(res.HTML), "<script")
	require.NotContains(t, string(res.HTML), "onclick")
	require.Contains(t, string(res.HTML), "hi")
}
