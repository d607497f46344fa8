package apply

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uicp/engine/pkg/model"
	"github.com/uicp/engine/pkg/policy"
)

type fakeCompute struct {
	submitted []model.JobSpec
	err       error
}

func (f *fakeCompute) Submit(ctx context.Context, job model.JobSpec) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, job)
	return nil
}

type fakeHTTP struct {
	status      int
	contentType string
	body        []byte
	err         error
}

func (f *fakeHTTP) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (int, string, []byte, error) {
	if f.err != nil {
		return 0, "", nil, f.err
	}
	return f.status, f.contentType, f.body, nil
}

type fakeFiles struct {
	written map[string]string
	err     error
}

func (f *fakeFiles) WriteTextFile(baseDir policy.BaseDir, path, contents string) error {
	if f.err != nil {
		return f.err
	}
	if f.written == nil {
		f.written = map[string]string{}
	}
	f.written[path] = contents
	return nil
}

type fakeIntents struct {
	windowID  string
	text      string
	clarifier json.RawMessage
	err       error
}

func (f *fakeIntents) DispatchIntent(ctx context.Context, windowID, text string, clarifier json.RawMessage) error {
	if f.err != nil {
		return f.err
	}
	f.windowID, f.text, f.clarifier = windowID, text, clarifier
	return nil
}

func newGate(t *testing.T, devWriteDesktop bool) *policy.Gate {
	g, err := policy.NewGate(devWriteDesktop)
	require.NoError(t, err)
	return g
}

func TestApiCall_ComputeCallSubmitsJob(t *testing.T) {
	compute := &fakeCompute{}
	e := New(Dependencies{Gate: newGate(t, false), Compute: compute, EnvHash: "env-123"})

	body, _ := json.Marshal(computeCallBody{Task: "csv.parse", Input: json.RawMessage(`{"rows":1}`)})
	r := e.Dispatch(context.Background(), envelope(model.OpAPICall, "", apiCallParams{URL: "uicp://compute.call", Body: body}))

	require.True(t, r.Success)
	require.Len(t, compute.submitted, 1)
	require.Equal(t, "csv.parse", compute.submitted[0].Task)
	require.Equal(t, "env-123", compute.submitted[0].Provenance.EnvHash)
	require.Equal(t, model.DefaultWorkspaceID, compute.submitted[0].WorkspaceID)
}

func TestApiCall_ComputeCallFailsWithoutSubmitter(t *testing.T) {
	e := New(Dependencies{Gate: newGate(t, false)})
	r := e.Dispatch(context.Background(), envelope(model.OpAPICall, "", apiCallParams{URL: "uicp://compute.call"}))
	require.False(t, r.Success)
}

func TestApiCall_IntentDispatchesEvent(t *testing.T) {
	intents := &fakeIntents{}
	e := New(Dependencies{Gate: newGate(t, false), Intents: intents})

	body, _ := json.Marshal(clarifierShape{Text: "open the file"})
	r := e.Dispatch(context.Background(), envelope(model.OpAPICall, "w1", apiCallParams{URL: "uicp://intent", Body: body}))

	require.True(t, r.Success)
	require.Equal(t, "w1", intents.windowID)
	require.Equal(t, "open the file", intents.text)
}

func TestApiCall_FsWriteRejectsDesktopWithoutDevFlag(t *testing.T) {
	files := &fakeFiles{}
	e := New(Dependencies{Gate: newGate(t, false), Files: files})

	body, _ := json.Marshal(fsWriteBody{BaseDir: policy.BaseDirDesktop, Path: "note.txt", Contents: "hi"})
	r := e.Dispatch(context.Background(), envelope(model.OpAPICall, "", apiCallParams{URL: "tauri://fs/writeTextFile", Body: body}))

	require.False(t, r.Success)
	require.Empty(t, files.written)
}

func TestApiCall_FsWriteSucceedsWithAllowedBaseDir(t *testing.T) {
	files := &fakeFiles{}
	e := New(Dependencies{Gate: newGate(t, false), Files: files})

	body, _ := json.Marshal(fsWriteBody{BaseDir: policy.BaseDirAppData, Path: "note.txt", Contents: "hi"})
	r := e.Dispatch(context.Background(), envelope(model.OpAPICall, "", apiCallParams{URL: "tauri://fs/writeTextFile", Body: body}))

	require.True(t, r.Success)
	require.Equal(t, "hi", files.written["note.txt"])
}

func TestApiCall_HTTPFetchRejectsDisallowedMethod(t *testing.T) {
	e := New(Dependencies{Gate: newGate(t, false), HTTP: &fakeHTTP{status: 200}})
	r := e.Dispatch(context.Background(), envelope(model.OpAPICall, "", apiCallParams{URL: "https://example.com", Method: "TRACE"}))
	require.False(t, r.Success)
}

func TestApiCall_HTTPFetchParsesJSONResponse(t *testing.T) {
	http := &fakeHTTP{status: 200, contentType: "application/json", body: []byte(`{"ok":true}`)}
	e := New(Dependencies{Gate: newGate(t, false), HTTP: http})

	r := e.Dispatch(context.Background(), envelope(model.OpAPICall, "", apiCallParams{URL: "https://example.com", Method: "GET"}))
	require.True(t, r.Success)

	res, ok := r.Value.(apiCallResult)
	require.True(t, ok)
	require.True(t, res.Success)
	require.Equal(t, map[string]interface{}{"ok": true}, res.Data)
}

func TestApiCall_UnknownSchemeIsNoOp(t *testing.T) {
	e := New(Dependencies{Gate: newGate(t, false)})
	r := e.Dispatch(context.Background(), envelope(model.OpAPICall, "", apiCallParams{URL: "ftp://nope"}))
	require.True(t, r.Success)
}
