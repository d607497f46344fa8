// Package apply implements the Apply Engine (C4): a dispatch table
// keyed by op that mutates windows, DOM, components, and state, and
// routes api.call by URL scheme — including the compute.call path
// into the compute plane.
package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/uicp/engine/pkg/model"
	"github.com/uicp/engine/pkg/policy"
)

// Result is one executor's outcome: never thrown, always returned.
type Result struct {
	Success bool
	Reason  string
	Value   interface{}
}

func ok(v interface{}) Result             { return Result{Success: true, Value: v} }
func fail(reason string, a ...any) Result { return Result{Success: false, Reason: fmt.Sprintf(reason, a...)} }

// decodeParams unmarshals an envelope's params into T. Strict field
// validation already happened in model.ValidateBatch; this is a plain
// decode for the executor's convenience.
func decodeParams[T any](env model.Envelope) (T, error) {
	var p T
	if len(env.Params) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(env.Params, &p); err != nil {
		return p, fmt.Errorf("invalid params: %w", err)
	}
	return p, nil
}

// ComputeSubmitter is the Compute Job Scheduler's submission surface,
// implemented by package compute.
type ComputeSubmitter interface {
	Submit(ctx context.Context, job model.JobSpec) error
}

// HTTPDoer performs the method-gated fetch for api.call http(s)://.
type HTTPDoer interface {
	Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (status int, contentType string, respBody []byte, err error)
}

// FileWriter performs tauri://fs/writeTextFile against an allowlisted
// base directory.
type FileWriter interface {
	WriteTextFile(baseDir policy.BaseDir, path, contents string) error
}

// IntentDispatcher handles uicp://intent: either a structured
// clarifier form or a raw uicp-intent UI event.
type IntentDispatcher interface {
	DispatchIntent(ctx context.Context, windowID, text string, clarifier json.RawMessage) error
}

// Dependencies bundles the Apply Engine's collaborators, replacing
// the object-bag of the source implementation with a borrowed context
// record passed to every executor.
type Dependencies struct {
	Gate     *policy.Gate
	Compute  ComputeSubmitter
	HTTP     HTTPDoer
	Files    FileWriter
	Intents  IntentDispatcher
	DevFlags DevFlags

	// EnvHash fingerprints the host environment (module versions, OS,
	// arch) and is stamped onto every submitted JobSpec's provenance.
	EnvHash string
}

// DevFlags carries environment-derived developer overrides consulted
// by policy-gated executors.
type DevFlags struct {
	SafeMode bool
}

// Engine owns the mutable window/component/state registries and
// dispatches envelopes against them per op.
type Engine struct {
	deps Dependencies

	mu         sync.Mutex
	windows    map[string]*model.WindowRecord
	components map[string]componentRecord
	state      map[stateKey]json.RawMessage
}

type componentRecord struct {
	WindowID string
	HTML     policy.SafeHtml
}

type stateKey struct {
	Scope model.Scope
	Key   string
}

// New builds an Apply Engine with empty registries.
func New(deps Dependencies) *Engine {
	return &Engine{
		deps:       deps,
		windows:    make(map[string]*model.WindowRecord),
		components: make(map[string]componentRecord),
		state:      make(map[stateKey]json.RawMessage),
	}
}

// SetComputeSubmitter wires the Compute Job Scheduler in after
// construction, breaking the Engine/Scheduler construction cycle (the
// Scheduler's StateBinder is this same Engine).
func (e *Engine) SetComputeSubmitter(c ComputeSubmitter) {
	e.deps.Compute = c
}

// Run implements queue.ApplyFunc: it executes every envelope in a
// partition's slice in order and merges their results into one outcome.
func (e *Engine) Run(ctx context.Context, windowID string, envs []model.Envelope) model.ApplyOutcome {
	outcome := model.ApplyOutcome{Success: true}
	for _, env := range envs {
		r := e.Dispatch(ctx, env)
		if !r.Success {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %s", env.Op, r.Reason))
			continue
		}
		outcome.Applied++
	}
	outcome.Success = len(outcome.Errors) == 0
	return outcome
}

// Dispatch executes a single envelope against its op's handler.
func (e *Engine) Dispatch(ctx context.Context, env model.Envelope) Result {
	switch env.Op {
	case model.OpWindowCreate:
		return e.windowCreate(env)
	case model.OpWindowUpdate:
		return e.windowUpdate(env)
	case model.OpWindowClose:
		return e.windowClose(env)
	case model.OpDomSet, model.OpDomReplace, model.OpDomAppend:
		return e.domWrite(env)
	case model.OpComponentRender:
		return e.componentRender(env)
	case model.OpComponentUpdate:
		return e.componentUpdate(env)
	case model.OpComponentDestroy:
		return e.componentDestroy(env)
	case model.OpStateSet:
		return e.stateSet(env)
	case model.OpStateGet:
		return e.stateGet(env)
	case model.OpAPICall:
		return e.apiCall(ctx, env)
	case model.OpTxnCancel:
		return e.txnCancel()
	case model.OpNeedsCode:
		return e.needsCode(ctx, env)
	default:
		return fail("unknown op %q", env.Op)
	}
}

// ensureWindowExists auto-provisions a minimal window record when id
// is absent, per the ensureWindowExists rule referenced by §3 and §4.4.
func (e *Engine) ensureWindowExists(id string) *model.WindowRecord {
	if w, ok := e.windows[id]; ok {
		return w
	}
	w := &model.WindowRecord{ID: id, ContentRoot: "#root"}
	e.windows[id] = w
	return w
}
