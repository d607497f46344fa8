package apply

import (
	"encoding/json"

	"github.com/uicp/engine/pkg/model"
)

type stateSetParams struct {
	Scope model.Scope     `json:"scope"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type stateGetParams struct {
	Scope model.Scope `json:"scope"`
	Key   string      `json:"key"`
}

// stateSet writes a (scope, key) entry; writes are last-writer-wins.
func (e *Engine) stateSet(env model.Envelope) Result {
	p, err := decodeParams[stateSetParams](env)
	if err != nil {
		return fail("state.set: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state[stateKey{Scope: p.Scope, Key: p.Key}] = p.Value
	return ok(nil)
}

// stateGet reads the last committed value for a (scope, key) entry.
func (e *Engine) stateGet(env model.Envelope) Result {
	p, err := decodeParams[stateGetParams](env)
	if err != nil {
		return fail("state.get: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	v, exists := e.state[stateKey{Scope: p.Scope, Key: p.Key}]
	if !exists {
		return ok(nil)
	}
	return ok(v)
}

// bindOutput writes a job's output to a workspace state path
// ("dotted.hierarchy") on successful job completion, per JobSpec.bind.
func (e *Engine) bindOutput(toStatePath string, output json.RawMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state[stateKey{Scope: model.ScopeWorkspace, Key: toStatePath}] = output
}

// BindOutput is bindOutput exported for the Compute Job Scheduler,
// which binds a completed job's output back into workspace state from
// outside this package (it satisfies compute.StateBinder).
func (e *Engine) BindOutput(toStatePath string, output json.RawMessage) {
	e.bindOutput(toStatePath, output)
}

// StateValue returns the last committed value for (scope, key), used
// by tests and observers needing direct read access outside dispatch.
func (e *Engine) StateValue(scope model.Scope, key string) (json.RawMessage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, exists := e.state[stateKey{Scope: scope, Key: key}]
	return v, exists
}

// Window returns the window record for id, used by tests and
// observers needing direct read access outside dispatch.
func (e *Engine) Window(id string) (*model.WindowRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, exists := e.windows[id]
	return w, exists
}
