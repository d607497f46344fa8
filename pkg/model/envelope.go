// Package model defines the shared data model for the command apply
// pipeline and compute plane: envelopes, batches, window and state
// records, job specs, cache keys, and the closed error taxonomies.
package model

import "encoding/json"

// Op is the tagged variant an Envelope carries.
type Op string

const (
	OpWindowCreate     Op = "window.create"
	OpWindowUpdate     Op = "window.update"
	OpWindowClose      Op = "window.close"
	OpDomSet           Op = "dom.set"
	OpDomReplace       Op = "dom.replace"
	OpDomAppend        Op = "dom.append"
	OpComponentRender  Op = "component.render"
	OpComponentUpdate  Op = "component.update"
	OpComponentDestroy Op = "component.destroy"
	OpStateSet         Op = "state.set"
	OpStateGet         Op = "state.get"
	OpAPICall          Op = "api.call"
	OpTxnCancel        Op = "txn.cancel"
	OpNeedsCode        Op = "needs.code"
)

// KnownOps is the closed set of operations C1 validation accepts.
var KnownOps = map[Op]bool{
	OpWindowCreate: true, OpWindowUpdate: true, OpWindowClose: true,
	OpDomSet: true, OpDomReplace: true, OpDomAppend: true,
	OpComponentRender: true, OpComponentUpdate: true, OpComponentDestroy: true,
	OpStateSet: true, OpStateGet: true,
	OpAPICall: true, OpTxnCancel: true, OpNeedsCode: true,
}

// RequiresWindow reports whether op requires an existing (or
// auto-provisioned via ensureWindowExists) windowId target.
func (o Op) RequiresWindow() bool {
	switch o {
	case OpDomSet, OpDomReplace, OpDomAppend, OpComponentRender, OpComponentUpdate, OpComponentDestroy:
		return true
	default:
		return false
	}
}

// Envelope is the atomic unit of UI mutation or API call.
type Envelope struct {
	Op             Op              `json:"op"`
	Params         json.RawMessage `json:"params"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	WindowID       string          `json:"windowId,omitempty"`
	TraceID        string          `json:"traceId,omitempty"`
}

// Batch is an ordered sequence of envelopes enqueued as one unit.
type Batch struct {
	BatchID   string     `json:"batchId"`
	Envelopes []Envelope `json:"envelopes"`
}

// Partition splits envelopes by target windowId, preserving relative
// order within each partition. Envelopes without a windowId land in
// the global partition, keyed by the empty string.
func (b Batch) Partition() map[string][]Envelope {
	out := make(map[string][]Envelope)
	for _, e := range b.Envelopes {
		out[e.WindowID] = append(out[e.WindowID], e)
	}
	return out
}

// HasTxnCancel reports whether the batch contains a txn.cancel
// envelope; per §4.3 its presence short-circuits normal admission.
func (b Batch) HasTxnCancel() bool {
	for _, e := range b.Envelopes {
		if e.Op == OpTxnCancel {
			return true
		}
	}
	return false
}
