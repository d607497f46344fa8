package model

import "encoding/json"

// WindowRecord is a UI window's host-tracked identity and layout.
// The ID is externally supplied and stable across its lifetime.
type WindowRecord struct {
	ID            string `json:"id"`
	TitleText     string `json:"titleText"`
	ContentRoot   string `json:"contentRoot"`
	StyleSelector string `json:"styleSelector"`
}

// Scope is the namespace a StateEntry's key lives in.
type Scope string

const (
	ScopeWindow    Scope = "window"
	ScopeWorkspace Scope = "workspace"
	ScopeGlobal    Scope = "global"
)

// StateEntry is a last-writer-wins (scope, key) -> value record.
// Workspace keys form a dotted hierarchy, e.g. "tables.sales.rows".
type StateEntry struct {
	Scope Scope           `json:"scope"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}
