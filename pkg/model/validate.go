package model

import (
	"encoding/json"
	"fmt"

	"github.com/uicp/engine/pkg/canonicalize"
)

// opSchemas declares the allowed top-level params fields per op.
// Schemas are strict: unknown fields are rejected.
var opSchemas = map[Op]map[string]bool{
	OpWindowCreate:     {"id": true, "title": true, "x": true, "y": true, "width": true, "height": true},
	OpWindowUpdate:     {"id": true, "title": true, "x": true, "y": true, "width": true, "height": true, "ensureExists": true},
	OpWindowClose:      {"id": true},
	OpDomSet:           {"windowId": true, "target": true, "html": true},
	OpDomReplace:       {"windowId": true, "target": true, "html": true},
	OpDomAppend:        {"windowId": true, "target": true, "html": true},
	OpComponentRender:  {"windowId": true, "id": true, "html": true},
	OpComponentUpdate:  {"windowId": true, "id": true, "html": true},
	OpComponentDestroy: {"windowId": true, "id": true},
	OpStateSet:         {"scope": true, "key": true, "value": true},
	OpStateGet:         {"scope": true, "key": true},
	OpAPICall:          {"url": true, "method": true, "body": true, "headers": true},
	OpTxnCancel:        {},
	OpNeedsCode:        {"prompt": true, "progressWindowId": true, "progressSelector": true},
}

// ValidateBatch validates every envelope in b against its op's strict
// schema and window requirements, returning the first violation found.
func ValidateBatch(b Batch) *Error {
	for i, e := range b.Envelopes {
		if !KnownOps[e.Op] {
			return NewError(KindDataCommandInvalid, fmt.Sprintf("envelope %d: unknown op %q", i, e.Op), nil)
		}
		if e.Op.RequiresWindow() && e.WindowID == "" {
			return NewError(KindDataCommandInvalid, fmt.Sprintf("envelope %d: op %q requires windowId", i, e.Op), nil)
		}
		if err := validateParams(e.Op, e.Params); err != nil {
			return NewError(KindDataCommandInvalid, fmt.Sprintf("envelope %d: %v", i, err), err)
		}
	}
	return nil
}

func validateParams(op Op, params json.RawMessage) error {
	schema := opSchemas[op]
	if len(params) == 0 {
		if len(schema) == 0 {
			return nil
		}
		return fmt.Errorf("op %q requires params", op)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(params, &generic); err != nil {
		return fmt.Errorf("op %q params must be a JSON object: %w", op, err)
	}
	for k := range generic {
		if !schema[k] {
			return fmt.Errorf("op %q: unknown params field %q", op, k)
		}
	}
	if html, ok := generic["html"]; ok {
		if _, isString := html.(string); !isString {
			return fmt.Errorf("op %q: html must be a string", op)
		}
	}
	return nil
}

// Canonicalize returns the RFC 8785 canonical JSON form of v, with
// binary blobs rendered as u8[b0,b1,...].
func Canonicalize(v interface{}) ([]byte, error) {
	return canonicalize.JCSEnvelope(v)
}

// HashOps produces a stable digest over the batch's envelopes; the
// queue reports it as ApplyOutcome.OpsHash.
func HashOps(b Batch) (string, error) {
	return canonicalize.CanonicalEnvelopeHash(b.Envelopes)
}
