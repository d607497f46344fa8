package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateBatch_RejectsUnknownOp(t *testing.T) {
	b := Batch{Envelopes: []Envelope{{Op: Op("bogus.op")}}}
	err := ValidateBatch(b)
	require.NotNil(t, err)
	require.Equal(t, KindDataCommandInvalid, err.Kind)
}

func TestValidateBatch_RequiresWindowForDomOps(t *testing.T) {
	b := Batch{Envelopes: []Envelope{{Op: OpDomSet, Params: json.RawMessage(`{"target":"#root","html":"<p/>"}`)}}}
	err := ValidateBatch(b)
	require.NotNil(t, err)
	require.Contains(t, err.Message, "requires windowId")
}

func TestValidateBatch_RejectsUnknownParamsField(t *testing.T) {
	b := Batch{Envelopes: []Envelope{{
		Op:       OpDomSet,
		WindowID: "w1",
		Params:   json.RawMessage(`{"target":"#root","html":"<p/>","evil":true}`),
	}}}
	err := ValidateBatch(b)
	require.NotNil(t, err)
	require.Contains(t, err.Message, "unknown params field")
}

func TestValidateBatch_RejectsNonStringHTML(t *testing.T) {
	b := Batch{Envelopes: []Envelope{{
		Op:       OpDomSet,
		WindowID: "w1",
		Params:   json.RawMessage(`{"target":"#root","html":123}`),
	}}}
	err := ValidateBatch(b)
	require.NotNil(t, err)
	require.Contains(t, err.Message, "html must be a string")
}

func TestValidateBatch_AcceptsWellFormedBatch(t *testing.T) {
	b := Batch{Envelopes: []Envelope{
		{Op: OpWindowCreate, Params: json.RawMessage(`{"id":"w1","title":"Notepad","x":80,"y":80,"width":720,"height":480}`)},
		{Op: OpDomSet, WindowID: "w1", Params: json.RawMessage(`{"target":"#root","html":"<textarea></textarea>"}`)},
	}}
	require.Nil(t, ValidateBatch(b))
}

func TestValidateBatch_TxnCancelNeedsNoParams(t *testing.T) {
	b := Batch{Envelopes: []Envelope{{Op: OpTxnCancel}}}
	require.Nil(t, ValidateBatch(b))
}

func TestHashOps_StableAndOrderSensitive(t *testing.T) {
	b1 := Batch{Envelopes: []Envelope{{Op: OpStateSet, WindowID: "w1"}, {Op: OpStateGet, WindowID: "w1"}}}
	b2 := Batch{Envelopes: []Envelope{{Op: OpStateSet, WindowID: "w1"}, {Op: OpStateGet, WindowID: "w1"}}}
	b3 := Batch{Envelopes: []Envelope{{Op: OpStateGet, WindowID: "w1"}, {Op: OpStateSet, WindowID: "w1"}}}

	h1, err := HashOps(b1)
	require.NoError(t, err)
	h2, err := HashOps(b2)
	require.NoError(t, err)
	h3, err := HashOps(b3)
	require.NoError(t, err)

	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}

func TestCanonicalize_Idempotent(t *testing.T) {
	v := map[string]interface{}{"b": 2, "a": 1}
	out1, err := Canonicalize(v)
	require.NoError(t, err)

	var roundTrip map[string]interface{}
	require.NoError(t, json.Unmarshal(out1, &roundTrip))
	out2, err := Canonicalize(roundTrip)
	require.NoError(t, err)

	require.Equal(t, string(out1), string(out2))
}
