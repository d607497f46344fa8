package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type blobCarrier struct {
	Name    string `json:"name"`
	Payload Blob   `json:"payload"`
}

func TestJCSEnvelope_RendersU8Token(t *testing.T) {
	v := blobCarrier{Name: "frame", Payload: Blob{0, 1, 255}}

	out, err := JCSEnvelope(v)
	require.NoError(t, err)
	require.Contains(t, string(out), "u8[0,1,255]")
	require.NotContains(t, string(out), "uicp.blob.v1:")
}

func TestJCSEnvelope_EmptyBlob(t *testing.T) {
	v := blobCarrier{Name: "empty", Payload: Blob{}}

	out, err := JCSEnvelope(v)
	require.NoError(t, err)
	require.Contains(t, string(out), `"payload":u8[]`)
}

func TestJCSEnvelope_NilBlobRendersAsNull(t *testing.T) {
	v := blobCarrier{Name: "nil-payload"}

	out, err := JCSEnvelope(v)
	require.NoError(t, err)
	require.Contains(t, string(out), `"payload":null`)
}

func TestJCSEnvelope_NestedInSlice(t *testing.T) {
	v := struct {
		Frames []blobCarrier `json:"frames"`
	}{
		Frames: []blobCarrier{
			{Name: "a", Payload: Blob{1, 2}},
			{Name: "b", Payload: Blob{3, 4}},
		},
	}

	out, err := JCSEnvelope(v)
	require.NoError(t, err)
	require.Contains(t, string(out), "u8[1,2]")
	require.Contains(t, string(out), "u8[3,4]")
}

func TestCanonicalEnvelopeHash_StableAcrossFieldOrder(t *testing.T) {
	a := map[string]interface{}{"b": Blob{9, 9}, "a": "first"}
	b := map[string]interface{}{"a": "first", "b": Blob{9, 9}}

	ha, err := CanonicalEnvelopeHash(a)
	require.NoError(t, err)
	hb, err := CanonicalEnvelopeHash(b)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}

func TestJCSEnvelope_PlainValuesUnaffected(t *testing.T) {
	v := map[string]interface{}{"x": 1, "y": "z"}

	out, err := JCSEnvelope(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"x":1,"y":"z"}`, string(out))
}
