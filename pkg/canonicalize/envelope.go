package canonicalize

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strings"
)

// Blob marks binary data that must canonicalize to the u8[b0,b1,...] token
// form required for job inputs, cache keys, and envelope payloads carrying
// raw bytes, rather than the base64 string json.Marshal would otherwise
// produce for a []byte field.
type Blob []byte

var blobType = reflect.TypeOf(Blob(nil))

// blobSentinelPrefix is a plain ASCII prefix, so it survives JCS's
// string escaping untouched; a user string that begins with it would
// be read as a blob marker.
const blobSentinelPrefix = "uicp.blob.v1:"

// JCSEnvelope is JCS with Blob-typed values rendered as u8[b0,b1,...]
// tokens instead of base64 strings.
func JCSEnvelope(v interface{}) ([]byte, error) {
	sealed := sealBlobs(reflect.ValueOf(v))
	canonical, err := JCS(sealed)
	if err != nil {
		return nil, err
	}
	return unsealBlobs(canonical)
}

// CanonicalEnvelopeHash returns the SHA-256 hex digest of v's JCSEnvelope form.
func CanonicalEnvelopeHash(v interface{}) (string, error) {
	b, err := JCSEnvelope(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// sealBlobs walks v, replacing every Blob with a sentinel string that
// round-trips through the ordinary JSON marshal/decode JCS performs.
func sealBlobs(rv reflect.Value) interface{} {
	if !rv.IsValid() {
		return nil
	}
	if rv.Type() == blobType {
		b, _ := rv.Interface().(Blob)
		if b == nil {
			return nil
		}
		return blobSentinelPrefix + base64.StdEncoding.EncodeToString(b)
	}
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return sealBlobs(rv.Elem())
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = sealBlobs(rv.Index(i))
		}
		return out
	case reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = sealBlobs(rv.Index(i))
		}
		return out
	case reflect.Map:
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = sealBlobs(iter.Value())
		}
		return out
	case reflect.Struct:
		t := rv.Type()
		out := make(map[string]interface{}, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue
			}
			name, omitempty, skip := jsonFieldName(f)
			if skip {
				continue
			}
			fv := rv.Field(i)
			if omitempty && isEmptyValue(fv) {
				continue
			}
			out[name] = sealBlobs(fv)
		}
		return out
	default:
		return rv.Interface()
	}
}

func jsonFieldName(f reflect.StructField) (name string, omitempty bool, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name = f.Name
	if tag == "" {
		return name, false, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	case reflect.String:
		return v.Len() == 0
	}
	return false
}

// unsealBlobs rewrites sentinel strings back into u8[b0,b1,...] tokens in
// the already-canonicalized JSON text.
func unsealBlobs(canonical []byte) ([]byte, error) {
	s := string(canonical)
	var out strings.Builder
	for {
		idx := strings.Index(s, blobSentinelPrefix)
		if idx < 0 {
			out.WriteString(s)
			break
		}
		openQuote := strings.LastIndexByte(s[:idx], '"')
		if openQuote < 0 {
			return nil, fmt.Errorf("canonicalize: malformed blob sentinel")
		}
		rest := s[idx+len(blobSentinelPrefix):]
		closeQuote := strings.IndexByte(rest, '"')
		if closeQuote < 0 {
			return nil, fmt.Errorf("canonicalize: unterminated blob sentinel")
		}
		b64 := rest[:closeQuote]
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("canonicalize: invalid blob sentinel: %w", err)
		}
		out.WriteString(s[:openQuote])
		out.WriteString(u8Token(raw))
		s = rest[closeQuote+1:]
	}
	return []byte(out.String()), nil
}

func u8Token(b []byte) string {
	var sb strings.Builder
	sb.WriteString("u8[")
	for i, by := range b {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", by)
	}
	sb.WriteByte(']')
	return sb.String()
}
