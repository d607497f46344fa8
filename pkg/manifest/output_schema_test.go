package manifest

import (
	"testing"
)

func TestValidateTaskOutput_StableHash(t *testing.T) {
	out1 := map[string]interface{}{"status": "ok", "code": float64(200)}
	out2 := map[string]interface{}{"code": float64(200), "status": "ok"}

	r1, err := ValidateAndCanonicalizeTaskOutput(nil, out1)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := ValidateAndCanonicalizeTaskOutput(nil, out2)
	if err != nil {
		t.Fatal(err)
	}

	if r1.OutputHash != r2.OutputHash {
		t.Errorf("hashes differ: %s vs %s", r1.OutputHash, r2.OutputHash)
	}
}

func TestValidateTaskOutput_DriftDetected_UnexpectedField(t *testing.T) {
	schema := &TaskOutputSchema{
		Fields: map[string]FieldSpec{
			"result": {Type: "string", Required: true},
		},
	}

	_, err := ValidateAndCanonicalizeTaskOutput(schema, map[string]interface{}{
		"result":    "ok",
		"new_field": "surprise",
	})
	if err == nil {
		t.Fatal("expected drift error for unexpected field")
	}
	oErr := err.(*TaskOutputError)
	if oErr.Code != ErrTaskOutputDrift {
		t.Errorf("code = %s, want %s", oErr.Code, ErrTaskOutputDrift)
	}
}

func TestValidateTaskOutput_DriftDetected_MissingField(t *testing.T) {
	schema := &TaskOutputSchema{
		Fields: map[string]FieldSpec{
			"result":  {Type: "string", Required: true},
			"version": {Type: "string", Required: true},
		},
	}

	_, err := ValidateAndCanonicalizeTaskOutput(schema, map[string]interface{}{
		"result": "ok",
	})
	if err == nil {
		t.Fatal("expected drift error for missing required field")
	}
	oErr := err.(*TaskOutputError)
	if oErr.Code != ErrTaskOutputMissing {
		t.Errorf("code = %s, want %s", oErr.Code, ErrTaskOutputMissing)
	}
}

func TestValidateTaskOutput_DriftDetected_TypeMismatch(t *testing.T) {
	schema := &TaskOutputSchema{
		Fields: map[string]FieldSpec{
			"count": {Type: "number", Required: true},
		},
	}

	_, err := ValidateAndCanonicalizeTaskOutput(schema, map[string]interface{}{
		"count": "not-a-number",
	})
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
	oErr := err.(*TaskOutputError)
	if oErr.Code != ErrTaskOutputType {
		t.Errorf("code = %s, want %s", oErr.Code, ErrTaskOutputType)
	}
}

func TestValidateTaskOutput_NoSchema(t *testing.T) {
	result, err := ValidateAndCanonicalizeTaskOutput(nil, map[string]interface{}{
		"anything": "goes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OutputHash == "" {
		t.Error("expected non-empty hash")
	}
}
