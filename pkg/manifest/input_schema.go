// Package manifest describes compute task manifests and the frame
// schemas used to validate a task's input and output at the boundary
// between the Command Apply Pipeline and the Compute Plane.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/uicp/engine/pkg/canonicalize"
)

// Deterministic error codes for task input boundary violations.
const (
	ErrTaskInputUnknownField    = "ERR_TASK_INPUT_UNKNOWN_FIELD"
	ErrTaskInputMissingRequired = "ERR_TASK_INPUT_MISSING_REQUIRED"
	ErrTaskInputTypeMismatch    = "ERR_TASK_INPUT_TYPE_MISMATCH"
	ErrTaskInputCanonFailed     = "ERR_TASK_INPUT_CANONICALIZATION_FAILED"
)

// TaskInputSchema defines the expected shape of a task's input. This is
// a lightweight schema that supports required fields and type checking
// without the full weight of JSON Schema.
type TaskInputSchema struct {
	// Fields maps field name → expected type string ("string", "number", "boolean", "object", "array", "any").
	Fields map[string]FieldSpec `json:"fields"`
	// AllowExtra permits fields not declared in the schema.
	AllowExtra bool `json:"allow_extra,omitempty"`
}

// FieldSpec describes a single input or output field.
type FieldSpec struct {
	Type     string `json:"type"` // "string", "number", "boolean", "object", "array", "any"
	Required bool   `json:"required,omitempty"`
}

// TaskInputValidationResult is the successful result of validation.
type TaskInputValidationResult struct {
	CanonicalJSON []byte `json:"-"`
	InputHash     string `json:"input_hash"` // SHA-256 hex of canonical JSON
}

// TaskInputError is a typed task-boundary error.
type TaskInputError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *TaskInputError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidateAndCanonicalizeTaskInput validates a job's input against a
// task's frame schema, then returns the JCS-canonicalized bytes and
// SHA-256 hash. If schema is nil, validation is skipped but
// canonicalization still occurs.
func ValidateAndCanonicalizeTaskInput(schema *TaskInputSchema, input any) (*TaskInputValidationResult, error) {
	inputMap, err := toMap(input)
	if err != nil {
		return nil, &TaskInputError{
			Code:    ErrTaskInputCanonFailed,
			Message: fmt.Sprintf("input must be a JSON object: %v", err),
		}
	}

	if schema != nil {
		if err := validateSchema(schema, inputMap); err != nil {
			return nil, err
		}
	}

	canonical, err := canonicalize.JCS(inputMap)
	if err != nil {
		return nil, &TaskInputError{
			Code:    ErrTaskInputCanonFailed,
			Message: fmt.Sprintf("JCS canonicalization failed: %v", err),
		}
	}

	return &TaskInputValidationResult{
		CanonicalJSON: canonical,
		InputHash:     canonicalize.HashBytes(canonical),
	}, nil
}

func validateSchema(schema *TaskInputSchema, input map[string]interface{}) error {
	for name, spec := range schema.Fields {
		val, exists := input[name]
		if spec.Required && !exists {
			return &TaskInputError{
				Code:    ErrTaskInputMissingRequired,
				Message: fmt.Sprintf("required field %q is missing", name),
				Field:   name,
			}
		}
		if exists && spec.Type != "any" {
			if err := checkType(name, val, spec.Type); err != nil {
				return err
			}
		}
	}

	if !schema.AllowExtra {
		for name := range input {
			if _, ok := schema.Fields[name]; !ok {
				return &TaskInputError{
					Code:    ErrTaskInputUnknownField,
					Message: fmt.Sprintf("unknown field %q not in schema", name),
					Field:   name,
				}
			}
		}
	}

	return nil
}

func checkType(field string, val interface{}, expected string) *TaskInputError {
	ok := matchesType(val, expected)
	if !ok {
		return &TaskInputError{
			Code:    ErrTaskInputTypeMismatch,
			Message: fmt.Sprintf("field %q expected type %s, got %T", field, expected, val),
			Field:   field,
		}
	}
	return nil
}

func matchesType(val interface{}, expected string) bool {
	switch expected {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		switch val.(type) {
		case float64, json.Number, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]interface{})
		return ok
	case "array":
		_, ok := val.([]interface{})
		return ok
	case "any":
		return true
	default:
		return true // Unknown type spec → permissive
	}
}

func toMap(v any) (map[string]interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}
