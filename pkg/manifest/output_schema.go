package manifest

import (
	"fmt"

	"github.com/uicp/engine/pkg/canonicalize"
)

// Deterministic error codes for task output boundary violations.
const (
	ErrTaskOutputDrift   = "ERR_TASK_OUTPUT_CONTRACT_DRIFT"
	ErrTaskOutputCanon   = "ERR_TASK_OUTPUT_CANONICALIZATION_FAILED"
	ErrTaskOutputMissing = "ERR_TASK_OUTPUT_MISSING_FIELD"
	ErrTaskOutputType    = "ERR_TASK_OUTPUT_TYPE_MISMATCH"
)

// TaskOutputSchema defines the expected shape of a task's output.
type TaskOutputSchema struct {
	Fields     map[string]FieldSpec `json:"fields"`
	AllowExtra bool                 `json:"allow_extra,omitempty"`
}

// TaskOutputValidationResult is the successful result of output validation.
type TaskOutputValidationResult struct {
	CanonicalJSON []byte `json:"-"`
	OutputHash    string `json:"output_hash"` // SHA-256 hex of canonical JSON
}

// TaskOutputError is a typed task-output drift error.
type TaskOutputError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *TaskOutputError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidateAndCanonicalizeTaskOutput validates a job's output against
// its task's frame schema, then returns the JCS-canonicalized bytes
// and SHA-256 hash. Fails closed on any drift: a module that returns
// fields its manifest doesn't declare, or omits a required one, is
// rejected rather than silently forwarded.
func ValidateAndCanonicalizeTaskOutput(schema *TaskOutputSchema, output any) (*TaskOutputValidationResult, error) {
	outputMap, err := toMap(output)
	if err != nil {
		return nil, &TaskOutputError{
			Code:    ErrTaskOutputCanon,
			Message: fmt.Sprintf("output must be a JSON object: %v", err),
		}
	}

	if schema != nil {
		if err := validateOutputSchema(schema, outputMap); err != nil {
			return nil, err
		}
	}

	canonical, err := canonicalize.JCS(outputMap)
	if err != nil {
		return nil, &TaskOutputError{
			Code:    ErrTaskOutputCanon,
			Message: fmt.Sprintf("JCS canonicalization failed: %v", err),
		}
	}

	return &TaskOutputValidationResult{
		CanonicalJSON: canonical,
		OutputHash:    canonicalize.HashBytes(canonical),
	}, nil
}

func validateOutputSchema(schema *TaskOutputSchema, output map[string]interface{}) error {
	for name, spec := range schema.Fields {
		val, exists := output[name]
		if spec.Required && !exists {
			return &TaskOutputError{
				Code:    ErrTaskOutputMissing,
				Message: fmt.Sprintf("required output field %q is missing", name),
				Field:   name,
			}
		}
		if exists && spec.Type != "any" {
			if !matchesType(val, spec.Type) {
				return &TaskOutputError{
					Code:    ErrTaskOutputType,
					Message: fmt.Sprintf("output field %q expected type %s, got %T", name, spec.Type, val),
					Field:   name,
				}
			}
		}
	}

	if !schema.AllowExtra {
		for name := range output {
			if _, ok := schema.Fields[name]; !ok {
				return &TaskOutputError{
					Code:    ErrTaskOutputDrift,
					Message: fmt.Sprintf("unexpected output field %q not declared by task manifest", name),
					Field:   name,
				}
			}
		}
	}

	return nil
}
