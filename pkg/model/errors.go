package model

import "fmt"

// ErrorKind is the closed bridge/runtime error taxonomy (§7) from
// which externally surfaced errors derive a code and message.
type ErrorKind string

const (
	KindBridgeUnavailable       ErrorKind = "BridgeUnavailable"
	KindInvokeFailed            ErrorKind = "InvokeFailed"
	KindEventListenerFailed     ErrorKind = "EventListenerFailed"
	KindSanitizationFailed      ErrorKind = "SanitizationFailed"
	KindDataCommandInvalid      ErrorKind = "DataCommandInvalid"
	KindWorkspaceNotReady       ErrorKind = "WorkspaceNotReady"
	KindWindowNotFound          ErrorKind = "WindowNotFound"
	KindComponentNotFound       ErrorKind = "ComponentNotFound"
	KindComputeTimeout          ErrorKind = "ComputeTimeout"
	KindComputeCancelled        ErrorKind = "ComputeCancelled"
	KindComputeCapabilityDenied ErrorKind = "ComputeCapabilityDenied"
	KindComputeResourceLimit    ErrorKind = "ComputeResourceLimit"
	KindComputeRuntimeFault     ErrorKind = "ComputeRuntimeFault"
	KindComputeIODenied         ErrorKind = "ComputeIODenied"
	KindComputeTaskNotFound     ErrorKind = "ComputeTaskNotFound"
	KindComputeNondeterministic ErrorKind = "ComputeNondeterministic"
	KindUnknown                 ErrorKind = "Unknown"
)

// codes maps each kind to its E-UICP-#### family: bridge (01xx),
// sanitization (03xx), adapter/state (04xx), compute (05xx), generic (0999).
var codes = map[ErrorKind]string{
	KindBridgeUnavailable:       "E-UICP-0101",
	KindInvokeFailed:            "E-UICP-0102",
	KindEventListenerFailed:     "E-UICP-0103",
	KindSanitizationFailed:      "E-UICP-0301",
	KindDataCommandInvalid:      "E-UICP-0401",
	KindWorkspaceNotReady:       "E-UICP-0402",
	KindWindowNotFound:          "E-UICP-0403",
	KindComponentNotFound:       "E-UICP-0404",
	KindComputeTimeout:          "E-UICP-0501",
	KindComputeCancelled:        "E-UICP-0502",
	KindComputeCapabilityDenied: "E-UICP-0503",
	KindComputeResourceLimit:    "E-UICP-0504",
	KindComputeRuntimeFault:     "E-UICP-0505",
	KindComputeIODenied:         "E-UICP-0506",
	KindComputeTaskNotFound:     "E-UICP-0507",
	KindComputeNondeterministic: "E-UICP-0508",
	KindUnknown:                 "E-UICP-0999",
}

// Error is an externally surfaced error: it always carries a code and
// a human-readable message.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Code, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s", e.Code, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error for kind, deriving its E-UICP code.
func NewError(kind ErrorKind, message string, cause error) *Error {
	code, ok := codes[kind]
	if !ok {
		code = codes[KindUnknown]
	}
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// FromComputeCode maps a FinalEvent-level ComputeErrorCode to the
// matching externally surfaced ErrorKind.
func FromComputeCode(code ComputeErrorCode) ErrorKind {
	switch code {
	case ErrTimeout:
		return KindComputeTimeout
	case ErrCancelled:
		return KindComputeCancelled
	case ErrCapabilityDenied:
		return KindComputeCapabilityDenied
	case ErrInputInvalid:
		return KindDataCommandInvalid
	case ErrTaskNotFound:
		return KindComputeTaskNotFound
	case ErrRuntimeFault:
		return KindComputeRuntimeFault
	case ErrResourceLimit:
		return KindComputeResourceLimit
	case ErrIODenied:
		return KindComputeIODenied
	case ErrNondeterministic:
		return KindComputeNondeterministic
	default:
		return KindUnknown
	}
}
