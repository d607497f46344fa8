package model

import "encoding/json"

// PartialFrame is one ordered, task-specific progress frame for a job.
// Seq is strictly monotonic within a job.
type PartialFrame struct {
	JobID   string `json:"jobId"`
	Task    string `json:"task"`
	Seq     int64  `json:"seq"`
	Payload []byte `json:"payload"`
}

// ComputeErrorCode is the closed compute failure taxonomy a FinalEvent's
// Err variant carries.
type ComputeErrorCode string

const (
	ErrTimeout          ComputeErrorCode = "Timeout"
	ErrCancelled        ComputeErrorCode = "Cancelled"
	ErrCapabilityDenied ComputeErrorCode = "CapabilityDenied"
	ErrInputInvalid     ComputeErrorCode = "Input.Invalid"
	ErrTaskNotFound     ComputeErrorCode = "Task.NotFound"
	ErrRuntimeFault     ComputeErrorCode = "Runtime.Fault"
	ErrResourceLimit    ComputeErrorCode = "Resource.Limit"
	ErrIODenied         ComputeErrorCode = "IO.Denied"
	ErrNondeterministic ComputeErrorCode = "Nondeterministic"
)

// FinalEvent is the single terminal event per job: exactly one of the
// Ok or Err shapes is populated, distinguished by Ok.
type FinalEvent struct {
	JobID string `json:"jobId"`
	Task  string `json:"task"`

	Ok      bool            `json:"ok"`
	Output  json.RawMessage `json:"output,omitempty"`
	Metrics *Metrics        `json:"metrics,omitempty"`

	Code    ComputeErrorCode `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
}

// NewOkFinal builds a successful terminal event.
func NewOkFinal(jobID, task string, output json.RawMessage, metrics Metrics) FinalEvent {
	return FinalEvent{JobID: jobID, Task: task, Ok: true, Output: output, Metrics: &metrics}
}

// NewErrFinal builds a failed terminal event.
func NewErrFinal(jobID, task string, code ComputeErrorCode, message string) FinalEvent {
	return FinalEvent{JobID: jobID, Task: task, Ok: false, Code: code, Message: message}
}
