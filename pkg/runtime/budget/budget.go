// Package budget enforces deterministic fuel, time, and memory caps
// for one compute job's WASM execution. wazero has no native
// instruction-fuel metering (unlike wasmtime), and no instructions or
// host calls are counted: the sandbox derives the consumed figure from
// wall time (one step per microsecond, capped at GasLimitSteps).
package budget

import "fmt"

// Deterministic error codes for budget exhaustion.
const (
	ErrComputeGasExhausted    = "ERR_COMPUTE_GAS_EXHAUSTED"
	ErrComputeTimeExhausted   = "ERR_COMPUTE_TIME_EXHAUSTED"
	ErrComputeMemoryExhausted = "ERR_COMPUTE_MEMORY_EXHAUSTED"
)

// ComputeBudget bounds one job's resource consumption.
type ComputeBudget struct {
	GasLimitSteps    uint64
	TimeLimitMs      int64
	MemoryLimitBytes int64
}

// DefaultBudget is the fallback budget for jobs that specify neither
// fuel nor a memory limit and whose task profile carries no default.
func DefaultBudget() ComputeBudget {
	return ComputeBudget{
		GasLimitSteps:    10_000_000,
		TimeLimitMs:      30_000,
		MemoryLimitBytes: 128 * 1024 * 1024,
	}
}

// TimeLimitMillis returns the budget's time limit as a time.Duration-compatible
// millisecond count, exposed as int64 to avoid importing "time" here.
func (b ComputeBudget) TimeLimitMillis() int64 { return b.TimeLimitMs }

// ComputeBudgetError is a typed, deterministic budget violation.
type ComputeBudgetError struct {
	Code    string
	Message string
}

func (e *ComputeBudgetError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// CheckGas reports ErrComputeGasExhausted once consumed exceeds the budget.
func CheckGas(b ComputeBudget, consumed uint64) error {
	if b.GasLimitSteps > 0 && consumed > b.GasLimitSteps {
		return &ComputeBudgetError{
			Code:    ErrComputeGasExhausted,
			Message: fmt.Sprintf("gas %d exceeds limit %d", consumed, b.GasLimitSteps),
		}
	}
	return nil
}

// CheckTime reports ErrComputeTimeExhausted once elapsedMs exceeds the budget.
func CheckTime(b ComputeBudget, elapsedMs int64) error {
	if b.TimeLimitMs > 0 && elapsedMs > b.TimeLimitMs {
		return &ComputeBudgetError{
			Code:    ErrComputeTimeExhausted,
			Message: fmt.Sprintf("elapsed %dms exceeds limit %dms", elapsedMs, b.TimeLimitMs),
		}
	}
	return nil
}

// CheckMemory reports ErrComputeMemoryExhausted once allocated exceeds the budget.
func CheckMemory(b ComputeBudget, allocatedBytes int64) error {
	if b.MemoryLimitBytes > 0 && allocatedBytes > b.MemoryLimitBytes {
		return &ComputeBudgetError{
			Code:    ErrComputeMemoryExhausted,
			Message: fmt.Sprintf("allocated %d bytes exceeds limit %d", allocatedBytes, b.MemoryLimitBytes),
		}
	}
	return nil
}

// FromJobSpecFields builds a ComputeBudget from a job's resolved fuel,
// timeout, and memory limit (already defaulted by the task profile).
func FromJobSpecFields(fuel uint64, timeoutMs int64, memLimitMb int) ComputeBudget {
	return ComputeBudget{
		GasLimitSteps:    fuel,
		TimeLimitMs:      timeoutMs,
		MemoryLimitBytes: int64(memLimitMb) * 1024 * 1024,
	}
}
