// Package sandbox hosts the WASM Runtime: it executes a resolved
// compute module under a capability-derived policy and deterministic
// fuel/time/memory budget, deny-by-default (no filesystem, no
// network, no ambient authority beyond the policy's allowlists).
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/uicp/engine/pkg/model"
	"github.com/uicp/engine/pkg/runtime/budget"
)

// PartialEmitter streams an in-progress job's partial frames as the
// guest module writes newline-terminated stdout lines, ahead of the
// final result.
type PartialEmitter interface {
	EmitPartial(jobID, task string, seq int, payload []byte)
}

// RunResult is one job's raw execution output and resource figures:
// FuelUsed is a wall-time estimate and MemPeakMb is the policy's memory
// cap, not a measured peak.
type RunResult struct {
	Output    []byte
	FuelUsed  uint64
	MemPeakMb int
}

// Executor runs a compute job's resolved module and produces its output.
type Executor interface {
	Run(ctx context.Context, job model.JobSpec, wasm []byte, pol *SandboxPolicy, emitter PartialEmitter) (*RunResult, error)
	Close(ctx context.Context) error
}

// OutputMaxBytes bounds a job's combined stdout+stderr.
const OutputMaxBytes = 1024 * 1024

// Runtime executes WASM components via wazero. Each Run call builds
// its own engine instance so the memory cap (set at engine
// construction in wazero, not per-module) can track that job's
// capability-derived policy rather than a single global ceiling.
type Runtime struct{}

// NewRuntime returns a Runtime ready to execute jobs.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	return &Runtime{}, nil
}

// Run compiles and instantiates wasm, feeding job.Input on stdin and
// enforcing job's effective fuel/timeout/memory budget. emitter, if
// non-nil, receives a partial frame per completed stdout line.
func (rt *Runtime) Run(ctx context.Context, job model.JobSpec, wasm []byte, pol *SandboxPolicy, emitter PartialEmitter) (*RunResult, error) {
	memLimitMb := int(pol.MaxMemoryBytes / (1024 * 1024))
	b := budget.FromJobSpecFields(job.EffectiveFuel(budget.DefaultBudget().GasLimitSteps), int64(job.TimeoutMs), job.EffectiveMemLimitMb(memLimitMb))

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(b.TimeLimitMs)*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	pw := &partialWriter{jobID: job.JobID, task: job.Task, emitter: emitter, buf: &stdout}

	rConfig := wazero.NewRuntimeConfig()
	if b.MemoryLimitBytes > 0 {
		pages := uint32(b.MemoryLimitBytes / 65536)
		if pages == 0 {
			pages = 1
		}
		rConfig = rConfig.WithMemoryLimitPages(pages)
	}
	engine := wazero.NewRuntimeWithConfig(execCtx, rConfig)
	defer func() { _ = engine.Close(execCtx) }()
	if _, err := wasi_snapshot_preview1.Instantiate(execCtx, engine); err != nil {
		return nil, model.NewError(model.KindComputeRuntimeFault, "instantiate WASI", err)
	}

	modCfg := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(job.Input)).
		WithStdout(pw).
		WithStderr(&stderr).
		WithName(job.JobID)
	// Deny-by-default: no WithFSConfig, no WithRandSource, no WithSysNanotime, no env passthrough.

	compiled, err := engine.CompileModule(execCtx, wasm)
	if err != nil {
		return nil, model.NewError(model.KindComputeRuntimeFault, "compile failed", err)
	}
	defer func() { _ = compiled.Close(execCtx) }()

	start := time.Now()
	mod, err := engine.InstantiateModule(execCtx, compiled, modCfg)
	elapsed := time.Since(start)
	if err != nil {
		if execCtx.Err() != nil {
			return nil, model.NewError(model.KindComputeTimeout, fmt.Sprintf("execution exceeded %dms", b.TimeLimitMs), err)
		}
		if isMemoryError(err) {
			return nil, model.NewError(model.KindComputeResourceLimit, fmt.Sprintf("execution exceeded %d byte memory limit", b.MemoryLimitBytes), err)
		}
		return nil, model.NewError(model.KindComputeRuntimeFault, "instantiation failed", err)
	}
	defer func() { _ = mod.Close(execCtx) }()

	if totalOut := stdout.Len() + stderr.Len(); totalOut > OutputMaxBytes {
		return nil, model.NewError(model.KindComputeResourceLimit, fmt.Sprintf("output %d bytes exceeds limit %d", totalOut, OutputMaxBytes), nil)
	}

	fuelUsed := approximateFuel(elapsed, b)
	if err := budget.CheckGas(b, fuelUsed); err != nil {
		return nil, model.NewError(model.KindComputeResourceLimit, err.Error(), err)
	}

	return &RunResult{Output: stdout.Bytes(), FuelUsed: fuelUsed, MemPeakMb: memLimitMb}, nil
}

// Close is a no-op: each Run call owns and closes its own engine.
func (rt *Runtime) Close(ctx context.Context) error { return nil }

// approximateFuel derives a fuel figure from wall time since wazero,
// unlike wasmtime, exposes no per-instruction counter: one "step" per
// microsecond of execution, capped at the budget so a job that merely
// ran close to its timeout never spuriously reports gas exhaustion on
// top of (rather than instead of) a timeout.
func approximateFuel(elapsed time.Duration, b budget.ComputeBudget) uint64 {
	steps := uint64(elapsed.Microseconds())
	if b.GasLimitSteps > 0 && steps > b.GasLimitSteps {
		steps = b.GasLimitSteps
	}
	return steps
}

// partialWriter forwards each newline-terminated stdout chunk to the
// emitter as a partial frame, in addition to accumulating into buf for
// the final result.
type partialWriter struct {
	jobID   string
	task    string
	emitter PartialEmitter
	buf     *bytes.Buffer
	seq     int
	line    bytes.Buffer
}

func (w *partialWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if err != nil {
		return n, err
	}
	if w.emitter == nil {
		return n, nil
	}
	for _, c := range p {
		if c == '\n' {
			w.seq++
			w.emitter.EmitPartial(w.jobID, w.task, w.seq, append([]byte(nil), w.line.Bytes()...))
			w.line.Reset()
			continue
		}
		w.line.WriteByte(c)
	}
	return n, nil
}

// isMemoryError checks if the error is a memory limit violation.
func isMemoryError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strContains(msg, "memory") && (strContains(msg, "limit") || strContains(msg, "grow") || strContains(msg, "exceeded"))
}

func strContains(s, substr string) bool {
	return len(s) >= len(substr) && strSearch(s, substr)
}

func strSearch(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// InProcessExecutor is a developer-mode executor that echoes input
// without running any WASM: used when DevFlags.SafeMode selects a
// no-sandbox local loop for tasks that have no compiled module yet.
// WARNING: provides no isolation. Never select in production.
type InProcessExecutor struct{}

func NewInProcessExecutor() *InProcessExecutor { return &InProcessExecutor{} }

func (s *InProcessExecutor) Run(ctx context.Context, job model.JobSpec, wasm []byte, pol *SandboxPolicy, emitter PartialEmitter) (*RunResult, error) {
	select {
	case <-ctx.Done():
		return nil, model.NewError(model.KindComputeCancelled, "context cancelled", ctx.Err())
	case <-time.After(10 * time.Millisecond):
	}
	if emitter != nil {
		emitter.EmitPartial(job.JobID, job.Task, 1, []byte("dev-mode echo"))
	}
	return &RunResult{Output: []byte(fmt.Sprintf("echo: %s", string(job.Input)))}, nil
}

func (s *InProcessExecutor) Close(ctx context.Context) error { return nil }
