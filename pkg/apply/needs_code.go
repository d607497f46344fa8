package apply

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/uicp/engine/pkg/model"
)

type needsCodeParams struct {
	WindowID       string             `json:"progressWindowId"`
	Description    string             `json:"prompt"`
	ProgressTarget string             `json:"progressSelector"`
	AutoInstall    bool               `json:"autoInstall"`
	Capabilities   model.Capabilities `json:"capabilities"`
}

type needsCodeResult struct {
	JobID       string `json:"jobId"`
	ArtifactKey string `json:"artifactKey"`
}

// needsCode submits a codegen.run job whose output binds to
// workspace.artifacts.<jobId>. Progress is surfaced by the caller
// polling that state path or observing compute-partial events; a
// follow-up batch (component.render against ProgressTarget, or
// txn.cancel to abandon) is issued by the caller once the job settles.
func (e *Engine) needsCode(ctx context.Context, env model.Envelope) Result {
	p, err := decodeParams[needsCodeParams](env)
	if err != nil {
		return fail("needs.code: %v", err)
	}
	if e.deps.DevFlags.SafeMode {
		return fail("needs.code: %v: code generation is disabled in safe mode", model.ErrCapabilityDenied)
	}
	if e.deps.Compute == nil {
		return fail("needs.code: compute plane unavailable")
	}

	jobID := uuid.NewString()
	artifactKey := fmt.Sprintf("workspace.artifacts.%s", jobID)

	input, err := json.Marshal(map[string]string{"description": p.Description})
	if err != nil {
		return fail("needs.code: %v", err)
	}

	job := model.JobSpec{
		JobID:        jobID,
		Task:         "codegen.run",
		Input:        input,
		Capabilities: p.Capabilities,
		Bind:         []model.Bind{{ToStatePath: artifactKey}},
		Replayable:   true,
		Provenance: model.Provenance{
			EnvHash:      e.deps.EnvHash,
			AgentTraceID: env.TraceID,
		},
	}.WithDefaults()

	if err := e.deps.Compute.Submit(ctx, job); err != nil {
		return fail("needs.code: submit failed: %v", err)
	}

	if p.WindowID != "" {
		e.mu.Lock()
		e.ensureWindowExists(p.WindowID)
		e.mu.Unlock()
	}

	return ok(needsCodeResult{JobID: jobID, ArtifactKey: artifactKey})
}
