package model

import (
	"encoding/json"
	"time"
)

// CacheMode selects how a job interacts with the content-addressed cache.
type CacheMode string

const (
	CacheReadWrite CacheMode = "readwrite"
	CacheReadOnly  CacheMode = "readOnly"
	CacheBypass    CacheMode = "bypass"
)

// Bind directs where a job's output is written on success.
type Bind struct {
	ToStatePath string `json:"toStatePath"`
}

// Capabilities enumerates the allowed prefixes/hosts a job may use.
type Capabilities struct {
	FSRead  []string `json:"fsRead,omitempty"`
	FSWrite []string `json:"fsWrite,omitempty"`
	Net     []string `json:"net,omitempty"`
	LongRun bool     `json:"longRun,omitempty"`
	MemHigh bool     `json:"memHigh,omitempty"`
}

// Provenance ties a job to the environment and agent run that produced it.
// EnvHash participates in cache identity.
type Provenance struct {
	EnvHash      string `json:"envHash"`
	AgentTraceID string `json:"agentTraceId,omitempty"`
}

// DefaultTimeoutMs is the JobSpec.TimeoutMs default per §3.
const DefaultTimeoutMs = 30_000

// DefaultWorkspaceID is the JobSpec.WorkspaceID default per §3.
const DefaultWorkspaceID = "default"

// JobSpec is a request to run one task on the compute plane.
type JobSpec struct {
	JobID        string          `json:"jobId"`
	Task         string          `json:"task"`
	Input        json.RawMessage `json:"input"`
	TimeoutMs    int             `json:"timeoutMs"`
	Fuel         *uint64         `json:"fuel,omitempty"`
	MemLimitMb   *int            `json:"memLimitMb,omitempty"`
	Bind         []Bind          `json:"bind,omitempty"`
	Cache        CacheMode       `json:"cache"`
	Capabilities Capabilities    `json:"capabilities"`
	Replayable   bool            `json:"replayable"`
	WorkspaceID  string          `json:"workspaceId"`
	Provenance   Provenance      `json:"provenance"`
}

// WithDefaults fills zero-value fields with their spec-mandated
// defaults: a 30s timeout and the "default" workspace.
func (j JobSpec) WithDefaults() JobSpec {
	if j.TimeoutMs <= 0 {
		j.TimeoutMs = DefaultTimeoutMs
	}
	if j.WorkspaceID == "" {
		j.WorkspaceID = DefaultWorkspaceID
	}
	return j
}

// Deadline returns the wall-clock instant after which the scheduler
// must cancel the job, measured from submitAt.
func (j JobSpec) Deadline(submitAt time.Time) time.Time {
	return submitAt.Add(time.Duration(j.TimeoutMs) * time.Millisecond)
}

// EffectiveFuel resolves the job's fuel budget against a task profile
// default when the job did not request one explicitly.
func (j JobSpec) EffectiveFuel(profileDefault uint64) uint64 {
	if j.Fuel != nil {
		return *j.Fuel
	}
	return profileDefault
}

// EffectiveMemLimitMb resolves the job's memory cap against a task
// profile default when the job did not request one explicitly.
func (j JobSpec) EffectiveMemLimitMb(profileDefault int) int {
	if j.MemLimitMb != nil {
		return *j.MemLimitMb
	}
	return profileDefault
}
