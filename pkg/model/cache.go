package model

import (
	"encoding/json"
	"time"

	"github.com/uicp/engine/pkg/canonicalize"
)

// CacheKey identifies a deterministic (task, input, capabilities,
// workspace, envHash) tuple. Two jobs with identical inputs but
// differing envHash are distinct.
type CacheKey string

type cacheKeyIdentity struct {
	Task         string          `json:"task"`
	Input        json.RawMessage `json:"input"`
	Capabilities Capabilities    `json:"capabilities"`
	WorkspaceID  string          `json:"workspaceId"`
	EnvHash      string          `json:"envHash"`
}

// ComputeCacheKey canonicalizes the job's identity tuple (task,
// canonical input, capabilities, workspace, envHash) per §4.1/§4.7
// and returns the resulting CacheKey.
func ComputeCacheKey(j JobSpec) (CacheKey, error) {
	identity := cacheKeyIdentity{
		Task:         j.Task,
		Input:        j.Input,
		Capabilities: j.Capabilities,
		WorkspaceID:  j.WorkspaceID,
		EnvHash:      j.Provenance.EnvHash,
	}
	hash, err := canonicalize.CanonicalHash(identity)
	if err != nil {
		return "", err
	}
	return CacheKey(hash), nil
}

// Metrics captures a completed job's resource accounting.
type Metrics struct {
	DurationMs             int64  `json:"durationMs"`
	FuelUsed               uint64 `json:"fuelUsed"`
	MemPeakMb              int    `json:"memPeakMb"`
	CacheHit               bool   `json:"cacheHit"`
	LogCount               int    `json:"logCount"`
	PartialFrames          int    `json:"partialFrames"`
	InvalidPartialsDropped int    `json:"invalidPartialsDropped"`
	OutputHash             string `json:"outputHash"`
}

// CacheEntry is a persisted, replayable job result. Only entries from
// replayable jobs are ever written; bypass jobs never read or write.
type CacheEntry struct {
	Key        CacheKey        `json:"key"`
	Output     json.RawMessage `json:"output"`
	Metrics    Metrics         `json:"metrics"`
	CreatedAt  time.Time       `json:"createdAt"`
	Bytes      int64           `json:"bytes"`
	Replayable bool            `json:"replayable"`
}
