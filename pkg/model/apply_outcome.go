package model

// ApplyOutcome is the result of enqueueBatch, or of one partition's run
// before mixed-partition outcomes are merged.
type ApplyOutcome struct {
	Success           bool     `json:"success"`
	Applied           int      `json:"applied"`
	SkippedDuplicates int      `json:"skippedDuplicates"`
	DeniedByPolicy    int      `json:"deniedByPolicy"`
	Errors            []string `json:"errors,omitempty"`
	BatchID           string   `json:"batchId,omitempty"`
	OpsHash           string   `json:"opsHash,omitempty"`
}

// Merge combines two partitions' outcomes: success is AND'd, counters
// summed, errors concatenated.
func (o ApplyOutcome) Merge(other ApplyOutcome) ApplyOutcome {
	merged := ApplyOutcome{
		Success:           o.Success && other.Success,
		Applied:           o.Applied + other.Applied,
		SkippedDuplicates: o.SkippedDuplicates + other.SkippedDuplicates,
		DeniedByPolicy:    o.DeniedByPolicy + other.DeniedByPolicy,
		BatchID:           o.BatchID,
		OpsHash:           o.OpsHash,
	}
	merged.Errors = append(merged.Errors, o.Errors...)
	merged.Errors = append(merged.Errors, other.Errors...)
	return merged
}
