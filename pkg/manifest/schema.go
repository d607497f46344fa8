package manifest

// TaskManifest describes one compute task a registered module exposes:
// its content digest (for CAS resolution and signature verification),
// and the frame schemas its input/output must satisfy.
type TaskManifest struct {
	Task         string            `json:"task" yaml:"task"`
	Version      string            `json:"version" yaml:"version"`
	Digest       string            `json:"digest" yaml:"digest"` // sha256 of the WASM module bytes
	Signature    string            `json:"signature,omitempty" yaml:"signature,omitempty"`
	KeyID        string            `json:"keyid,omitempty" yaml:"keyid,omitempty"`
	Provenance   string            `json:"provenance,omitempty" yaml:"provenance,omitempty"`
	InputSchema  *TaskInputSchema  `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema *TaskOutputSchema `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// Signed reports whether the manifest carries a signature to verify.
func (m TaskManifest) Signed() bool {
	return m.Signature != "" && m.KeyID != ""
}
