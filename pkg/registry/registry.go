// Package registry is the source of truth for installed compute
// modules: a semver-aware "task@constraint" index over verified
// TaskManifests and their WASM bytes.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/uicp/engine/pkg/manifest"
)

var ErrModuleNotFound = errors.New("registry: task module not found")

// ModuleEntry pairs a verified task manifest with its WASM bytes.
type ModuleEntry struct {
	Manifest manifest.TaskManifest
	Wasm     []byte
}

// Registry resolves "task@constraint" to the best matching verified module.
type Registry interface {
	// Register verifies manifest digest/signature against wasm, then
	// indexes it under task@version.
	Register(m manifest.TaskManifest, wasm []byte) error
	// Resolve returns the highest version of task satisfying constraint
	// (empty constraint means any version, highest wins).
	Resolve(task, constraint string) (*ModuleEntry, error)
	// List returns every registered version of task.
	List(task string) []manifest.TaskManifest
	// Unregister removes one version of a task (e.g. for revocation).
	Unregister(task, version string) error
}

type taskVersions struct {
	byVersion map[string]*ModuleEntry
}

// InMemoryRegistry is a thread-safe, semver-aware module registry.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*taskVersions
	keys  KeyStore
}

// NewInMemoryRegistry builds a registry. keys may be nil to skip
// signature verification; digest verification always runs.
func NewInMemoryRegistry(keys KeyStore) *InMemoryRegistry {
	return &InMemoryRegistry{tasks: make(map[string]*taskVersions), keys: keys}
}

// Register verifies m.Digest against sha256(wasm) and, when the
// manifest is signed, m.Signature against m.KeyID, before indexing
// the module.
func (r *InMemoryRegistry) Register(m manifest.TaskManifest, wasm []byte) error {
	if m.Task == "" || m.Version == "" {
		return errors.New("registry: task and version are required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("registry: invalid semver %q: %w", m.Version, err)
	}

	sum := sha256.Sum256(wasm)
	digest := "sha256:" + hex.EncodeToString(sum[:])
	if m.Digest != "" && m.Digest != digest {
		return fmt.Errorf("registry: digest mismatch for %s@%s: manifest says %s, computed %s", m.Task, m.Version, m.Digest, digest)
	}
	m.Digest = digest

	if m.Signed() {
		if r.keys == nil {
			return fmt.Errorf("registry: %s@%s is signed but no key store is configured", m.Task, m.Version)
		}
		if err := VerifySignature(r.keys, m.KeyID, []byte(m.Digest), m.Signature); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tv, ok := r.tasks[m.Task]
	if !ok {
		tv = &taskVersions{byVersion: make(map[string]*ModuleEntry)}
		r.tasks[m.Task] = tv
	}
	tv.byVersion[m.Version] = &ModuleEntry{Manifest: m, Wasm: wasm}
	return nil
}

// Resolve returns the highest version of task satisfying constraint.
func (r *InMemoryRegistry) Resolve(task, constraint string) (*ModuleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tv, ok := r.tasks[task]
	if !ok || len(tv.byVersion) == 0 {
		return nil, ErrModuleNotFound
	}

	var c *semver.Constraints
	if constraint != "" {
		parsed, err := semver.NewConstraint(constraint)
		if err != nil {
			return nil, fmt.Errorf("registry: invalid constraint %q: %w", constraint, err)
		}
		c = parsed
	}

	var best *semver.Version
	var bestEntry *ModuleEntry
	for vs, entry := range tv.byVersion {
		v, err := semver.NewVersion(vs)
		if err != nil {
			continue
		}
		if c != nil && !c.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestEntry = entry
		}
	}
	if bestEntry == nil {
		return nil, fmt.Errorf("registry: no version of %s satisfies %q", task, constraint)
	}
	return bestEntry, nil
}

// List returns every registered version of task, sorted by version string.
func (r *InMemoryRegistry) List(task string) []manifest.TaskManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tv, ok := r.tasks[task]
	if !ok {
		return nil
	}
	out := make([]manifest.TaskManifest, 0, len(tv.byVersion))
	for _, entry := range tv.byVersion {
		out = append(out, entry.Manifest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

func (r *InMemoryRegistry) Unregister(task, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tv, ok := r.tasks[task]
	if !ok {
		return ErrModuleNotFound
	}
	if _, ok := tv.byVersion[version]; !ok {
		return ErrModuleNotFound
	}
	delete(tv.byVersion, version)
	return nil
}
