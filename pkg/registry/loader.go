package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/uicp/engine/pkg/manifest"
	"gopkg.in/yaml.v3"
)

// LoadModulesDir scans dir for task packages: each package is a pair
// of files sharing a basename, "<name>.wasm" and "<name>.manifest.json"
// or "<name>.manifest.yaml" (converted to the canonical JSON manifest
// at load time). A package whose digest or signature fails
// verification is skipped rather than aborting the scan; failures are
// returned alongside the registry holding the modules that registered.
func LoadModulesDir(dir string, keys KeyStore) (*InMemoryRegistry, []error) {
	reg := NewInMemoryRegistry(keys)
	var errs []error

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return reg, []error{fmt.Errorf("registry: read modules dir: %w", err)}
	}

	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".wasm") {
			continue
		}
		base := strings.TrimSuffix(ent.Name(), ".wasm")
		wasmPath := filepath.Join(dir, ent.Name())

		m, err := readManifest(dir, base)
		if err != nil {
			errs = append(errs, fmt.Errorf("registry: %s: %w", base, err))
			continue
		}

		wasm, err := os.ReadFile(wasmPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("registry: read %s: %w", wasmPath, err))
			continue
		}

		if err := reg.Register(*m, wasm); err != nil {
			errs = append(errs, fmt.Errorf("registry: register %s: %w", base, err))
			continue
		}
	}

	return reg, errs
}

func readManifest(dir, base string) (*manifest.TaskManifest, error) {
	jsonPath := filepath.Join(dir, base+".manifest.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		var m manifest.TaskManifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", jsonPath, err)
		}
		return &m, nil
	}

	yamlPath := filepath.Join(dir, base+".manifest.yaml")
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("no manifest found for %s (.manifest.json or .manifest.yaml)", base)
	}
	var m manifest.TaskManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", yamlPath, err)
	}
	return &m, nil
}
