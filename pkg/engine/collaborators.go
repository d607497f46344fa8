package engine

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/uicp/engine/pkg/policy"
)

// hostEnvHash fingerprints the Go runtime version, OS/arch, and the
// resolved module version so that jobs replayed on a materially
// different host miss the cache rather than silently reusing an
// incompatible entry. blake2b, not crypto/sha256, because this
// fingerprint only discriminates cache identity; it is never checked
// against a manifest digest and needs no collision-resistance proof.
func hostEnvHash() (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("hostEnvHash: init blake2b: %w", err)
	}
	fmt.Fprintf(h, "go=%s os=%s arch=%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if bi, ok := debug.ReadBuildInfo(); ok {
		fmt.Fprintf(h, " mod=%s", bi.Main.Version)
	}
	return "blake2b:" + hex.EncodeToString(h.Sum(nil)), nil
}

// httpDoer is apply.HTTPDoer backed by net/http. Method gating already
// happened in apply.apiCall via the policy Gate; this performs the
// fetch and caps the response body so a runaway endpoint cannot exhaust
// memory.
type httpDoer struct {
	client *http.Client
	gate   *policy.Gate
}

func newHTTPDoer(gate *policy.Gate) *httpDoer {
	return &httpDoer{client: &http.Client{Timeout: 30 * time.Second}, gate: gate}
}

const maxHTTPResponseBytes = 8 * 1024 * 1024

func (d *httpDoer) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (int, string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, bytes.NewReader(body))
	if err != nil {
		return 0, "", nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxHTTPResponseBytes+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return 0, "", nil, fmt.Errorf("read response: %w", err)
	}
	if len(respBody) > maxHTTPResponseBytes {
		return 0, "", nil, fmt.Errorf("response exceeds %d bytes", maxHTTPResponseBytes)
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), respBody, nil
}

// localFileWriter is apply.FileWriter. Every base directory resolves
// to a subdirectory under workspaceRoot rather than the real OS
// special folders: the plane runs headless, with no Tauri host to
// resolve AppData/Desktop/etc, so each BaseDir is a workspace-relative
// sandbox directory named after it.
type localFileWriter struct {
	root string
	gate *policy.Gate
}

func newLocalFileWriter(root string, gate *policy.Gate) *localFileWriter {
	return &localFileWriter{root: root, gate: gate}
}

func (w *localFileWriter) WriteTextFile(baseDir policy.BaseDir, path, contents string) error {
	decision := w.gate.CheckFSWrite(baseDir, path)
	if !decision.Granted {
		return fmt.Errorf("fs write denied: %s", decision.Reason)
	}

	dir := filepath.Join(w.root, "fs", string(baseDir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	full := filepath.Join(dir, filepath.Clean(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(full), err)
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, full)
}

// noopIntentDispatcher logs uicp://intent calls instead of delivering
// them to a chat/UI layer, which sits outside this plane's boundary.
// A host embedding the plane with a live UI substitutes its own
// apply.IntentDispatcher at Plane construction time.
type noopIntentDispatcher struct {
	logger *slog.Logger
}

func newNoopIntentDispatcher(logger *slog.Logger) *noopIntentDispatcher {
	return &noopIntentDispatcher{logger: logger}
}

func (d *noopIntentDispatcher) DispatchIntent(ctx context.Context, windowID, text string, clarifier json.RawMessage) error {
	d.logger.Info("intent dispatched with no UI collaborator attached",
		"windowId", windowID, "text", text, "hasClarifier", len(clarifier) > 0)
	return nil
}
