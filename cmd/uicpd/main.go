package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/uicp/engine/pkg/bridge"
	"github.com/uicp/engine/pkg/config"
	"github.com/uicp/engine/pkg/engine"
	"github.com/uicp/engine/pkg/manifest"
	"github.com/uicp/engine/pkg/registry"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing: every subcommand is a pure
// function of args/stdout/stderr, following the teacher's
// testable-CLI convention.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(stdout, stderr)
	}

	switch args[1] {
	case "serve":
		return runServe(stdout, stderr)
	case "verify-module":
		return runVerifyModule(args[2:], stdout, stderr)
	case "cache":
		return runCache(args[2:], stdout, stderr)
	case "doctor":
		return runDoctor(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "uicpd — UICP compute plane and command apply pipeline")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  uicpd <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  serve                   Run the engine plane and HTTP bridge (default)")
	fmt.Fprintln(w, "  verify-module <path>    Check a task package's digest/signature without installing it")
	fmt.Fprintln(w, "  cache stats|clear <workspaceId>")
	fmt.Fprintln(w, "  doctor                  Check configuration and modules directory sanity")
	fmt.Fprintln(w, "  help                    Show this help")
}

func runServe(stdout, stderr io.Writer) int {
	cfg := config.Load()
	logger := newLogger(cfg)

	ctx := context.Background()
	plane, err := engine.Build(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "engine: %v\n", err)
		return 1
	}

	srv := bridge.New(plane.Queue, plane.Scheduler, plane.Bus, plane.Cache, cfg.AdminTokenSecret)

	addr := ":" + cfg.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("bridge listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("bridge server failed", "error", err)
		}
	}()

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-sigCtx.Done()

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("bridge shutdown", "error", err)
	}
	if err := plane.Shutdown(shutdownCtx); err != nil {
		logger.Warn("plane shutdown", "error", err)
	}
	return 0
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// runVerifyModule checks a <name>.wasm + <name>.manifest.json pair's
// digest (and signature, if present) without registering it into a
// running plane's registry. YAML manifests are not read here.
func runVerifyModule(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: uicpd verify-module <path-to-wasm>")
		return 2
	}
	wasmPath := args[0]
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		fmt.Fprintf(stderr, "read %s: %v\n", wasmPath, err)
		return 1
	}

	dir := filepath.Dir(wasmPath)
	base := strings.TrimSuffix(filepath.Base(wasmPath), ".wasm")
	m, err := readManifestFile(dir, base)
	if err != nil {
		fmt.Fprintf(stderr, "manifest: %v\n", err)
		return 1
	}

	scratch := registry.NewInMemoryRegistry(nil)
	if err := scratch.Register(*m, wasm); err != nil {
		fmt.Fprintf(stderr, "verification failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "OK: %s@%s digest verified\n", m.Task, m.Version)
	if m.Signed() {
		fmt.Fprintf(stdout, "    signature verified (keyid=%s)\n", m.KeyID)
	}
	return 0
}

func readManifestFile(dir, base string) (*manifest.TaskManifest, error) {
	jsonPath := filepath.Join(dir, base+".manifest.json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("no manifest found at %s", jsonPath)
	}
	var m manifest.TaskManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", jsonPath, err)
	}
	return &m, nil
}

func runCache(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: uicpd cache stats|clear <workspaceId>")
		return 2
	}

	cfg := config.Load()
	ctx := context.Background()
	plane, err := engine.Build(ctx, cfg, newLogger(cfg))
	if err != nil {
		fmt.Fprintf(stderr, "engine: %v\n", err)
		return 1
	}
	defer plane.Shutdown(ctx)

	workspaceID := "default"
	if len(args) > 1 {
		workspaceID = args[1]
	}

	switch args[0] {
	case "stats":
		size, err := plane.Cache.Size(ctx, workspaceID)
		if err != nil {
			fmt.Fprintf(stderr, "cache stats: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "%s: %d bytes\n", workspaceID, size)
		return 0
	case "clear":
		if err := plane.Cache.Clear(ctx, workspaceID); err != nil {
			fmt.Fprintf(stderr, "cache clear: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "%s: cleared\n", workspaceID)
		return 0
	default:
		fmt.Fprintln(stderr, "Usage: uicpd cache stats|clear <workspaceId>")
		return 2
	}
}

// runDoctor checks configuration and modules-directory sanity without
// starting the bridge, mirroring the teacher's "doctor" command.
func runDoctor(stdout, stderr io.Writer) int {
	cfg := config.Load()
	ok := true

	check := func(name string, cond bool, detail string) {
		status := "OK"
		if !cond {
			status = "FAIL"
			ok = false
		}
		fmt.Fprintf(stdout, "[%s] %s: %s\n", status, name, detail)
	}

	check("workspace root", cfg.WorkspaceRoot != "", cfg.WorkspaceRoot)
	check("modules dir", cfg.ModulesDir != "", cfg.ModulesDir)

	entries, err := os.ReadDir(cfg.ModulesDir)
	if err != nil {
		check("modules dir readable", false, err.Error())
	} else {
		wasmCount := 0
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".wasm") {
				wasmCount++
			}
		}
		check("modules dir readable", true, fmt.Sprintf("%d task packages found", wasmCount))
	}

	check("scheduler concurrency", cfg.SchedulerConcurrency > 0, fmt.Sprintf("%d", cfg.SchedulerConcurrency))

	if !ok {
		return 1
	}
	return 0
}
