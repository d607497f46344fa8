// Package bridge is the host-exposed transport for the Command Apply
// Pipeline and Compute Bridge described in spec.md §6: batch
// submission, computeCall/computeCancel, SSE event delivery, and a
// small admin/introspection surface, in the teacher's console
// server's constructor-injection style.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uicp/engine/pkg/eventbus"
	"github.com/uicp/engine/pkg/kernel"
	"github.com/uicp/engine/pkg/model"
	"github.com/uicp/engine/pkg/queue"
)

// Applier admits a batch into the per-window queue.
type Applier interface {
	Enqueue(ctx context.Context, b model.Batch) queue.EnqueueResult
}

// ComputeSubmitter is the Compute Job Scheduler's bridge-facing surface.
type ComputeSubmitter interface {
	Submit(ctx context.Context, job model.JobSpec) error
	Cancel(jobID string) bool
	NondeterminismReceipt(workspaceID string) (*kernel.NondeterminismReceipt, error)
}

// CacheStats reports the content-addressed cache's current footprint.
type CacheStats interface {
	Size(ctx context.Context, workspaceID string) (int64, error)
	Clear(ctx context.Context, workspaceID string) error
}

// Server is the bridge's HTTP surface.
type Server struct {
	apply   Applier
	compute ComputeSubmitter
	bus     *eventbus.Bus
	cache   CacheStats

	adminSecret string
	mux         *http.ServeMux
}

// New builds a bridge Server wired to the engine plane's collaborators.
// adminSecret gates the /admin/* routes with a bearer JWT when non-empty;
// empty disables admin auth (single-operator/dev mode).
func New(apply Applier, compute ComputeSubmitter, bus *eventbus.Bus, cache CacheStats, adminSecret string) *Server {
	s := &Server{apply: apply, compute: compute, bus: bus, cache: cache, adminSecret: adminSecret}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/batches", s.handleEnqueueBatch)
	s.mux.HandleFunc("/v1/compute/call", s.handleComputeCall)
	s.mux.HandleFunc("/v1/compute/cancel", s.handleComputeCancel)
	s.mux.HandleFunc("/v1/compute/events/", s.handleComputeEvents)

	s.mux.HandleFunc("/metrics", s.handleMetrics)
	s.mux.HandleFunc("/cache/stats", s.withAdminAuth(s.handleCacheStats))
	s.mux.HandleFunc("/scheduler/stats", s.withAdminAuth(s.handleSchedulerStats))
	s.mux.HandleFunc("/admin/modules/reload", s.withAdminAuth(s.handleModulesReload))
	s.mux.HandleFunc("/admin/cache/clear", s.withAdminAuth(s.handleCacheClear))
	s.mux.HandleFunc("/admin/nondeterminism", s.withAdminAuth(s.handleNondeterminism))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEnqueueBatch implements the in-process enqueueBatch surface
// over HTTP: POST a Batch, get back an ApplyOutcome (or a 202 if the
// workspace is not yet mounted and the batch was deferred).
func (s *Server) handleEnqueueBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "E-UICP-0101", "POST required")
		return
	}
	var batch model.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "E-UICP-0102", "invalid batch: "+err.Error())
		return
	}

	result := s.apply.Enqueue(r.Context(), batch)
	if result.Deferred {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "deferred"})
		return
	}
	writeJSON(w, http.StatusOK, result.Outcome)
}

// handleComputeCall implements computeCall(JobSpec) -> ack.
func (s *Server) handleComputeCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "E-UICP-0501", "POST required")
		return
	}
	var job model.JobSpec
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "E-UICP-0502", "invalid job: "+err.Error())
		return
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if err := s.compute.Submit(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, "E-UICP-0503", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.JobID})
}

// handleComputeCancel implements computeCancel(jobId) -> bool.
func (s *Server) handleComputeCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "E-UICP-0501", "POST required")
		return
	}
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "E-UICP-0502", "jobId required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.compute.Cancel(jobID)})
}

// handleComputeEvents streams compute-partial/compute-final over SSE
// for one jobId, closing when the job's Final arrives. No compute-log
// events are sent.
func (s *Server) handleComputeEvents(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/v1/compute/events/")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "E-UICP-0502", "jobId required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "E-UICP-0999", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.bus.Subscribe(jobID)
	defer sub.Close()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			switch {
			case ev.Partial != nil:
				writeSSE(w, "compute-partial", ev.Partial)
			case ev.Final != nil:
				writeSSE(w, "compute-final", ev.Final)
				flusher.Flush()
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	// Metrics leave the process through the OTLP gRPC exporter in
	// pkg/observability; this route only returns a JSON status note and
	// serves no Prometheus exposition.
	writeJSON(w, http.StatusOK, map[string]string{"status": "metrics exported via OTLP"})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		workspaceID = model.DefaultWorkspaceID
	}
	size, err := s.cache.Size(r.Context(), workspaceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "E-UICP-0999", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspaceId": workspaceID, "bytes": size})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		writeError(w, http.StatusBadRequest, "E-UICP-0502", "workspaceId required")
		return
	}
	if err := s.cache.Clear(r.Context(), workspaceID); err != nil {
		writeError(w, http.StatusInternalServerError, "E-UICP-0999", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleSchedulerStats(w http.ResponseWriter, r *http.Request) {
	snapshot := s.bus.Snapshot(50)
	writeJSON(w, http.StatusOK, map[string]any{"recentTraces": len(snapshot)})
}

// handleNondeterminism reports the sealed receipt of replay hash
// mismatches the Scheduler has detected for a workspace.
func (s *Server) handleNondeterminism(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		workspaceID = model.DefaultWorkspaceID
	}
	receipt, err := s.compute.NondeterminismReceipt(workspaceID)
	if err != nil {
		writeJSON(w, http.StatusOK, kernel.NondeterminismReceipt{WorkspaceID: workspaceID, Bounds: []kernel.NondeterminismBound{}})
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleModulesReload(w http.ResponseWriter, r *http.Request) {
	// Reloading the registry in place requires a mutable registry
	// collaborator this bridge is not given; operators restart the
	// process to pick up new modules. Reported as not implemented
	// rather than silently succeeding.
	writeError(w, http.StatusNotImplemented, "E-UICP-0999", "hot reload not supported; restart the process")
}

// ListenAndServe starts the bridge with sane read/write timeouts,
// grounded on the teacher's bare-ListenAndServe health server but
// hardened against slow-client resource exhaustion.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // SSE streams run indefinitely
		IdleTimeout:       120 * time.Second,
	}
	return srv.ListenAndServe()
}
