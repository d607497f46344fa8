package apply

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/uicp/engine/pkg/model"
	"github.com/uicp/engine/pkg/policy"
)

type apiCallParams struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Body    json.RawMessage   `json:"body"`
	Headers map[string]string `json:"headers"`
}

type apiCallResult struct {
	Success bool        `json:"success"`
	Value   interface{} `json:"value,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// apiCall dispatches by URL scheme per §4.4: uicp://compute.call,
// uicp://intent, tauri://fs/writeTextFile, http(s)://, or an unknown
// scheme no-op.
func (e *Engine) apiCall(ctx context.Context, env model.Envelope) Result {
	p, err := decodeParams[apiCallParams](env)
	if err != nil {
		return fail("api.call: %v", err)
	}

	switch policy.RouteScheme(p.URL) {
	case policy.SchemeUICPCompute:
		return e.computeCall(ctx, env, p)
	case policy.SchemeUICPIntent:
		return e.intentCall(ctx, env, p)
	case policy.SchemeTauriFS:
		return e.fsWrite(p)
	case policy.SchemeHTTP:
		return e.httpFetch(ctx, p)
	default:
		return ok(apiCallResult{Success: true})
	}
}

type computeCallBody struct {
	Task         string             `json:"task"`
	Input        json.RawMessage    `json:"input"`
	TimeoutMs    int                `json:"timeoutMs"`
	Fuel         *uint64            `json:"fuel"`
	MemLimitMb   *int               `json:"memLimitMb"`
	Bind         []model.Bind       `json:"bind"`
	Cache        model.CacheMode    `json:"cache"`
	Capabilities model.Capabilities `json:"capabilities"`
	Replayable   bool               `json:"replayable"`
	WorkspaceID  string             `json:"workspaceId"`
}

// computeCall constructs a JobSpec (filling the workspaceId default
// and stamping provenance) and submits it to the Compute Job Scheduler.
func (e *Engine) computeCall(ctx context.Context, env model.Envelope, p apiCallParams) Result {
	var body computeCallBody
	if len(p.Body) > 0 {
		if err := json.Unmarshal(p.Body, &body); err != nil {
			return fail("api.call compute.call: invalid body: %v", err)
		}
	}
	if e.deps.Compute == nil {
		return fail("api.call compute.call: compute plane unavailable")
	}

	job := model.JobSpec{
		JobID:        uuid.NewString(),
		Task:         body.Task,
		Input:        body.Input,
		TimeoutMs:    body.TimeoutMs,
		Fuel:         body.Fuel,
		MemLimitMb:   body.MemLimitMb,
		Bind:         body.Bind,
		Cache:        body.Cache,
		Capabilities: body.Capabilities,
		Replayable:   body.Replayable,
		WorkspaceID:  body.WorkspaceID,
		Provenance: model.Provenance{
			EnvHash:      e.deps.EnvHash,
			AgentTraceID: env.TraceID,
		},
	}.WithDefaults()

	if err := e.deps.Compute.Submit(ctx, job); err != nil {
		return fail("api.call compute.call: submit failed: %v", err)
	}
	return ok(apiCallResult{Success: true, Value: job.JobID})
}

type clarifierShape struct {
	Clarifier json.RawMessage `json:"clarifier"`
	Text      string          `json:"text"`
}

// intentCall renders a structured clarifier form when body matches
// the clarifier shape, otherwise dispatches a uicp-intent event.
func (e *Engine) intentCall(ctx context.Context, env model.Envelope, p apiCallParams) Result {
	var body clarifierShape
	if len(p.Body) > 0 {
		_ = json.Unmarshal(p.Body, &body)
	}
	if e.deps.Intents == nil {
		return ok(apiCallResult{Success: true})
	}
	if err := e.deps.Intents.DispatchIntent(ctx, env.WindowID, body.Text, body.Clarifier); err != nil {
		return fail("api.call intent: %v", err)
	}
	return ok(apiCallResult{Success: true})
}

type fsWriteBody struct {
	Path     string         `json:"path"`
	Contents string         `json:"contents"`
	BaseDir  policy.BaseDir `json:"baseDir"`
}

// fsWrite invokes safeWrite against an allowlisted base directory;
// Desktop requires the dev-write flag.
func (e *Engine) fsWrite(p apiCallParams) Result {
	var body fsWriteBody
	if len(p.Body) > 0 {
		if err := json.Unmarshal(p.Body, &body); err != nil {
			return fail("api.call fs write: invalid body: %v", err)
		}
	}
	decision := e.deps.Gate.CheckFSWrite(body.BaseDir, body.Path)
	if !decision.Granted {
		return fail("%s", decision.Reason)
	}
	if e.deps.Files == nil {
		return fail("api.call fs write: file writer unavailable")
	}
	if err := e.deps.Files.WriteTextFile(body.BaseDir, body.Path, body.Contents); err != nil {
		return fail("api.call fs write: %v", err)
	}
	return ok(apiCallResult{Success: true})
}

// httpFetch performs a method-gated fetch. JSON responses are parsed,
// text responses returned as strings, everything else ignored.
func (e *Engine) httpFetch(ctx context.Context, p apiCallParams) Result {
	method := p.Method
	if method == "" {
		method = "GET"
	}
	decision := e.deps.Gate.CheckHTTPMethod(method)
	if !decision.Granted {
		return fail("%s", decision.Reason)
	}
	if e.deps.HTTP == nil {
		return fail("api.call http: http client unavailable")
	}
	status, contentType, body, err := e.deps.HTTP.Do(ctx, method, p.URL, p.Body, p.Headers)
	if err != nil {
		return fail("api.call http: %v", err)
	}

	res := apiCallResult{Success: status < 400}
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var data interface{}
		if jsonErr := json.Unmarshal(body, &data); jsonErr == nil {
			res.Data = data
		}
	case strings.HasPrefix(contentType, "text/"):
		res.Data = string(body)
	}
	return ok(res)
}
