package apply

import (
	"github.com/uicp/engine/pkg/model"
	"github.com/uicp/engine/pkg/policy"
)

type domParams struct {
	WindowID string `json:"windowId"`
	Target   string `json:"target"`
	HTML     string `json:"html"`
}

// domWrite handles dom.set|replace|append: the target window must
// already exist, html is sanitized before it ever reaches the DOM, and
// a sanitization failure never partially mutates the window.
func (e *Engine) domWrite(env model.Envelope) Result {
	p, err := decodeParams[domParams](env)
	if err != nil {
		return fail("%s: %v", env.Op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.windows[p.WindowID]; !exists {
		return fail("window %q not found", p.WindowID)
	}
	if p.Target == "" {
		return fail("%s: missing target selector", env.Op)
	}

	safe, err := policy.SanitizeHtmlStrict(p.HTML)
	if err != nil {
		return fail("%s: sanitization failed: %v", env.Op, err)
	}

	return ok(domWriteResult{WindowID: p.WindowID, Target: p.Target, Op: env.Op, HTML: safe})
}

type domWriteResult struct {
	WindowID string
	Target   string
	Op       model.Op
	HTML     policy.SafeHtml
}
