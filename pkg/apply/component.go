package apply

import (
	"github.com/uicp/engine/pkg/model"
	"github.com/uicp/engine/pkg/policy"
)

type componentParams struct {
	WindowID string `json:"windowId"`
	ID       string `json:"id"`
	HTML     string `json:"html"`
}

// componentRender ensures the target window exists, then registers
// {id, element} with sanitized HTML.
func (e *Engine) componentRender(env model.Envelope) Result {
	p, err := decodeParams[componentParams](env)
	if err != nil {
		return fail("component.render: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.windows[p.WindowID]; !exists {
		return fail("window %q not found", p.WindowID)
	}
	safe, err := policy.SanitizeHtmlStrict(p.HTML)
	if err != nil {
		return fail("component.render: sanitization failed: %v", err)
	}
	e.components[p.ID] = componentRecord{WindowID: p.WindowID, HTML: safe}
	return ok(p.ID)
}

func (e *Engine) componentUpdate(env model.Envelope) Result {
	p, err := decodeParams[componentParams](env)
	if err != nil {
		return fail("component.update: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, exists := e.components[p.ID]
	if !exists {
		return fail("component %q not found", p.ID)
	}
	safe, err := policy.SanitizeHtmlStrict(p.HTML)
	if err != nil {
		return fail("component.update: sanitization failed: %v", err)
	}
	rec.HTML = safe
	e.components[p.ID] = rec
	return ok(p.ID)
}

func (e *Engine) componentDestroy(env model.Envelope) Result {
	p, err := decodeParams[componentParams](env)
	if err != nil {
		return fail("component.destroy: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.components, p.ID)
	return ok(nil)
}
