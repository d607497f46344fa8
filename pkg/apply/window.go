package apply

import "github.com/uicp/engine/pkg/model"

type windowParams struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	X            int    `json:"x"`
	Y            int    `json:"y"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	EnsureExists bool   `json:"ensureExists"`
}

func (e *Engine) windowCreate(env model.Envelope) Result {
	p, err := decodeParams[windowParams](env)
	if err != nil {
		return fail("window.create: %v", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, exists := e.windows[p.ID]; exists {
		return ok(existing)
	}
	w := &model.WindowRecord{ID: p.ID, TitleText: p.Title, ContentRoot: "#root"}
	e.windows[p.ID] = w
	return ok(w)
}

func (e *Engine) windowUpdate(env model.Envelope) Result {
	p, err := decodeParams[windowParams](env)
	if err != nil {
		return fail("window.update: %v", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	w, exists := e.windows[p.ID]
	if !exists {
		if !p.EnsureExists {
			return fail("window %q not found", p.ID)
		}
		w = e.ensureWindowExists(p.ID)
	}
	if p.Title != "" {
		w.TitleText = p.Title
	}
	return ok(w)
}

func (e *Engine) windowClose(env model.Envelope) Result {
	p, err := decodeParams[windowParams](env)
	if err != nil {
		return fail("window.close: %v", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.windows, p.ID)
	for id, c := range e.components {
		if c.WindowID == p.ID {
			delete(e.components, id)
		}
	}
	return ok(nil)
}
