package variables

import (
	"github.com/dukex/loyalflow/pkg/models"
)

// View is the variable surface a node handler works against. Mutations always
// target session scope; reads follow the scope fallback chain.
type View interface {
	Lookup(ref string) (any, bool)
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Clear()
	Snapshot() map[string]any
	Scopes() map[string]any
}

// SessionView exposes the working set of a top-level execution.
type SessionView struct {
	ws *WorkingSet
}

// NewSessionView wraps a working set.
func NewSessionView(ws *WorkingSet) *SessionView {
	return &SessionView{ws: ws}
}

func (v *SessionView) Lookup(ref string) (any, bool) { return v.ws.Lookup(ref) }

func (v *SessionView) Get(key string) (any, bool) { return v.ws.Get(models.ScopeSession, key) }

func (v *SessionView) Set(key string, value any) { v.ws.Set(models.ScopeSession, key, value) }

func (v *SessionView) Delete(key string) { v.ws.Delete(models.ScopeSession, key) }

func (v *SessionView) Clear() { v.ws.Clear(models.ScopeSession) }

func (v *SessionView) Snapshot() map[string]any { return v.ws.Snapshot(models.ScopeSession) }

// Scopes returns a copy of every scope keyed by scope name.
func (v *SessionView) Scopes() map[string]any {
	out := make(map[string]any, len(models.ScopeFallbackChain))
	for _, scope := range models.ScopeFallbackChain {
		out[string(scope)] = v.ws.Snapshot(scope)
	}

	return out
}

// FrameView isolates the session scope of a nested sub-workflow while still
// reading user, project and global values from the parent working set.
type FrameView struct {
	ws      *WorkingSet
	session map[string]any
}

// NewFrameView creates a nested view seeded with the given session values.
func NewFrameView(ws *WorkingSet, seed map[string]any) *FrameView {
	session := models.CloneMap(seed)
	if session == nil {
		session = map[string]any{}
	}

	return &FrameView{ws: ws, session: session}
}

func (v *FrameView) Lookup(ref string) (any, bool) {
	if scope, rest, ok := SplitScope(ref); ok {
		if scope == models.ScopeSession {
			return lookupPath(v.session, rest)
		}

		return v.ws.Lookup(ref)
	}

	if val, ok := lookupPath(v.session, ref); ok {
		return val, true
	}

	for _, scope := range models.ScopeFallbackChain[1:] {
		if val, ok := v.ws.Lookup(string(scope) + "." + ref); ok {
			return val, true
		}
	}

	return nil, false
}

func (v *FrameView) Get(key string) (any, bool) {
	val, ok := v.session[key]
	return val, ok
}

func (v *FrameView) Set(key string, value any) { v.session[key] = value }

func (v *FrameView) Delete(key string) { delete(v.session, key) }

func (v *FrameView) Clear() { v.session = map[string]any{} }

func (v *FrameView) Snapshot() map[string]any { return models.CloneMap(v.session) }

func (v *FrameView) Scopes() map[string]any {
	out := map[string]any{string(models.ScopeSession): v.Snapshot()}
	for _, scope := range models.ScopeFallbackChain[1:] {
		out[string(scope)] = v.ws.Snapshot(scope)
	}

	return out
}
