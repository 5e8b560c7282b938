// Package variables holds the scoped variable state loaded for one run cycle.
package variables

import (
	"sort"
	"strings"
	"sync"

	"github.com/dukex/loyalflow/pkg/models"
)

// Owners identifies whose variables each scope addresses.
type Owners struct {
	SessionID string
	UserID    string
	ProjectID string
}

// Key returns the owner key for a scope. The boolean is false when the scope
// has no owner in this context.
func (o Owners) Key(scope models.Scope) (string, bool) {
	switch scope {
	case models.ScopeSession:
		return o.SessionID, o.SessionID != ""
	case models.ScopeUser:
		return o.UserID, o.UserID != ""
	case models.ScopeProject:
		return o.ProjectID, o.ProjectID != ""
	case models.ScopeGlobal:
		return "", true
	default:
		return "", false
	}
}

type change struct {
	value   any
	deleted bool
}

// WorkingSet is the in-memory copy of every variable addressable by one
// execution. Writes are tracked so that only changed keys are persisted.
type WorkingSet struct {
	mu      sync.RWMutex
	owners  Owners
	values  map[models.Scope]map[string]any
	changes map[models.Scope]map[string]change
}

// NewWorkingSet builds a working set from loaded variables.
func NewWorkingSet(owners Owners, loaded []*models.Variable) *WorkingSet {
	ws := &WorkingSet{
		owners:  owners,
		values:  map[models.Scope]map[string]any{},
		changes: map[models.Scope]map[string]change{},
	}

	for _, scope := range models.ScopeFallbackChain {
		ws.values[scope] = map[string]any{}
	}

	for _, v := range loaded {
		if key, ok := owners.Key(v.Scope); !ok || key != v.OwnerKey {
			continue
		}

		ws.values[v.Scope][v.Key] = v.Value
	}

	return ws
}

// Owners returns the owner keys of the working set.
func (w *WorkingSet) Owners() Owners {
	return w.owners
}

// Get reads a key from one scope.
func (w *WorkingSet) Get(scope models.Scope, key string) (any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	v, ok := w.values[scope][key]

	return v, ok
}

// Set writes a key into one scope.
func (w *WorkingSet) Set(scope models.Scope, key string, value any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.values[scope] == nil {
		w.values[scope] = map[string]any{}
	}

	w.values[scope][key] = value
	w.track(scope, key, change{value: value})
}

// Delete removes a key from one scope.
func (w *WorkingSet) Delete(scope models.Scope, key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.values[scope], key)
	w.track(scope, key, change{deleted: true})
}

// Clear removes every key of one scope.
func (w *WorkingSet) Clear(scope models.Scope) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for key := range w.values[scope] {
		w.track(scope, key, change{deleted: true})
	}

	w.values[scope] = map[string]any{}
}

func (w *WorkingSet) track(scope models.Scope, key string, c change) {
	if w.changes[scope] == nil {
		w.changes[scope] = map[string]change{}
	}

	w.changes[scope][key] = c
}

// Snapshot returns a deep copy of one scope.
func (w *WorkingSet) Snapshot(scope models.Scope) map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := models.CloneMap(w.values[scope])
	if out == nil {
		out = map[string]any{}
	}

	return out
}

// Lookup resolves a reference. "session.step" reads only the session scope
// (nested keys are followed with dots); an unqualified "step" walks
// session, user, project and global in that order.
func (w *WorkingSet) Lookup(ref string) (any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if scope, rest, ok := SplitScope(ref); ok {
		return lookupPath(w.values[scope], rest)
	}

	for _, scope := range models.ScopeFallbackChain {
		if v, ok := lookupPath(w.values[scope], ref); ok {
			return v, true
		}
	}

	return nil, false
}

// Changes returns the pending writes ordered by scope and key.
func (w *WorkingSet) Changes() []models.VariableChange {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []models.VariableChange

	for _, scope := range models.ScopeFallbackChain {
		owner, ok := w.owners.Key(scope)
		if !ok {
			continue
		}

		keys := make([]string, 0, len(w.changes[scope]))
		for key := range w.changes[scope] {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		for _, key := range keys {
			c := w.changes[scope][key]
			out = append(out, models.VariableChange{
				Scope:    scope,
				OwnerKey: owner,
				Key:      key,
				Value:    c.value,
				Deleted:  c.deleted,
			})
		}
	}

	return out
}

// SplitScope splits "scope.rest" when the prefix names a scope.
func SplitScope(ref string) (models.Scope, string, bool) {
	prefix, rest, found := strings.Cut(ref, ".")
	if !found || rest == "" {
		return "", "", false
	}

	scope, err := models.ParseScope(prefix)
	if err != nil {
		return "", "", false
	}

	return scope, rest, true
}

func lookupPath(values map[string]any, path string) (any, bool) {
	if v, ok := values[path]; ok {
		return v, true
	}

	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}

	v, ok := values[head]
	if !ok {
		return nil, false
	}

	nested, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	return lookupPath(nested, rest)
}
