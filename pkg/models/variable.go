package models

import (
	"fmt"
	"time"
)

// Scope is the visibility tier a variable is stored under.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// ScopeFallbackChain is the read precedence for unqualified variable references.
var ScopeFallbackChain = []Scope{ScopeSession, ScopeUser, ScopeProject, ScopeGlobal}

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeSession, ScopeUser, ScopeProject, ScopeGlobal:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown variable scope %q", s)
	}
}

// Variable is one scoped key/value entry. OwnerKey is the session, user or
// project id; it is empty for global scope.
type Variable struct {
	Scope     Scope     `json:"scope"`
	OwnerKey  string    `json:"owner_key"`
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VariableChange is a pending write produced during one run cycle.
type VariableChange struct {
	Scope    Scope  `json:"scope"`
	OwnerKey string `json:"owner_key"`
	Key      string `json:"key"`
	Value    any    `json:"value,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
}
