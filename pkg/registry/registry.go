// Package registry maps node types to their handlers.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/validation"
)

// Registry holds one factory and one built handler per node type.
type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	factories map[models.NodeType]protocol.HandlerFactory
	handlers  map[models.NodeType]protocol.Handler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		factories: make(map[models.NodeType]protocol.HandlerFactory),
		handlers:  make(map[models.NodeType]protocol.Handler),
	}
}

// RegisterNode adds a factory. Registering a type twice replaces it.
func (r *Registry) RegisterNode(factory protocol.HandlerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
	delete(r.handlers, factory.ID())
}

// RegisterHandler adds an already built handler.
func (r *Registry) RegisterHandler(handler protocol.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[handler.Type()] = handler
}

// Build creates a handler for every registered factory.
func (r *Registry) Build(deps protocol.Dependencies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, factory := range r.factories {
		handler, err := factory.Create(deps)
		if err != nil {
			return fmt.Errorf("failed to build %s handler: %w", id, err)
		}

		r.handlers[id] = handler
	}

	r.logger.Info("Node handlers ready", "count", len(r.handlers))

	return nil
}

// Handler returns the handler for a node type.
//
//nolint:ireturn // handlers are polymorphic by design of the registry
func (r *Registry) Handler(nodeType models.NodeType) (protocol.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[nodeType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for node type %q", nodeType)
	}

	return handler, nil
}

// GetAvailableNodes returns the registered factories ordered by type.
func (r *Registry) GetAvailableNodes() []protocol.HandlerFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.HandlerFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		out = append(out, factory)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })

	return out
}

// ValidateNode checks a node config against its factory schema and the
// handler's own validation.
func (r *Registry) ValidateNode(node *models.Node) error {
	r.mu.RLock()
	factory, hasFactory := r.factories[node.Type]
	handler, hasHandler := r.handlers[node.Type]
	r.mu.RUnlock()

	if !hasFactory && !hasHandler {
		return fmt.Errorf("unsupported node type %q", node.Type)
	}

	if hasFactory {
		raw, err := json.Marshal(node.Config)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}

		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}

		if err := validation.ValidateJSONSchema(factory.Schema(), doc); err != nil {
			return err
		}
	}

	if v, ok := handler.(protocol.Validator); ok {
		return v.Validate(node)
	}

	return nil
}
