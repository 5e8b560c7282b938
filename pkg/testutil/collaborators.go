package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Versions is an in-memory VersionSource.
type Versions struct {
	mu       sync.RWMutex
	versions map[string][]*models.WorkflowVersion
}

func NewVersions(versions ...*models.WorkflowVersion) *Versions {
	v := &Versions{versions: map[string][]*models.WorkflowVersion{}}
	for _, version := range versions {
		v.Add(version)
	}

	return v
}

func (v *Versions) Add(version *models.WorkflowVersion) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.versions[version.WorkflowID] = append(v.versions[version.WorkflowID], version)
}

func (v *Versions) GetVersion(_ context.Context, workflowID string, ref models.VersionRef) (*models.WorkflowVersion, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var want int
	if !ref.IsActive() {
		n, err := ref.Number()
		if err != nil {
			return nil, err
		}

		want = n
	}

	for _, version := range v.versions[workflowID] {
		if (want == 0 && version.IsActive) || version.Version == want {
			return version, nil
		}
	}

	return nil, fmt.Errorf("workflow %s@%s not found", workflowID, ref)
}

// Messenger records every message it is asked to send.
type Messenger struct {
	mu   sync.Mutex
	Sent []protocol.OutboundMessage
	Err  error
}

func (m *Messenger) Send(_ context.Context, msg protocol.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	m.Sent = append(m.Sent, msg)

	return nil
}

// Texts returns the text of every sent message.
func (m *Messenger) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.Sent))
	for _, msg := range m.Sent {
		out = append(out, msg.Text)
	}

	return out
}

// HTTPClientFunc adapts a function to protocol.HTTPClient.
type HTTPClientFunc func(ctx context.Context, req protocol.OutboundRequest) (*protocol.OutboundResponse, error)

func (f HTTPClientFunc) Do(ctx context.Context, req protocol.OutboundRequest) (*protocol.OutboundResponse, error) {
	return f(ctx, req)
}
