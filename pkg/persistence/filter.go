package persistence

import (
	"slices"
	"strings"

	"github.com/dukex/loyalflow/pkg/models"
)

// Matches applies the filters to one execution in memory.
func (o ListExecutionsOptions) Matches(e *models.Execution) bool {
	switch {
	case o.WorkflowID != "" && e.WorkflowID != o.WorkflowID:
		return false
	case len(o.Statuses) > 0 && !slices.Contains(o.Statuses, e.Status):
		return false
	case o.UserID != "" && e.UserID != o.UserID:
		return false
	case o.SessionID != "" && e.SessionID != o.SessionID:
		return false
	case o.From != nil && e.StartedAt.Before(*o.From):
		return false
	case o.To != nil && e.StartedAt.After(*o.To):
		return false
	case o.WaitDeadlineBefore != nil && (e.WaitDeadline == nil || !e.WaitDeadline.Before(*o.WaitDeadlineBefore)):
		return false
	}

	if o.Search == "" {
		return true
	}

	needle := strings.ToLower(o.Search)
	for _, field := range []string{e.ID, e.SessionID, e.UserID, e.ChatID, e.CurrentNodeID, e.Error} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}

	return false
}
