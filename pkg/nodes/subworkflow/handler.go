// Package subworkflow implements the sub_workflow node.
package subworkflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Handler runs another workflow as a nested frame of the current execution.
type Handler struct {
	versions protocol.VersionSource
}

// NewHandler creates a sub_workflow handler.
func NewHandler(versions protocol.VersionSource) (*Handler, error) {
	if versions == nil {
		return nil, errors.New("sub_workflow handler requires a version source")
	}

	return &Handler{versions: versions}, nil
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeSubWorkflow
}

func (h *Handler) Execute(ctx context.Context, node *models.Node, sc protocol.StepContext) (protocol.Result, error) {
	config, ok := node.Config.(*models.SubWorkflowConfig)
	if !ok {
		return protocol.Result{}, fmt.Errorf("unexpected config %T", node.Config)
	}

	depth := sc.Depth() + 1
	if depth > models.MaxSubWorkflowDepth {
		return protocol.Result{}, &models.DepthExceededError{
			NodeID:   node.ID,
			Depth:    depth,
			MaxDepth: models.MaxSubWorkflowDepth,
		}
	}

	ref := config.Version
	if ref == "" {
		ref = models.ActiveVersion
	}

	version, err := h.versions.GetVersion(ctx, config.WorkflowID, ref)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("sub-workflow %s@%s unreachable: %w", config.WorkflowID, ref, err)
	}

	vars := sc.Variables()
	seed := make(map[string]any, len(config.InputMapping))

	for child, parent := range config.InputMapping {
		if value, found := vars.Lookup(parent); found {
			seed[child] = value
		}
	}

	input := map[string]any{
		"workflow_id": version.WorkflowID,
		"version":     version.Version,
		"inputs":      seed,
	}

	outcome, err := sc.Subflows().RunSubflow(ctx, sc, version, seed)
	if err != nil {
		return protocol.Result{Input: input}, err
	}

	result, err := h.finish(config, sc, outcome)
	result.Input = input

	return result, err
}

func (h *Handler) Resume(
	ctx context.Context,
	node *models.Node,
	sc protocol.StepContext,
	wait models.WaitState,
	event models.ResumeEvent,
) (protocol.Result, error) {
	config, ok := node.Config.(*models.SubWorkflowConfig)
	if !ok {
		return protocol.Result{}, fmt.Errorf("unexpected config %T", node.Config)
	}

	frame, err := models.NestedFrameFromPayload(wait.Payload)
	if err != nil {
		return protocol.Result{}, err
	}

	outcome, err := sc.Subflows().ResumeSubflow(ctx, sc, frame, event)
	if err != nil {
		return protocol.Result{}, err
	}

	result, err := h.finish(config, sc, outcome)
	result.Input = map[string]any{
		"workflow_id": frame.WorkflowID,
		"version":     frame.Version,
		"event":       string(event.Type),
	}

	return result, err
}

func (h *Handler) finish(config *models.SubWorkflowConfig, sc protocol.StepContext, outcome protocol.SubflowOutcome) (protocol.Result, error) {
	switch outcome.Status {
	case models.ExecutionStatusCompleted:
		vars := sc.Variables()
		outputs := make(map[string]any, len(config.OutputMapping))

		for parent, child := range config.OutputMapping {
			if value, found := outcome.Variables[strings.TrimPrefix(child, "session.")]; found {
				vars.Set(parent, value)
				outputs[parent] = value
			}
		}

		result := protocol.Next("")
		result.Output = map[string]any{"outputs": outputs}

		return result, nil
	case models.ExecutionStatusWaiting:
		if outcome.Frame == nil {
			return protocol.Result{}, errors.New("sub-workflow suspended without a frame")
		}

		payload, err := outcome.Frame.ToPayload()
		if err != nil {
			return protocol.Result{}, err
		}

		result := protocol.Suspend(models.WaitState{
			Type:     outcome.Frame.Wait.Type,
			Payload:  map[string]any{models.NestedPayloadKey: payload},
			Deadline: outcome.Frame.Wait.Deadline,
		})
		result.Output = map[string]any{"suspended_at": outcome.Frame.NodeID}

		return result, nil
	default:
		err := outcome.Err
		if err == nil {
			err = fmt.Errorf("sub-workflow ended with status %s", outcome.Status)
		}

		return protocol.Result{}, fmt.Errorf("sub-workflow %s failed: %w", config.WorkflowID, err)
	}
}

// Validate checks the version reference.
func (h *Handler) Validate(node *models.Node) error {
	config, ok := node.Config.(*models.SubWorkflowConfig)
	if !ok {
		return fmt.Errorf("unexpected config %T", node.Config)
	}

	if config.Version.IsActive() {
		return nil
	}

	_, err := config.Version.Number()

	return err
}
