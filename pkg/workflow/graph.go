// Package workflow compiles workflow versions into executable graphs and
// interprets them.
package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NodeValidator checks a node config beyond its struct tags.
type NodeValidator interface {
	ValidateNode(node *models.Node) error
}

// Graph is a validated, read-only view of a workflow version.
type Graph struct {
	version  *models.WorkflowVersion
	outgoing map[string][]*models.Connection
	branches map[string]map[string]string
}

// Compile validates a version and indexes its connections. Every structural
// problem is reported as a *models.DefinitionError.
func Compile(version *models.WorkflowVersion, nodes NodeValidator) (*Graph, error) {
	if version == nil {
		return nil, &models.DefinitionError{Reason: "version is nil"}
	}

	fail := func(nodeID, format string, args ...any) error {
		return &models.DefinitionError{
			WorkflowID: version.WorkflowID,
			Version:    version.Version,
			NodeID:     nodeID,
			Reason:     fmt.Sprintf(format, args...),
		}
	}

	if len(version.Nodes) == 0 {
		return nil, fail("", "workflow has no nodes")
	}

	if version.EntryNodeID == "" {
		return nil, fail("", "no entry node")
	}

	if _, ok := version.Nodes[version.EntryNodeID]; !ok {
		return nil, fail("", "entry node %s does not exist", version.EntryNodeID)
	}

	for _, id := range sortedNodeIDs(version) {
		node := version.Nodes[id]
		if node == nil {
			return nil, fail(id, "node is empty")
		}

		if node.ID != id {
			return nil, fail(id, "node id %q does not match its key", node.ID)
		}

		if node.Config == nil {
			return nil, fail(id, "missing config")
		}

		if node.Config.NodeType() != node.Type {
			return nil, fail(id, "config of type %s on node of type %s", node.Config.NodeType(), node.Type)
		}

		if err := validate.Struct(node.Config); err != nil {
			return nil, fail(id, "invalid config: %v", err)
		}

		if nodes != nil {
			if err := nodes.ValidateNode(node); err != nil {
				return nil, fail(id, "%v", err)
			}
		}
	}

	g := &Graph{
		version:  version,
		outgoing: make(map[string][]*models.Connection),
		branches: make(map[string]map[string]string),
	}

	for _, conn := range version.Connections {
		if conn == nil {
			continue
		}

		if _, ok := version.Nodes[conn.Source]; !ok {
			return nil, fail("", "dangling connection: source %s does not exist", conn.Source)
		}

		if _, ok := version.Nodes[conn.Target]; !ok {
			return nil, fail(conn.Source, "dangling connection: target %s does not exist", conn.Target)
		}

		for _, existing := range g.outgoing[conn.Source] {
			if existing.Branch == conn.Branch {
				if conn.Branch == "" {
					return nil, fail(conn.Source, "more than one default connection")
				}

				return nil, fail(conn.Source, "more than one connection for branch %q", conn.Branch)
			}
		}

		g.outgoing[conn.Source] = append(g.outgoing[conn.Source], conn)
	}

	for _, id := range sortedNodeIDs(version) {
		node := version.Nodes[id]

		switch config := node.Config.(type) {
		case *models.ConditionConfig:
			targets := make(map[string]string, 2)

			for _, branch := range []string{models.BranchTrue, models.BranchFalse} {
				target, err := g.conditionTarget(node.ID, config, branch)
				if err != nil {
					return nil, fail(node.ID, "%v", err)
				}

				targets[branch] = target
			}

			g.branches[node.ID] = targets
		case *models.WaitInputConfig:
			if config.TimeoutNodeID != "" {
				if _, ok := version.Nodes[config.TimeoutNodeID]; !ok {
					return nil, fail(node.ID, "timeout node %s does not exist", config.TimeoutNodeID)
				}
			}
		}
	}

	return g, nil
}

func (g *Graph) conditionTarget(nodeID string, config *models.ConditionConfig, branch string) (string, error) {
	fromConfig := config.TrueNodeID
	if branch == models.BranchFalse {
		fromConfig = config.FalseNodeID
	}

	var fromEdge string

	for _, conn := range g.outgoing[nodeID] {
		if conn.Branch == branch {
			fromEdge = conn.Target
		}
	}

	switch {
	case fromConfig != "" && fromEdge != "" && fromConfig != fromEdge:
		return "", fmt.Errorf("ambiguous %s branch: %s or %s", branch, fromConfig, fromEdge)
	case fromConfig != "":
		if _, ok := g.version.Nodes[fromConfig]; !ok {
			return "", fmt.Errorf("%s branch target %s does not exist", branch, fromConfig)
		}

		return fromConfig, nil
	case fromEdge != "":
		return fromEdge, nil
	default:
		return "", fmt.Errorf("missing %s branch", branch)
	}
}

func sortedNodeIDs(version *models.WorkflowVersion) []string {
	ids := make([]string, 0, len(version.Nodes))
	for id := range version.Nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Version returns the compiled version.
func (g *Graph) Version() *models.WorkflowVersion {
	return g.version
}

// EntryNodeID returns the node a fresh run starts at.
func (g *Graph) EntryNodeID() string {
	return g.version.EntryNodeID
}

// Node returns a node by id.
func (g *Graph) Node(id string) (*models.Node, error) {
	node, ok := g.version.Nodes[id]
	if !ok {
		return nil, &models.DefinitionError{
			WorkflowID: g.version.WorkflowID,
			Version:    g.version.Version,
			NodeID:     id,
			Reason:     "node does not exist",
		}
	}

	return node, nil
}

// HasNode reports whether id names a node of the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.version.Nodes[id]
	return ok
}

// ErrNoBranch is returned when a condition result names neither branch.
var ErrNoBranch = errors.New("condition produced no branch")

// Next resolves the node that follows nodeID given a handler result. An empty
// id means the path ends there.
func (g *Graph) Next(nodeID string, result protocol.Result) (string, error) {
	if result.NextNodeID != "" {
		if !g.HasNode(result.NextNodeID) {
			return "", &models.DefinitionError{
				WorkflowID: g.version.WorkflowID,
				Version:    g.version.Version,
				NodeID:     nodeID,
				Reason:     fmt.Sprintf("jump target %s does not exist", result.NextNodeID),
			}
		}

		return result.NextNodeID, nil
	}

	if targets, ok := g.branches[nodeID]; ok {
		target, ok := targets[result.Branch]
		if !ok {
			return "", fmt.Errorf("%w: node %s returned %q", ErrNoBranch, nodeID, result.Branch)
		}

		return target, nil
	}

	var fallback string

	for _, conn := range g.outgoing[nodeID] {
		if result.Branch != "" && conn.Branch == result.Branch {
			return conn.Target, nil
		}

		if conn.Branch == "" {
			fallback = conn.Target
		}
	}

	return fallback, nil
}
