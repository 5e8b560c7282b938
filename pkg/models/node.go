package models

import (
	"encoding/json"
	"fmt"
)

// NodeType is the closed set of node kinds the engine can interpret.
type NodeType string

const (
	NodeTypeMessage     NodeType = "message"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeSessionOp   NodeType = "session_op"
	NodeTypeHTTPRequest NodeType = "http_request"
	NodeTypeWaitInput   NodeType = "wait_input"
	NodeTypeSubWorkflow NodeType = "sub_workflow"
	NodeTypeTerminal    NodeType = "terminal"
)

// NodeTypes lists every supported node type.
func NodeTypes() []NodeType {
	return []NodeType{
		NodeTypeMessage,
		NodeTypeCondition,
		NodeTypeSessionOp,
		NodeTypeHTTPRequest,
		NodeTypeWaitInput,
		NodeTypeSubWorkflow,
		NodeTypeTerminal,
	}
}

// NodeConfig is the type-specific configuration of a node. Exactly one
// implementation exists per NodeType.
type NodeConfig interface {
	NodeType() NodeType
}

// Branch tags carried by condition connections.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Connection is a directed edge between two nodes.
type Connection struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"           validate:"required"`
	Target string `json:"target"           validate:"required"`
	Branch string `json:"branch,omitempty"`
}

// Node is one step of a workflow version.
type Node struct {
	ID     string     `json:"id"              validate:"required"`
	Type   NodeType   `json:"type"            validate:"required"`
	Label  string     `json:"label,omitempty"`
	Config NodeConfig `json:"config"          validate:"required"`
}

type rawNode struct {
	ID     string          `json:"id"`
	Type   NodeType        `json:"type"`
	Label  string          `json:"label,omitempty"`
	Config json.RawMessage `json:"config"`
}

// UnmarshalJSON decodes the config into the variant selected by the node type.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	config, err := NewNodeConfig(raw.Type)
	if err != nil {
		return fmt.Errorf("node %q: %w", raw.ID, err)
	}

	if len(raw.Config) > 0 && string(raw.Config) != "null" {
		if err := json.Unmarshal(raw.Config, config); err != nil {
			return fmt.Errorf("node %q: invalid %s config: %w", raw.ID, raw.Type, err)
		}
	}

	n.ID = raw.ID
	n.Type = raw.Type
	n.Label = raw.Label
	n.Config = config

	return nil
}

// NewNodeConfig returns an empty config variant for the given type.
//
//nolint:ireturn // the variant is selected at runtime
func NewNodeConfig(nodeType NodeType) (NodeConfig, error) {
	switch nodeType {
	case NodeTypeMessage:
		return &MessageConfig{}, nil
	case NodeTypeCondition:
		return &ConditionConfig{}, nil
	case NodeTypeSessionOp:
		return &SessionOpConfig{}, nil
	case NodeTypeHTTPRequest:
		return &HTTPRequestConfig{}, nil
	case NodeTypeWaitInput:
		return &WaitInputConfig{}, nil
	case NodeTypeSubWorkflow:
		return &SubWorkflowConfig{}, nil
	case NodeTypeTerminal:
		return &TerminalConfig{}, nil
	default:
		return nil, fmt.Errorf("unknown node type %q", nodeType)
	}
}

// Button is an interactive reply option attached to a message.
type Button struct {
	Text         string `json:"text"          validate:"required"`
	CallbackData string `json:"callback_data" validate:"required"`
}

// MessageConfig renders and sends a message to the session.
type MessageConfig struct {
	Text      string   `json:"text"                 validate:"required"`
	Buttons   []Button `json:"buttons,omitempty"    validate:"dive"`
	ParseMode string   `json:"parse_mode,omitempty" validate:"omitempty,oneof=plain markdown html"`
}

func (*MessageConfig) NodeType() NodeType { return NodeTypeMessage }

// ConditionConfig evaluates an expression and selects a branch. Targets may be
// given here or through connections tagged "true"/"false".
type ConditionConfig struct {
	Expression  ConditionGroup `json:"expression"`
	TrueNodeID  string         `json:"true_node_id,omitempty"`
	FalseNodeID string         `json:"false_node_id,omitempty"`
}

func (*ConditionConfig) NodeType() NodeType { return NodeTypeCondition }

// SessionOperation enumerates session_op operations.
type SessionOperation string

const (
	SessionOpGet       SessionOperation = "get"
	SessionOpSet       SessionOperation = "set"
	SessionOpDelete    SessionOperation = "delete"
	SessionOpIncrement SessionOperation = "increment"
	SessionOpDecrement SessionOperation = "decrement"
	SessionOpMerge     SessionOperation = "merge"
	SessionOpClear     SessionOperation = "clear"
	SessionOpExists    SessionOperation = "exists"
	SessionOpCustom    SessionOperation = "custom"
)

// SessionOpConfig mutates or inspects session variables.
type SessionOpConfig struct {
	Operation      SessionOperation `json:"operation"                 validate:"required,oneof=get set delete increment decrement merge clear exists custom"`
	Key            string           `json:"key,omitempty"             validate:"required_unless=Operation clear"`
	Value          any              `json:"value,omitempty"`
	Amount         *float64         `json:"amount,omitempty"`
	DeepMerge      bool             `json:"deep_merge,omitempty"`
	ResultVariable string           `json:"result_variable,omitempty"`
	Expression     string           `json:"expression,omitempty"      validate:"required_if=Operation custom"`
	Condition      *ConditionGroup  `json:"condition,omitempty"`
}

func (*SessionOpConfig) NodeType() NodeType { return NodeTypeSessionOp }

// HTTPRequestConfig describes an outbound HTTP call and how its response
// populates session variables.
type HTTPRequestConfig struct {
	URL             string            `json:"url"                        validate:"required"`
	Method          string            `json:"method"                     validate:"required,oneof=GET POST PUT PATCH DELETE HEAD"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	TimeoutSeconds  int               `json:"timeout_seconds,omitempty"  validate:"gte=0,lte=300"`
	ResponseMapping map[string]string `json:"response_mapping,omitempty"`
	StatusVariable  string            `json:"status_variable,omitempty"`
}

func (*HTTPRequestConfig) NodeType() NodeType { return NodeTypeHTTPRequest }

// WaitInputConfig suspends the execution until an external event arrives.
type WaitInputConfig struct {
	WaitType       WaitType `json:"wait_type"                 validate:"required,oneof=message callback any"`
	Variable       string   `json:"variable,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty" validate:"gte=0"`
	TimeoutNodeID  string   `json:"timeout_node_id,omitempty"`
}

func (*WaitInputConfig) NodeType() NodeType { return NodeTypeWaitInput }

// SubWorkflowConfig invokes another workflow with explicit variable mappings.
// InputMapping maps child variable to parent variable reference; OutputMapping
// maps parent variable to child variable.
type SubWorkflowConfig struct {
	WorkflowID    string            `json:"workflow_id"              validate:"required"`
	Version       VersionRef        `json:"version,omitempty"`
	InputMapping  map[string]string `json:"input_mapping,omitempty"`
	OutputMapping map[string]string `json:"output_mapping,omitempty"`
}

func (*SubWorkflowConfig) NodeType() NodeType { return NodeTypeSubWorkflow }

// TerminalOutcome is the status a terminal node ends the execution with.
type TerminalOutcome string

const (
	TerminalCompleted TerminalOutcome = "completed"
	TerminalFailed    TerminalOutcome = "failed"
)

// TerminalConfig ends the execution.
type TerminalConfig struct {
	Outcome TerminalOutcome `json:"outcome,omitempty" validate:"omitempty,oneof=completed failed"`
	Error   string          `json:"error,omitempty"`
}

func (*TerminalConfig) NodeType() NodeType { return NodeTypeTerminal }
