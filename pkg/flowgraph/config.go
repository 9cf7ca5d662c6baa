package flowgraph

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tenauth/flow-idm/pkg/condition"
)

// Branch is one prioritized arm of a decision node. Branches are evaluated
// in ascending priority order; the first whose condition holds wins.
type Branch struct {
	ID        string         `json:"id"`
	Condition condition.Expr `json:"condition"`
	Priority  int            `json:"priority"`
}

// DecisionNodeConfig configures a decision node.
type DecisionNodeConfig struct {
	Branches      []Branch `json:"branches"`
	DefaultBranch string   `json:"defaultBranch"`
}

// Case is one arm of a switch node, matched by literal value.
type Case struct {
	ID     string `json:"id"`
	Values []any  `json:"values"`
}

// SwitchNodeConfig configures a switch node. SwitchKey is a dot path into
// the runtime context; cases match in declaration order.
type SwitchNodeConfig struct {
	SwitchKey   string `json:"switchKey"`
	Cases       []Case `json:"cases"`
	DefaultCase string `json:"defaultCase"`
}

// GotoNodeConfig configures a goto node.
type GotoNodeConfig struct {
	TargetNodeID string `json:"targetNodeId"`
}

// JSON schemas for the config blobs of structurally demanding node types.
// Other node types carry free-form config interpreted by their collaborator.
const (
	decisionConfigSchema = `{
		"type": "object",
		"required": ["branches", "defaultBranch"],
		"properties": {
			"branches": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["id", "condition", "priority"],
					"properties": {
						"id": {"type": "string", "minLength": 1},
						"condition": {"type": "object"},
						"priority": {"type": "integer"}
					}
				}
			},
			"defaultBranch": {"type": "string", "minLength": 1}
		}
	}`

	switchConfigSchema = `{
		"type": "object",
		"required": ["switchKey", "cases", "defaultCase"],
		"properties": {
			"switchKey": {"type": "string", "minLength": 1},
			"cases": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["id", "values"],
					"properties": {
						"id": {"type": "string", "minLength": 1},
						"values": {"type": "array", "minItems": 1}
					}
				}
			},
			"defaultCase": {"type": "string", "minLength": 1}
		}
	}`

	gotoConfigSchema = `{
		"type": "object",
		"required": ["targetNodeId"],
		"properties": {
			"targetNodeId": {"type": "string", "minLength": 1}
		}
	}`
)

var configSchemas = map[NodeType]*gojsonschema.Schema{}

func init() {
	for nodeType, raw := range map[NodeType]string{
		NodeDecision: decisionConfigSchema,
		NodeSwitch:   switchConfigSchema,
		NodeGoto:     gotoConfigSchema,
	} {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("flowgraph: invalid config schema for %s: %v", nodeType, err))
		}
		configSchemas[nodeType] = schema
	}
}

// validateNodeConfig checks a node's config blob against the schema for its
// canonical type, if one is registered.
func validateNodeConfig(nodeType NodeType, config map[string]any) error {
	schema, ok := configSchemas[nodeType.Canonical()]
	if !ok {
		return nil
	}
	if config == nil {
		config = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("invalid %s config: %s", nodeType, result.Errors()[0].String())
	}
	return nil
}

// decodeConfig round-trips a config blob through JSON into a typed struct.
func decodeConfig(config map[string]any, out any) error {
	data, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
