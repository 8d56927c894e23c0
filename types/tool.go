package types

import "encoding/json"

// ToolSpec describes a function-call tool a caller offers the model.
// JSONSchema is opaque to the gateway core except for its serialized size
// (enforced by the policy engine).
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	JSONSchema  json.RawMessage `json:"json_schema"`
	Version     string          `json:"version,omitempty"`
}
