// Package types provides the canonical request/response/tool/usage shapes
// shared by the router and every provider adapter. This package has ZERO
// dependencies on other llmgateway packages to avoid circular imports.
package types

import (
	"encoding/json"
	"fmt"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is the normalized shape every provider adapter must produce,
// regardless of how the provider transmits it on the wire. Arguments is
// always a decoded JSON object; adapters that receive malformed or missing
// arguments wrap the original payload as {"raw": <original>} rather than
// failing the response.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ContentPartType discriminates the two content part payloads a Message
// can carry. Exactly one of Text/ImageURL is populated per part.
type ContentPartType string

const (
	ContentPartText     ContentPartType = "text"
	ContentPartImageURL ContentPartType = "image_url"
)

// ContentPart is one element of a multi-part Message.Content sequence.
// Text and ImageURL are mutually exclusive; MarshalJSON/UnmarshalJSON
// enforce that only the field matching Type is ever serialized.
type ContentPart struct {
	Type     ContentPartType
	Text     string
	ImageURL string
}

type contentPartWire struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
}

// MarshalJSON emits only the payload matching Type.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	w := contentPartWire{Type: p.Type}
	switch p.Type {
	case ContentPartText:
		w.Text = p.Text
	case ContentPartImageURL:
		w.ImageURL = p.ImageURL
	default:
		return nil, fmt.Errorf("types: content part has unknown type %q", p.Type)
	}
	return json.Marshal(w)
}

// UnmarshalJSON rejects a part carrying both payloads.
func (p *ContentPart) UnmarshalJSON(data []byte) error {
	var w contentPartWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Text != "" && w.ImageURL != "" {
		return fmt.Errorf("types: content part %q carries both text and image_url", w.Type)
	}
	p.Type = w.Type
	p.Text = w.Text
	p.ImageURL = w.ImageURL
	return nil
}

// Message is one turn of a conversation. Content is either a plain string
// (Content) or an ordered sequence of content parts (Parts); adapters
// that need one shape derive it from the other via AsParts.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
	Name       string        `json:"name,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// AsParts returns m.Parts if set, else a single synthesized text part
// wrapping m.Content. Adapters that serialize to a part-based wire format
// (image-capable providers) should always read through this accessor
// rather than branching on which field is populated.
func (m Message) AsParts() []ContentPart {
	if len(m.Parts) > 0 {
		return m.Parts
	}
	if m.Content == "" {
		return nil
	}
	return []ContentPart{{Type: ContentPartText, Text: m.Content}}
}

// TextContent concatenates every text part, ignoring image parts. Adapters
// targeting a text-only wire shape use this instead of m.Content directly
// so multi-part messages still degrade sensibly.
func (m Message) TextContent() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == ContentPartText {
			out += p.Text
		}
	}
	return out
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message { return NewMessage(RoleSystem, content) }

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message { return NewMessage(RoleUser, content) }

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message { return NewMessage(RoleAssistant, content) }

// NewToolMessage creates a new tool result message.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: name, ToolCallID: toolCallID}
}
