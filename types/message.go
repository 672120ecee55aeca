package types

import "github.com/pithecene-io/workbench/codec"

// Namespace is the root namespace for every registered workbench type.
const Namespace = "workbench"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a chat message produced or consumed by a model.
type Message struct {
	Role    string         `json:"role"`
	Content string         `json:"content"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// IsSerializable implements codec.Serializable.
func (m *Message) IsSerializable() bool { return true }

// TypeID implements codec.Serializable.
func (m *Message) TypeID() []string { return []string{Namespace, "types", "Message"} }

// Secrets implements codec.Serializable.
func (m *Message) Secrets() map[string]string { return nil }

// Attributes implements codec.Serializable.
func (m *Message) Attributes() map[string]any { return nil }

// FieldDefaults implements codec.Defaulter.
func (m *Message) FieldDefaults() map[string]any {
	return map[string]any{"role": RoleAssistant}
}

// String returns the message content.
func (m *Message) String() string {
	return m.Content
}

// Register adds the types in this package to r.
func Register(r *codec.Registry) error {
	return r.Register(func() codec.Serializable { return &Message{} })
}
