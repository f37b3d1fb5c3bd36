package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Kind is the persisted type tag of a history entry.
type Kind string

const (
	KindChat          Kind = "chat"
	KindMeta          Kind = "meta"
	KindVisualization Kind = "visualization"
)

// ErrUnknownKind is returned when a persisted message carries an unknown tag.
var ErrUnknownKind = errors.New("unknown message type")

// Message is one entry of a session history. The set of implementations is
// closed: ChatMessage, MetaMessage and VisualizationMessage.
type Message interface {
	Kind() Kind
	isMessage()
}

// ChatMessage is a conversational turn. Content grows while a model response
// streams in and is frozen afterwards.
type ChatMessage struct {
	Role    Role
	Content string
}

// MetaMessage is transient status text such as "Analyzing...".
type MetaMessage struct {
	Content string
}

// VisualizationMessage carries a fully parsed relationship visualization.
type VisualizationMessage struct {
	Data VisualizationData
}

func (ChatMessage) Kind() Kind          { return KindChat }
func (MetaMessage) Kind() Kind          { return KindMeta }
func (VisualizationMessage) Kind() Kind { return KindVisualization }

func (ChatMessage) isMessage()          {}
func (MetaMessage) isMessage()          {}
func (VisualizationMessage) isMessage() {}

// UserMessage builds a user chat turn.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// ModelMessage builds a model chat turn.
func ModelMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleModel, Content: content}
}

// Placeholder is the empty model message inserted before a stream starts.
func Placeholder() ChatMessage {
	return ModelMessage("")
}

// wireMessage is the flat persisted layout shared by all variants.
type wireMessage struct {
	Type    Kind               `json:"type"`
	Role    Role               `json:"role,omitempty"`
	Content *string            `json:"content,omitempty"`
	Data    *VisualizationData `json:"data,omitempty"`
}

// History is the ordered message list of a session.
type History []Message

// MarshalJSON encodes each entry with its type tag.
func (h History) MarshalJSON() ([]byte, error) {
	out := make([]wireMessage, 0, len(h))
	for i, msg := range h {
		wire, err := toWire(msg)
		if err != nil {
			return nil, fmt.Errorf("history[%d]: %w", i, err)
		}
		out = append(out, wire)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes tagged entries and rejects unknown or incomplete ones.
func (h *History) UnmarshalJSON(data []byte) error {
	var raw []wireMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	decoded := make(History, 0, len(raw))
	for i, wire := range raw {
		msg, err := fromWire(wire)
		if err != nil {
			return fmt.Errorf("history[%d]: %w", i, err)
		}
		decoded = append(decoded, msg)
	}
	*h = decoded
	return nil
}

func toWire(msg Message) (wireMessage, error) {
	switch m := msg.(type) {
	case ChatMessage:
		content := m.Content
		return wireMessage{Type: KindChat, Role: m.Role, Content: &content}, nil
	case MetaMessage:
		content := m.Content
		return wireMessage{Type: KindMeta, Content: &content}, nil
	case VisualizationMessage:
		data := m.Data
		return wireMessage{Type: KindVisualization, Data: &data}, nil
	default:
		return wireMessage{}, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
}

func fromWire(wire wireMessage) (Message, error) {
	switch wire.Type {
	case KindChat:
		if wire.Role != RoleUser && wire.Role != RoleModel {
			return nil, fmt.Errorf("invalid chat role %q", wire.Role)
		}
		if wire.Content == nil {
			return nil, errors.New("chat message without content")
		}
		return ChatMessage{Role: wire.Role, Content: *wire.Content}, nil
	case KindMeta:
		if wire.Content == nil {
			return nil, errors.New("meta message without content")
		}
		return MetaMessage{Content: *wire.Content}, nil
	case KindVisualization:
		if wire.Data == nil {
			return nil, errors.New("visualization message without data")
		}
		return VisualizationMessage{Data: *wire.Data}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, wire.Type)
	}
}

// Turn is a role/text pair handed to the model gateway.
type Turn struct {
	Role Role
	Text string
}

// Turns extracts the chat messages of a history in order. Meta and
// visualization entries are not part of the model conversation.
func (h History) Turns() []Turn {
	turns := make([]Turn, 0, len(h))
	for _, msg := range h {
		switch m := msg.(type) {
		case ChatMessage:
			turns = append(turns, Turn{Role: m.Role, Text: m.Content})
		case MetaMessage, VisualizationMessage:
		}
	}
	return turns
}

// ChatCount returns how many chat messages the history holds.
func (h History) ChatCount() int {
	count := 0
	for _, msg := range h {
		if _, ok := msg.(ChatMessage); ok {
			count++
		}
	}
	return count
}
