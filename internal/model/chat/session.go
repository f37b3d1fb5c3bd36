package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultTitle is the placeholder title of a session without user input yet.
const DefaultTitle = "New Session"

// Session is one persisted conversation thread.
type Session struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	History       History        `json:"history"`
	SessionMemory *SessionMemory `json:"sessionMemory"`
	LastModified  int64          `json:"lastModified"`
}

// Clone returns a copy that shares no mutable state with s.
func (s Session) Clone() Session {
	out := s
	out.History = append(History(nil), s.History...)
	if out.History == nil {
		out.History = History{}
	}
	for i, msg := range out.History {
		if vis, ok := msg.(VisualizationMessage); ok {
			out.History[i] = VisualizationMessage{Data: vis.Data.Clone()}
		}
	}
	if s.SessionMemory != nil {
		memory := s.SessionMemory.Clone()
		out.SessionMemory = &memory
	}
	return out
}

// Validate checks the invariants a persisted session must satisfy.
func (s Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is empty")
	}
	if s.SessionMemory != nil {
		if err := s.SessionMemory.Validate(); err != nil {
			return fmt.Errorf("session %s memory: %w", s.ID, err)
		}
	}
	return nil
}

// SessionMemory is the five-category summary of the relationship discussed.
type SessionMemory struct {
	UserProfile            []string `json:"userProfile"`
	PartnerProfile         []string `json:"partnerProfile"`
	RelationshipStrengths  []string `json:"relationshipStrengths"`
	RelationshipChallenges []string `json:"relationshipChallenges"`
	KeyEvents              []string `json:"keyEvents"`
}

// ErrPartialMemory marks a memory object missing one of its five lists.
var ErrPartialMemory = errors.New("session memory is incomplete")

// UnmarshalJSON only accepts objects that carry all five lists.
func (m *SessionMemory) UnmarshalJSON(data []byte) error {
	var wire struct {
		UserProfile            *[]string `json:"userProfile"`
		PartnerProfile         *[]string `json:"partnerProfile"`
		RelationshipStrengths  *[]string `json:"relationshipStrengths"`
		RelationshipChallenges *[]string `json:"relationshipChallenges"`
		KeyEvents              *[]string `json:"keyEvents"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.UserProfile == nil || wire.PartnerProfile == nil || wire.RelationshipStrengths == nil ||
		wire.RelationshipChallenges == nil || wire.KeyEvents == nil {
		return ErrPartialMemory
	}

	*m = SessionMemory{
		UserProfile:            *wire.UserProfile,
		PartnerProfile:         *wire.PartnerProfile,
		RelationshipStrengths:  *wire.RelationshipStrengths,
		RelationshipChallenges: *wire.RelationshipChallenges,
		KeyEvents:              *wire.KeyEvents,
	}
	return nil
}

// MarshalJSON always emits the five lists, empty ones as [].
func (m SessionMemory) MarshalJSON() ([]byte, error) {
	type plain SessionMemory
	normalized := plain(m.Clone())
	return json.Marshal(normalized)
}

// Validate reports whether the memory satisfies the five-list shape.
func (m SessionMemory) Validate() error {
	if m.UserProfile == nil || m.PartnerProfile == nil || m.RelationshipStrengths == nil ||
		m.RelationshipChallenges == nil || m.KeyEvents == nil {
		return ErrPartialMemory
	}
	return nil
}

// Clone deep-copies the memory, turning nil lists into empty ones.
func (m SessionMemory) Clone() SessionMemory {
	return SessionMemory{
		UserProfile:            cloneSlice(m.UserProfile),
		PartnerProfile:         cloneSlice(m.PartnerProfile),
		RelationshipStrengths:  cloneSlice(m.RelationshipStrengths),
		RelationshipChallenges: cloneSlice(m.RelationshipChallenges),
		KeyEvents:              cloneSlice(m.KeyEvents),
	}
}
