package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
)

const (
	// SessionsKey holds the whole session mapping as one JSON object.
	SessionsKey = "aura-sessions"
	// VoiceEnabledKey holds the voice output preference.
	VoiceEnabledKey = "aura-tts-enabled"
)

// Adapter persists the session mapping and the voice preference.
type Adapter struct {
	kv KV
}

// NewAdapter wraps kv.
func NewAdapter(kv KV) *Adapter {
	return &Adapter{kv: kv}
}

// LoadSessions returns the persisted mapping, or an empty one when nothing is
// stored. A blob that does not decode into valid sessions is deleted and
// ErrCorruptState is returned.
func (a *Adapter) LoadSessions(ctx context.Context) (map[string]chat.Session, error) {
	raw, ok, err := a.kv.Get(ctx, SessionsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	if !ok {
		return map[string]chat.Session{}, nil
	}

	sessions, decodeErr := decodeSessions(raw)
	if decodeErr == nil {
		return sessions, nil
	}

	if err := a.kv.Delete(ctx, SessionsKey); err != nil {
		return nil, errors.Join(fmt.Errorf("%w: %v", ErrCorruptState, decodeErr), err)
	}
	return nil, fmt.Errorf("%w: %v", ErrCorruptState, decodeErr)
}

func decodeSessions(raw string) (map[string]chat.Session, error) {
	var sessions map[string]chat.Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, err
	}
	if sessions == nil {
		return map[string]chat.Session{}, nil
	}
	for key, s := range sessions {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if key != s.ID {
			return nil, fmt.Errorf("session key %q does not match id %q", key, s.ID)
		}
		if s.History == nil {
			s.History = chat.History{}
			sessions[key] = s
		}
	}
	return sessions, nil
}

// SaveSessions replaces the stored mapping. An empty mapping removes the key
// so that the next load bootstraps a new session.
func (a *Adapter) SaveSessions(ctx context.Context, sessions map[string]chat.Session) error {
	if len(sessions) == 0 {
		if err := a.kv.Delete(ctx, SessionsKey); err != nil {
			return fmt.Errorf("failed to clear sessions: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}
	if err := a.kv.Set(ctx, SessionsKey, string(data)); err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	return nil
}

// ClearSessions removes every persisted session.
func (a *Adapter) ClearSessions(ctx context.Context) error {
	return a.kv.Delete(ctx, SessionsKey)
}

// VoiceEnabled returns the voice output preference, true when unset or unreadable.
func (a *Adapter) VoiceEnabled(ctx context.Context) (bool, error) {
	raw, ok, err := a.kv.Get(ctx, VoiceEnabledKey)
	if err != nil {
		return true, fmt.Errorf("failed to read voice preference: %w", err)
	}
	if !ok {
		return true, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return true, nil
	}
	return enabled, nil
}

// SetVoiceEnabled stores the voice output preference.
func (a *Adapter) SetVoiceEnabled(ctx context.Context, enabled bool) error {
	if err := a.kv.Set(ctx, VoiceEnabledKey, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("failed to write voice preference: %w", err)
	}
	return nil
}

// Close closes the underlying KV.
func (a *Adapter) Close() error {
	return a.kv.Close()
}
