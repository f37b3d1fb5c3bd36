package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
	"github.com/zhouzirui/aura/backend/internal/storage"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnchanged is returned by a Mutate updater to skip the write.
	ErrUnchanged = errors.New("session unchanged")
)

// Store owns every session in the process. All changes go through Mutate (or
// Create/Delete), which serialize on a single lock and mirror the full mapping
// to the storage adapter after each change.
type Store struct {
	mu          sync.RWMutex
	adapter     *storage.Adapter
	logger      *slog.Logger
	now         func() time.Time
	maxSessions int

	sessions  map[string]chat.Session
	active    string
	lastStamp int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for LastModified.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMaxSessions caps the number of stored sessions. Zero or less disables the cap.
func WithMaxSessions(n int) Option {
	return func(s *Store) { s.maxSessions = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty store backed by adapter.
func NewStore(adapter *storage.Adapter, opts ...Option) *Store {
	s := &Store{
		adapter:  adapter,
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[string]chat.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with what the adapter holds. On
// storage.ErrCorruptState the store is left empty.
func (s *Store) Load(ctx context.Context) error {
	loaded, err := s.adapter.LoadSessions(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]chat.Session)
	s.active = ""
	if err != nil {
		return err
	}

	for id, session := range loaded {
		s.sessions[id] = session
		if session.LastModified > s.lastStamp {
			s.lastStamp = session.LastModified
		}
	}
	return nil
}

// Create inserts a fresh untitled session. It does not select it.
func (s *Store) Create(ctx context.Context) (chat.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return chat.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session := chat.Session{
		ID:           "session_" + id.String(),
		Title:        chat.DefaultTitle,
		History:      chat.History{},
		LastModified: s.stamp(),
	}
	s.sessions[session.ID] = session
	s.evict(session.ID)
	s.persist(ctx)

	return session.Clone(), nil
}

// Select marks id as the active session.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	s.active = id
	return nil
}

// Active returns the selected session id.
func (s *Store) Active() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.active != ""
}

// Delete removes id and reports whether it was the active session. The active
// pointer is cleared in that case; picking a replacement is up to the caller.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false, ErrSessionNotFound
	}
	delete(s.sessions, id)

	wasActive := s.active == id
	if wasActive {
		s.active = ""
	}
	s.persist(ctx)
	return wasActive, nil
}

// Mutate applies fn to a copy of the latest state of session id. Returning
// ErrUnchanged from fn skips the write; any other error aborts it. A committed
// change gets a new LastModified and is mirrored to storage.
func (s *Store) Mutate(ctx context.Context, id string, fn func(chat.Session) (chat.Session, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	updated, err := fn(current.Clone())
	if errors.Is(err, ErrUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	updated.ID = id
	if updated.History == nil {
		updated.History = chat.History{}
	}
	updated.LastModified = s.stamp()
	s.sessions[id] = updated
	s.persist(ctx)
	return nil
}

// Get returns a copy of session id.
func (s *Store) Get(id string) (chat.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, false
	}
	return session.Clone(), true
}

// All returns copies of every session, most recently modified first.
func (s *Store) All() []chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastModified != out[j].LastModified {
			return out[i].LastModified > out[j].LastModified
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// MostRecent returns the session with the greatest LastModified.
func (s *Store) MostRecent() (chat.Session, bool) {
	all := s.All()
	if len(all) == 0 {
		return chat.Session{}, false
	}
	return all[0], true
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// stamp returns a strictly increasing unix-millisecond timestamp. Caller holds mu.
func (s *Store) stamp() int64 {
	ts := s.now().UnixMilli()
	if ts <= s.lastStamp {
		ts = s.lastStamp + 1
	}
	s.lastStamp = ts
	return ts
}

// evict drops the least recently modified sessions beyond the cap, never the
// active one or keep. Caller holds mu.
func (s *Store) evict(keep string) {
	if s.maxSessions <= 0 || len(s.sessions) <= s.maxSessions {
		return
	}

	candidates := make([]chat.Session, 0, len(s.sessions))
	for id, session := range s.sessions {
		if id == keep || id == s.active {
			continue
		}
		candidates = append(candidates, session)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastModified < candidates[j].LastModified
	})

	for _, victim := range candidates {
		if len(s.sessions) <= s.maxSessions {
			break
		}
		delete(s.sessions, victim.ID)
		s.logger.Info("evicted session", "session_id", victim.ID, "limit", s.maxSessions)
	}
}

// persist mirrors the mapping to storage. Failures are logged; memory stays
// authoritative and the next successful write catches storage up. Caller holds mu.
func (s *Store) persist(ctx context.Context) {
	if err := s.adapter.SaveSessions(ctx, s.sessions); err != nil {
		s.logger.Error("failed to persist sessions", "error", err)
	}
}
