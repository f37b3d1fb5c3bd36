package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
	"github.com/zhouzirui/aura/backend/internal/service/session"
)

// Write describes one committed update of a placeholder slot.
type Write struct {
	SessionID string
	Index     int
	// Content is the full accumulated text, not the delta.
	Content string
	Delta   string
}

// Option configures a single Reconcile call.
type Option func(*options)

type options struct {
	observer func(Write)
}

// WithObserver registers fn to be called after every committed write.
func WithObserver(fn func(Write)) Option {
	return func(o *options) { o.observer = fn }
}

// Reconciler folds streamed fragments into one history slot.
type Reconciler struct {
	store  *session.Store
	logger *slog.Logger
}

// NewReconciler creates a reconciler writing through store.
func NewReconciler(store *session.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Reconcile consumes fragments until the stream ends and writes the growing
// text into history[index] of sessionID after each non-empty fragment. The
// slot always holds a prefix of the final text. A write is dropped when the
// session is gone or the slot no longer holds a chat message.
//
// The accumulated text is returned together with the upstream error, if any;
// the caller decides what the slot should show on failure.
func (r *Reconciler) Reconcile(ctx context.Context, sessionID string, index int, fragments *schema.StreamReader[*schema.Message], opts ...Option) (string, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	defer fragments.Close()

	var acc strings.Builder
	for {
		fragment, err := fragments.Recv()
		if errors.Is(err, io.EOF) {
			return acc.String(), nil
		}
		if err != nil {
			return acc.String(), err
		}
		if fragment == nil || fragment.Content == "" {
			continue
		}

		acc.WriteString(fragment.Content)
		content := acc.String()

		committed, err := r.write(ctx, sessionID, index, content)
		if err != nil {
			r.logger.Debug("dropped stream write", "session_id", sessionID, "index", index, "error", err)
			continue
		}
		if committed && o.observer != nil {
			o.observer(Write{SessionID: sessionID, Index: index, Content: content, Delta: fragment.Content})
		}
	}
}

func (r *Reconciler) write(ctx context.Context, sessionID string, index int, content string) (bool, error) {
	committed := false
	err := r.store.Mutate(ctx, sessionID, func(s chat.Session) (chat.Session, error) {
		if !replaceable(s.History, index) {
			return s, session.ErrUnchanged
		}
		slot := s.History[index].(chat.ChatMessage)
		slot.Content = content
		s.History[index] = slot
		committed = true
		return s, nil
	})
	return committed, err
}

// replaceable reports whether history[index] still holds a chat message.
func replaceable(history chat.History, index int) bool {
	if index < 0 || index >= len(history) {
		return false
	}
	switch history[index].(type) {
	case chat.ChatMessage:
		return true
	case chat.MetaMessage, chat.VisualizationMessage:
		return false
	default:
		return false
	}
}
