package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
	"github.com/zhouzirui/aura/backend/internal/model/speech"
)

var (
	// ErrMissingCredentials is returned when no model backend is configured.
	ErrMissingCredentials = errors.New("API_KEY environment variable not set")
	// ErrMalformedMemory is returned when the memory model reply is not a valid memory object.
	ErrMalformedMemory = errors.New("malformed session memory response")
	// ErrBlocked is returned when the provider refuses a prompt or reply on SAFETY grounds.
	ErrBlocked = errors.New("response blocked due to SAFETY")
	// ErrNoAudio is returned when synthesis yields no audio.
	ErrNoAudio = errors.New("no audio data received")
)

// ResponseFormat selects how the model should shape its reply.
type ResponseFormat int

const (
	// FormatText is free-form markdown text.
	FormatText ResponseFormat = iota
	// FormatVisualization is a JSON document matching chat.VisualizationData.
	FormatVisualization
)

// Conversation is a model conversation seeded with the counselor persona and
// prior turns.
type Conversation interface {
	// Send streams the reply to text. The returned reader must be closed by the caller.
	Send(ctx context.Context, text string, format ResponseFormat) (*schema.StreamReader[*schema.Message], error)
}

// Gateway is the only path to the generative model.
type Gateway interface {
	Open(ctx context.Context, turns []chat.Turn) (Conversation, error)
	UpdateMemory(ctx context.Context, transcript []chat.Turn, prior *chat.SessionMemory) (*chat.SessionMemory, error)
	Synthesize(ctx context.Context, text string) (*speech.TTSResponse, error)
}

// Synthesizer turns text into audio. The Volcengine client implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speech.TTSRequest) (*speech.TTSResponse, error)
}

// Unconfigured is the gateway used when no credentials are present. Every call
// fails with ErrMissingCredentials so the error surfaces in the conversation.
type Unconfigured struct{}

// Open implements Gateway.
func (Unconfigured) Open(context.Context, []chat.Turn) (Conversation, error) {
	return nil, ErrMissingCredentials
}

// UpdateMemory implements Gateway.
func (Unconfigured) UpdateMemory(context.Context, []chat.Turn, *chat.SessionMemory) (*chat.SessionMemory, error) {
	return nil, ErrMissingCredentials
}

// Synthesize implements Gateway.
func (Unconfigured) Synthesize(context.Context, string) (*speech.TTSResponse, error) {
	return nil, ErrMissingCredentials
}

// normalizeTurns drops empty turns and merges consecutive turns of the same
// role. Failed placeholders and back-to-back analysis replies would otherwise
// break the strict user/model alternation some providers expect.
func normalizeTurns(turns []chat.Turn) []chat.Turn {
	out := make([]chat.Turn, 0, len(turns))
	for _, turn := range turns {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == turn.Role {
			out[n-1].Text += "\n\n" + text
			continue
		}
		out = append(out, chat.Turn{Role: turn.Role, Text: text})
	}
	return out
}
