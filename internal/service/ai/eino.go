package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
	"github.com/zhouzirui/aura/backend/internal/model/speech"
)

// EinoGateway runs conversations through an eino chain of
// prompt template -> chat model. Speech is delegated to a Synthesizer.
type EinoGateway struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	synth  Synthesizer
	logger *slog.Logger
}

// NewEinoGateway compiles the chain around chatModel. synth may be nil, in
// which case Synthesize reports ErrMissingCredentials.
func NewEinoGateway(ctx context.Context, chatModel model.BaseChatModel, synth Synthesizer, logger *slog.Logger) (*EinoGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &EinoGateway{chain: runnable, synth: synth, logger: logger}, nil
}

// Open implements Gateway.
func (g *EinoGateway) Open(_ context.Context, turns []chat.Turn) (Conversation, error) {
	return &einoConversation{gateway: g, history: seedMessages(turns)}, nil
}

type einoConversation struct {
	gateway *EinoGateway
	history []*schema.Message
}

// Send implements Conversation.
func (c *einoConversation) Send(ctx context.Context, text string, format ResponseFormat) (*schema.StreamReader[*schema.Message], error) {
	if format == FormatVisualization {
		text += jsonOnlySuffix
	}

	stream, err := c.gateway.chain.Stream(ctx, map[string]any{
		"history": c.history,
		"query":   text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stream chat chain output: %w", err)
	}

	c.history = append(c.history, schema.UserMessage(text))
	return stream, nil
}

// UpdateMemory implements Gateway.
func (g *EinoGateway) UpdateMemory(ctx context.Context, transcript []chat.Turn, prior *chat.SessionMemory) (*chat.SessionMemory, error) {
	reply, err := g.chain.Invoke(ctx, map[string]any{
		"history": []*schema.Message{},
		"query":   MemoryPrompt(transcript, prior) + jsonOnlySuffix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run memory chain: %w", err)
	}

	memory, err := ParseMemory(reply.Content)
	if err != nil {
		g.logger.Warn("memory reply did not parse", "error", err, "length", len(reply.Content))
		return nil, err
	}
	return memory, nil
}

// Synthesize implements Gateway.
func (g *EinoGateway) Synthesize(ctx context.Context, text string) (*speech.TTSResponse, error) {
	if g.synth == nil {
		return nil, ErrMissingCredentials
	}
	return g.synth.Synthesize(ctx, speech.TTSRequest{Text: text})
}

// seedMessages prepends the persona exchange to the prior turns.
func seedMessages(turns []chat.Turn) []*schema.Message {
	normalized := normalizeTurns(turns)
	out := make([]*schema.Message, 0, len(normalized)+2)
	out = append(out,
		schema.UserMessage(seedInstruction()),
		schema.AssistantMessage(SeedAcknowledgement, nil),
	)
	for _, turn := range normalized {
		switch turn.Role {
		case chat.RoleUser:
			out = append(out, schema.UserMessage(turn.Text))
		case chat.RoleModel:
			out = append(out, schema.AssistantMessage(turn.Text, nil))
		}
	}
	return out
}

func seedInstruction() string {
	return "[SYSTEM_INSTRUCTION_START]\n" + SystemInstruction + "\n[SYSTEM_INSTRUCTION_END]"
}
