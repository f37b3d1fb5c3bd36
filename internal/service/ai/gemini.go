package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/zhouzirui/aura/backend/internal/config"
	"github.com/zhouzirui/aura/backend/internal/model/chat"
	"github.com/zhouzirui/aura/backend/internal/model/speech"
)

const (
	geminiSampleRate = 24000
	geminiChannels   = 1
)

// GeminiGateway talks to the Gemini API through the genai SDK. Streams are
// adapted into eino stream readers so the rest of the service only sees one
// stream type.
type GeminiGateway struct {
	client *genai.Client
	cfg    config.GeminiConfig
	logger *slog.Logger
}

// NewGeminiGateway creates the genai client.
func NewGeminiGateway(ctx context.Context, cfg config.GeminiConfig, logger *slog.Logger) (*GeminiGateway, error) {
	if !cfg.Enabled() {
		return nil, ErrMissingCredentials
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGateway{client: client, cfg: cfg, logger: logger}, nil
}

// Open implements Gateway.
func (g *GeminiGateway) Open(_ context.Context, turns []chat.Turn) (Conversation, error) {
	normalized := normalizeTurns(turns)
	contents := make([]*genai.Content, 0, len(normalized)+2)
	contents = append(contents,
		genai.NewContentFromText(seedInstruction(), genai.RoleUser),
		genai.NewContentFromText(SeedAcknowledgement, genai.RoleModel),
	)
	for _, turn := range normalized {
		contents = append(contents, genai.NewContentFromText(turn.Text, geminiRole(turn.Role)))
	}
	return &geminiConversation{gateway: g, contents: contents}, nil
}

type geminiConversation struct {
	gateway  *GeminiGateway
	contents []*genai.Content
}

// Send implements Conversation.
func (c *geminiConversation) Send(ctx context.Context, text string, format ResponseFormat) (*schema.StreamReader[*schema.Message], error) {
	genCfg := chatGenerationConfig()
	if format == FormatVisualization {
		genCfg.ResponseMIMEType = "application/json"
		genCfg.ResponseSchema = visualizationSchema()
	}

	contents := append(append([]*genai.Content(nil), c.contents...), genai.NewContentFromText(text, genai.RoleUser))
	c.contents = contents

	seq := c.gateway.client.Models.GenerateContentStream(ctx, c.gateway.cfg.Model, contents, genCfg)

	reader, writer := schema.Pipe[*schema.Message](8)
	go func() {
		defer writer.Close()
		for resp, err := range seq {
			if err != nil {
				writer.Send(nil, err)
				return
			}
			if blockErr := blocked(resp); blockErr != nil {
				writer.Send(nil, blockErr)
				return
			}
			chunk := resp.Text()
			if chunk == "" {
				continue
			}
			if closed := writer.Send(schema.AssistantMessage(chunk, nil), nil); closed {
				return
			}
		}
	}()
	return reader, nil
}

// UpdateMemory implements Gateway.
func (g *GeminiGateway) UpdateMemory(ctx context.Context, transcript []chat.Turn, prior *chat.SessionMemory) (*chat.SessionMemory, error) {
	contents := []*genai.Content{genai.NewContentFromText(MemoryPrompt(transcript, prior), genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   memorySchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate memory: %w", err)
	}
	if err := blocked(resp); err != nil {
		return nil, err
	}

	memory, err := ParseMemory(resp.Text())
	if err != nil {
		g.logger.Warn("memory reply did not parse", "error", err)
		return nil, err
	}
	return memory, nil
}

// Synthesize implements Gateway. The reply is raw 24 kHz mono 16-bit PCM.
func (g *GeminiGateway) Synthesize(ctx context.Context, text string) (*speech.TTSResponse, error) {
	contents := []*genai.Content{genai.NewContentFromText(speechPrefix+text, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.TTSModel, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.cfg.Voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate speech: %w", err)
	}

	audio := inlineAudio(resp)
	if len(audio) == 0 {
		return nil, ErrNoAudio
	}

	samples := len(audio) / 2 / geminiChannels
	return &speech.TTSResponse{
		AudioData:  audio,
		Format:     speech.FormatPCM16,
		SampleRate: geminiSampleRate,
		Channels:   geminiChannels,
		Duration:   int64(samples) * 1000 / geminiSampleRate,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func chatGenerationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.7),
		TopP:        genai.Ptr[float32](0.9),
		TopK:        genai.Ptr[float32](40),
	}
}

func geminiRole(role chat.Role) genai.Role {
	if role == chat.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// blocked reports a SAFETY refusal on the prompt or the first candidate.
func blocked(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return nil
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return fmt.Errorf("%w: prompt blocked (%s)", ErrBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return fmt.Errorf("%w: candidate blocked", ErrBlocked)
	}
	return nil
}

func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data
		}
	}
	return nil
}

func stringList(description string) *genai.Schema {
	return &genai.Schema{
		Type:  genai.TypeArray,
		Items: &genai.Schema{Type: genai.TypeString, Description: description},
	}
}

func memorySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"userProfile":            stringList("A key trait, belief, or behavior pattern of the user."),
			"partnerProfile":         stringList("A key trait, belief, or behavior pattern of the user's partner."),
			"relationshipStrengths":  stringList("A core strength or positive dynamic in the relationship."),
			"relationshipChallenges": stringList("A recurring challenge, conflict pattern, or area for growth."),
			"keyEvents":              stringList("A significant event, memory, or turning point that has been discussed."),
		},
		Required: []string{"userProfile", "partnerProfile", "relationshipStrengths", "relationshipChallenges", "keyEvents"},
	}
}

func visualizationSchema() *genai.Schema {
	point := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":        {Type: genai.TypeString},
			"score":       {Type: genai.TypeNumber, Minimum: genai.Ptr(0.0), Maximum: genai.Ptr(10.0)},
			"description": {Type: genai.TypeString},
		},
		Required: []string{"name", "score", "description"},
	}
	detail := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"analysis": {Type: genai.TypeString},
			"examples": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"scenario": {Type: genai.TypeString},
						"detail":   {Type: genai.TypeString},
					},
					Required: []string{"scenario", "detail"},
				},
			},
		},
		Required: []string{"analysis", "examples"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"strengths":  {Type: genai.TypeArray, Items: point},
			"weaknesses": {Type: genai.TypeArray, Items: point},
			"archetypes": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"person":               {Type: genai.TypeString},
						"archetype":            {Type: genai.TypeString},
						"contextDescription":   {Type: genai.TypeString},
						"generalManifestation": {Type: genai.TypeString},
					},
					Required: []string{"person", "archetype", "contextDescription", "generalManifestation"},
				},
			},
			"archetypeInteraction": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"communicationPatterns": detail,
					"conflictStyles":        detail,
				},
				Required: []string{"communicationPatterns", "conflictStyles"},
			},
		},
		Required: []string{"strengths", "weaknesses", "archetypes", "archetypeInteraction"},
	}
}
