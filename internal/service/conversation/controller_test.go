package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
	"github.com/zhouzirui/aura/backend/internal/model/speech"
	"github.com/zhouzirui/aura/backend/internal/service/ai"
	"github.com/zhouzirui/aura/backend/internal/service/session"
	"github.com/zhouzirui/aura/backend/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const visualizationJSON = `{
  "strengths": [{"name": "Loyalty", "score": 8, "description": "Show up"}],
  "weaknesses": [{"name": "Repair", "score": 3, "description": "Slow"}],
  "archetypeInteraction": {
    "communicationPatterns": {"analysis": "Pursue-withdraw", "examples": []},
    "conflictStyles": {"analysis": "Escalation", "examples": []}
  }
}`

type fakeGateway struct {
	mu        sync.Mutex
	reply     string
	openErr   error
	streamErr error
	memory    *chat.SessionMemory
	memoryErr error

	opened  [][]chat.Turn
	prompts []string
	formats []ai.ResponseFormat
	block   chan struct{}
}

func (g *fakeGateway) Open(_ context.Context, turns []chat.Turn) (ai.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openErr != nil {
		return nil, g.openErr
	}
	g.opened = append(g.opened, turns)
	return (*fakeConversation)(g), nil
}

func (g *fakeGateway) UpdateMemory(_ context.Context, _ []chat.Turn, _ *chat.SessionMemory) (*chat.SessionMemory, error) {
	return g.memory, g.memoryErr
}

func (g *fakeGateway) Synthesize(context.Context, string) (*speech.TTSResponse, error) {
	return nil, ai.ErrMissingCredentials
}

type fakeConversation fakeGateway

func (c *fakeConversation) Send(_ context.Context, text string, format ai.ResponseFormat) (*schema.StreamReader[*schema.Message], error) {
	g := (*fakeGateway)(c)
	g.mu.Lock()
	g.prompts = append(g.prompts, text)
	g.formats = append(g.formats, format)
	reply, streamErr, block := g.reply, g.streamErr, g.block
	g.mu.Unlock()

	if streamErr == nil && block == nil {
		half := len(reply) / 2
		return schema.StreamReaderFromArray([]*schema.Message{
			schema.AssistantMessage(reply[:half], nil),
			schema.AssistantMessage(reply[half:], nil),
		}), nil
	}

	sr, sw := schema.Pipe[*schema.Message](2)
	go func() {
		defer sw.Close()
		sw.Send(schema.AssistantMessage("partial", nil), nil)
		if block != nil {
			<-block
		}
		if streamErr != nil {
			sw.Send(nil, streamErr)
		}
	}()
	return sr, nil
}

type recordingNarrator struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNarrator) Speak(_ context.Context, _ string, text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return true
}

type fixture struct {
	ctl      *Controller
	store    *session.Store
	adapter  *storage.Adapter
	kv       *storage.MemoryKV
	gateway  *fakeGateway
	narrator *recordingNarrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := storage.NewMemoryKV()
	adapter := storage.NewAdapter(kv)
	store := session.NewStore(adapter, session.WithLogger(logger))
	gw := &fakeGateway{reply: "Hello, I am Aura."}
	narrator := &recordingNarrator{}
	ctl := NewController(store, adapter, gw, narrator, logger)
	t.Cleanup(ctl.Wait)
	return &fixture{ctl: ctl, store: store, adapter: adapter, kv: kv, gateway: gw, narrator: narrator}
}

// seed 创建一个已有 n 条对话消息的会话。
func (f *fixture) seed(t *testing.T, n int) string {
	t.Helper()
	ctx := context.Background()
	created, err := f.store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.Select(created.ID))
	require.NoError(t, f.store.Mutate(ctx, created.ID, func(s chat.Session) (chat.Session, error) {
		for i := 0; i < n; i++ {
			if i%2 == 0 {
				s.History = append(s.History, chat.ModelMessage("model turn"))
			} else {
				s.History = append(s.History, chat.UserMessage("user turn"))
			}
		}
		return s, nil
	}))
	return created.ID
}

func (f *fixture) history(t *testing.T, id string) chat.History {
	t.Helper()
	s, ok := f.store.Get(id)
	require.True(t, ok)
	return s.History
}

func collect(events *[]Event) Observer {
	var mu sync.Mutex
	return func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, e)
	}
}

func TestNewSessionStreamsIntro(t *testing.T) {
	f := newFixture(t)
	var events []Event

	id, err := f.ctl.NewSession(context.Background(), collect(&events))
	require.NoError(t, err)

	active, ok := f.store.Active()
	require.True(t, ok)
	assert.Equal(t, id, active)
	assert.Equal(t, chat.History{chat.ModelMessage("Hello, I am Aura.")}, f.history(t, id))
	assert.Equal(t, []string{ai.IntroPrompt}, f.gateway.prompts)

	require.NotEmpty(t, events)
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, EventMessage, events[len(events)-1].Type)

	f.ctl.Wait()
	assert.Equal(t, []string{"Hello, I am Aura."}, f.narrator.texts)
}

func TestNewSessionFailureReplacesHistory(t *testing.T) {
	f := newFixture(t)
	f.gateway.openErr = ai.ErrMissingCredentials

	id, err := f.ctl.NewSession(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, chat.History{chat.ModelMessage(msgMissingKey)}, f.history(t, id))
	assert.Empty(t, f.narrator.texts)
}

func TestSendAppendsAndTitles(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 1)
	f.gateway.reply = "That sounds painful."

	long := "We keep fighting about chores every single weekend and I am tired"
	require.NoError(t, f.ctl.Send(context.Background(), id, long, ModeChat, nil))

	s, _ := f.store.Get(id)
	assert.Equal(t, "We keep fighting about chores every sing", s.Title)
	assert.Equal(t, chat.History{
		chat.ModelMessage("model turn"),
		chat.UserMessage(long),
		chat.ModelMessage("That sounds painful."),
	}, s.History)
	require.Len(t, f.gateway.opened, 1)
	assert.Equal(t, []chat.Turn{{Role: chat.RoleModel, Text: "model turn"}}, f.gateway.opened[0])

	// 已有标题后不再修改。
	require.NoError(t, f.ctl.Send(context.Background(), id, "Another", ModeChat, nil))
	s, _ = f.store.Get(id)
	assert.Equal(t, "We keep fighting about chores every sing", s.Title)
}

func TestSendModes(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 1)

	assert.ErrorIs(t, f.ctl.Send(context.Background(), id, "help", ModeActionPlan, nil), ErrAnalysisLocked)
	assert.ErrorIs(t, f.ctl.Send(context.Background(), id, "  ", ModeChat, nil), ErrEmptyMessage)
	assert.ErrorIs(t, f.ctl.Send(context.Background(), id, "hi", Mode("poem"), nil), ErrInvalidMode)
	assert.ErrorIs(t, f.ctl.Send(context.Background(), "missing", "hi", ModeChat, nil), session.ErrSessionNotFound)

	unlocked := f.seed(t, 4)
	require.NoError(t, f.ctl.Send(context.Background(), unlocked, "she hates me", ModeRealityCheck, nil))
	assert.Equal(t, ai.RealityCheckPrompt("she hates me"), f.gateway.prompts[len(f.gateway.prompts)-1])
	history := f.history(t, unlocked)
	assert.Equal(t, chat.UserMessage("she hates me"), history[4])
}

func TestSendErrorOverwritesPlaceholder(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 1)
	f.gateway.streamErr = errors.New("request blocked: SAFETY")
	var events []Event

	require.NoError(t, f.ctl.Send(context.Background(), id, "hi", ModeChat, collect(&events)))
	history := f.history(t, id)
	assert.Equal(t, chat.ModelMessage(msgSafety), history[2])
	assert.Equal(t, EventError, events[len(events)-1].Type)
	assert.Equal(t, msgSafety, events[len(events)-1].Content)
}

func TestSecondStreamOnSameSessionIsRejected(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 1)
	f.gateway.block = make(chan struct{})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.ctl.Send(context.Background(), id, "first", ModeChat, func(e Event) {
			if e.Type == EventDelta {
				select {
				case <-started:
				default:
					close(started)
				}
			}
		})
	}()

	<-started
	assert.True(t, f.ctl.Streaming(id))
	assert.ErrorIs(t, f.ctl.Send(context.Background(), id, "second", ModeChat, nil), ErrSessionBusy)

	close(f.gateway.block)
	require.NoError(t, <-done)
	assert.False(t, f.ctl.Streaming(id))
	assert.Equal(t, chat.ModelMessage("partial"), f.history(t, id)[2])
}

func TestAnalyzeConflicts(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.ctl.AnalyzeConflicts(context.Background(), f.seed(t, 3), nil), ErrAnalysisLocked)

	id := f.seed(t, 4)
	f.gateway.reply = "Pattern one: pursue and withdraw."
	require.NoError(t, f.ctl.AnalyzeConflicts(context.Background(), id, nil))

	history := f.history(t, id)
	require.Len(t, history, 6)
	assert.Equal(t, chat.MetaMessage{Content: metaAnalyzing}, history[4])
	assert.Equal(t, chat.ModelMessage("Pattern one: pursue and withdraw."), history[5])
	assert.Equal(t, ai.ConflictAnalysisPrompt, f.gateway.prompts[0])
}

func TestVisualize(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 4)
	f.gateway.reply = visualizationJSON
	var events []Event

	require.NoError(t, f.ctl.Visualize(context.Background(), id, collect(&events)))
	history := f.history(t, id)
	require.Len(t, history, 6)
	assert.Equal(t, chat.MetaMessage{Content: metaVisualizing}, history[4])
	vis, ok := history[5].(chat.VisualizationMessage)
	require.True(t, ok)
	assert.Equal(t, "Loyalty", vis.Data.Strengths[0].Name)
	assert.Equal(t, []ai.ResponseFormat{ai.FormatVisualization}, f.gateway.formats)
	assert.Equal(t, EventVisualization, events[len(events)-1].Type)

	f.ctl.Wait()
	assert.Empty(t, f.narrator.texts)
}

func TestVisualizeFallback(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 4)
	f.gateway.reply = "I need more context first."

	require.NoError(t, f.ctl.Visualize(context.Background(), id, nil))
	assert.Equal(t, chat.ModelMessage(visualizationFallback), f.history(t, id)[5])

	f.ctl.Wait()
	assert.Equal(t, []string{visualizationFallback}, f.narrator.texts)
}

func TestUpdateMemory(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 2)
	f.gateway.memory = &chat.SessionMemory{
		UserProfile:            []string{"Anxious attachment"},
		PartnerProfile:         []string{},
		RelationshipStrengths:  []string{},
		RelationshipChallenges: []string{},
		KeyEvents:              []string{},
	}

	require.NoError(t, f.ctl.UpdateMemory(context.Background(), id, nil))
	s, _ := f.store.Get(id)
	require.NotNil(t, s.SessionMemory)
	assert.Equal(t, []string{"Anxious attachment"}, s.SessionMemory.UserProfile)
	assert.Equal(t, chat.MetaMessage{Content: metaMemoryUpdated}, s.History[2])
}

func TestUpdateMemoryFailures(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 2)

	f.gateway.memoryErr = ai.ErrMalformedMemory
	require.NoError(t, f.ctl.UpdateMemory(context.Background(), id, nil))
	assert.Equal(t, chat.MetaMessage{Content: metaMemoryFailed}, f.history(t, id)[2])

	f.gateway.memoryErr = errors.New("dial tcp: connection refused")
	require.NoError(t, f.ctl.UpdateMemory(context.Background(), id, nil))
	assert.Equal(t, chat.ModelMessage("Error updating memory: "+msgNetwork), f.history(t, id)[3])

	s, _ := f.store.Get(id)
	assert.Nil(t, s.SessionMemory)
}

func TestDeleteSessionKeepsOneActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older := f.seed(t, 1)
	newer := f.seed(t, 1)

	active, err := f.ctl.DeleteSession(ctx, older, nil)
	require.NoError(t, err)
	assert.Equal(t, newer, active)

	active, err = f.ctl.DeleteSession(ctx, newer, nil)
	require.NoError(t, err)
	assert.NotEqual(t, newer, active)
	assert.Equal(t, 1, f.store.Len())
	current, _ := f.store.Active()
	assert.Equal(t, active, current)

	_, err = f.ctl.DeleteSession(ctx, "missing", nil)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("empty storage creates session", func(t *testing.T) {
		f := newFixture(t)
		notice, err := f.ctl.Bootstrap(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, notice)
		assert.Equal(t, 1, f.store.Len())
	})

	t.Run("restores most recent", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, 1)
		recent := f.seed(t, 1)

		notice, err := f.ctl.Bootstrap(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, notice)
		active, _ := f.store.Active()
		assert.Equal(t, recent, active)
		assert.Empty(t, f.gateway.prompts)
	})

	t.Run("corrupt storage", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.kv.Set(ctx, storage.SessionsKey, "{not json"))

		notice, err := f.ctl.Bootstrap(ctx, nil)
		require.NoError(t, err)
		assert.Contains(t, notice, restoreNotice)
		assert.Equal(t, notice, f.ctl.Notice())
		assert.Equal(t, 1, f.store.Len())
	})
}

// flakyKV 让第一次 Get 失败。
type flakyKV struct {
	*storage.MemoryKV
	failed bool
}

func (k *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if !k.failed {
		k.failed = true
		return "", false, errors.New("i/o timeout")
	}
	return k.MemoryKV.Get(ctx, key)
}

func TestBootstrapReadErrorKeepsStoredSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 1)
	f.seed(t, 1)
	recent := f.seed(t, 1)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := &flakyKV{MemoryKV: f.kv}
	adapter := storage.NewAdapter(kv)
	store := session.NewStore(adapter, session.WithLogger(logger))
	ctl := NewController(store, adapter, f.gateway, nil, logger)
	t.Cleanup(ctl.Wait)

	notice, err := ctl.Bootstrap(ctx, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "i/o timeout")
	assert.Empty(t, notice)
	assert.Equal(t, 0, store.Len())

	stored, err := adapter.LoadSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	// 重试成功后恢复原有会话。
	notice, err = ctl.Bootstrap(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, notice)
	assert.Equal(t, 3, store.Len())
	active, _ := store.Active()
	assert.Equal(t, recent, active)
}

func TestToggleVoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, f.ctl.VoiceEnabled(ctx))
	enabled, err := f.ctl.ToggleVoice(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.False(t, f.ctl.VoiceEnabled(ctx))
}

func TestFriendlyError(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"safety":      {ai.ErrBlocked, msgSafety},
		"invalid key": {errors.New("Error 400, Message: API key not valid. Please pass a valid API key."), msgInvalidKey},
		"missing key": {ai.ErrMissingCredentials, msgMissingKey},
		"deadline":    {context.DeadlineExceeded, msgTimeout},
		"network":     {errors.New("dial tcp: lookup x: no such host"), msgNetwork},
		"unknown":     {errors.New("boom"), msgUnknownError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, FriendlyError(tc.err))
		})
	}
}
