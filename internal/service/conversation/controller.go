package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
	"github.com/zhouzirui/aura/backend/internal/service/ai"
	"github.com/zhouzirui/aura/backend/internal/service/session"
	"github.com/zhouzirui/aura/backend/internal/service/stream"
)

// EventType 是推送给客户端的事件类型。
type EventType string

const (
	EventStart         EventType = "start"
	EventDelta         EventType = "delta"
	EventMessage       EventType = "message"
	EventVisualization EventType = "visualization"
	EventError         EventType = "error"
)

// Event 描述一次流程中的可见变化。
type Event struct {
	Type          EventType               `json:"-"`
	SessionID     string                  `json:"sessionId"`
	Index         int                     `json:"index"`
	Content       string                  `json:"content,omitempty"`
	Delta         string                  `json:"delta,omitempty"`
	Visualization *chat.VisualizationData `json:"visualization,omitempty"`
}

// Observer 接收流程事件，可以为 nil。
type Observer func(Event)

func (o Observer) emit(e Event) {
	if o != nil {
		o(e)
	}
}

// Preferences 读写语音开关。
type Preferences interface {
	VoiceEnabled(ctx context.Context) (bool, error)
	SetVoiceEnabled(ctx context.Context, enabled bool) error
}

// Narrator 朗读模型回复。
type Narrator interface {
	Speak(ctx context.Context, sessionID, text string) bool
}

// Controller 编排会话流程：创建、发送、分析、可视化、记忆与删除。
type Controller struct {
	store      *session.Store
	prefs      Preferences
	gateway    ai.Gateway
	reconciler *stream.Reconciler
	narrator   Narrator
	logger     *slog.Logger

	mu        sync.Mutex
	streaming map[string]bool
	updating  map[string]bool
	notice    string

	narrations sync.WaitGroup
}

// NewController 创建控制器。narrator 可以为 nil。
func NewController(store *session.Store, prefs Preferences, gateway ai.Gateway, narrator Narrator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if gateway == nil {
		gateway = ai.Unconfigured{}
	}
	return &Controller{
		store:      store,
		prefs:      prefs,
		gateway:    gateway,
		reconciler: stream.NewReconciler(store, logger),
		narrator:   narrator,
		logger:     logger,
		streaming:  make(map[string]bool),
		updating:   make(map[string]bool),
	}
}

// Store 返回底层会话存储。
func (c *Controller) Store() *session.Store {
	return c.store
}

// Notice 返回启动时的提示，没有则为空。
func (c *Controller) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

// DismissNotice 清除启动提示。
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notice = ""
}

// Streaming 报告 id 是否有回复在生成。
func (c *Controller) Streaming(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming[id]
}

// Wait 等待后台朗读结束。
func (c *Controller) Wait() {
	c.narrations.Wait()
}

func (c *Controller) acquire(set map[string]bool, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set[id] {
		return false
	}
	set[id] = true
	return true
}

func (c *Controller) release(set map[string]bool, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(set, id)
}

func (c *Controller) narrate(ctx context.Context, sessionID, text string) {
	if c.narrator == nil || text == "" {
		return
	}
	c.narrations.Add(1)
	go func() {
		defer c.narrations.Done()
		c.narrator.Speak(ctx, sessionID, text)
	}()
}

// ToggleVoice 切换语音输出并返回新值。
func (c *Controller) ToggleVoice(ctx context.Context) (bool, error) {
	enabled := c.VoiceEnabled(ctx)
	if err := c.prefs.SetVoiceEnabled(ctx, !enabled); err != nil {
		return enabled, err
	}
	return !enabled, nil
}

// VoiceEnabled 返回语音输出开关，读取失败时默认开启。
func (c *Controller) VoiceEnabled(ctx context.Context) bool {
	enabled, err := c.prefs.VoiceEnabled(ctx)
	if err != nil {
		c.logger.Warn("failed to read voice preference", "error", err)
	}
	return enabled
}
