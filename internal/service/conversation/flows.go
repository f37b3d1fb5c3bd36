package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
	"github.com/zhouzirui/aura/backend/internal/service/ai"
	"github.com/zhouzirui/aura/backend/internal/service/session"
	"github.com/zhouzirui/aura/backend/internal/service/stream"
	"github.com/zhouzirui/aura/backend/internal/storage"
)

// Mode 决定用户消息如何包装成提示词。
type Mode string

const (
	ModeChat         Mode = "chat"
	ModeActionPlan   Mode = "actionPlan"
	ModeRealityCheck Mode = "realityCheck"
)

const (
	minAnalysisMessages = 4
	titleLength         = 40

	restoreNotice = "Could not restore your previous sessions. "

	metaAnalyzing     = "Analyzing recurring conflict patterns..."
	metaVisualizing   = "Generating relationship dynamics visualization..."
	metaUpdating      = "Updating session memory..."
	metaMemoryUpdated = "✅ Session memory updated."
	metaMemoryFailed  = "⚠️ Could not update session memory."

	visualizationFallback = "I'm sorry, I wasn't able to generate the visualization. There might not be enough conversation history, or there was an issue with the analysis. Let's talk more and we can try again."
)

// Bootstrap 加载持久化的会话。存储损坏时返回提示并新建会话；没有会话时新建；
// 否则选中最近修改的会话。其他读取错误直接返回，不写存储。
func (c *Controller) Bootstrap(ctx context.Context, obs Observer) (string, error) {
	loadErr := c.store.Load(ctx)
	if loadErr != nil && !errors.Is(loadErr, storage.ErrCorruptState) {
		// 读取失败时不能新建会话，否则首次写入会覆盖已保存的会话。
		return "", fmt.Errorf("failed to load sessions: %w", loadErr)
	}
	if loadErr == nil {
		if recent, ok := c.store.MostRecent(); ok {
			return "", c.store.Select(recent.ID)
		}
	}

	notice := ""
	if loadErr != nil {
		notice = restoreNotice + c.FriendlyError(loadErr, "session restoration")
	}
	c.mu.Lock()
	c.notice = notice
	c.mu.Unlock()

	if _, err := c.NewSession(ctx, obs); err != nil {
		return notice, err
	}
	return notice, nil
}

// NewSession 创建并选中一个会话，然后流式生成开场白。
func (c *Controller) NewSession(ctx context.Context, obs Observer) (string, error) {
	created, err := c.store.Create(ctx)
	if err != nil {
		return "", err
	}
	id := created.ID
	if err := c.store.Select(id); err != nil {
		return "", err
	}

	c.acquire(c.streaming, id)
	defer c.release(c.streaming, id)

	err = c.store.Mutate(ctx, id, func(s chat.Session) (chat.Session, error) {
		s.History = chat.History{chat.Placeholder()}
		return s, nil
	})
	if err != nil {
		return id, err
	}
	obs.emit(Event{Type: EventStart, SessionID: id, Index: 0})

	ctx = context.WithoutCancel(ctx)
	text, err := c.run(ctx, id, 0, nil, ai.IntroPrompt, ai.FormatText, obs)
	if err != nil {
		msg := c.FriendlyError(err, "session creation")
		_ = c.store.Mutate(ctx, id, func(s chat.Session) (chat.Session, error) {
			s.History = chat.History{chat.ModelMessage(msg)}
			return s, nil
		})
		obs.emit(Event{Type: EventError, SessionID: id, Index: 0, Content: msg})
		return id, nil
	}
	c.finish(ctx, id, 0, text, obs)
	return id, nil
}

// Select 切换当前会话。
func (c *Controller) Select(id string) error {
	return c.store.Select(id)
}

// Send 追加用户消息和占位回复，并把模型回复流式写入占位。
func (c *Controller) Send(ctx context.Context, id, message string, mode Mode, obs Observer) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	var prompt string
	switch mode {
	case ModeChat, "":
		prompt = message
	case ModeActionPlan:
		prompt = ai.ActionPlanPrompt(message)
	case ModeRealityCheck:
		prompt = ai.RealityCheckPrompt(message)
	default:
		return ErrInvalidMode
	}

	if mode == ModeActionPlan || mode == ModeRealityCheck {
		if err := c.checkUnlocked(id); err != nil {
			return err
		}
	}
	if !c.acquire(c.streaming, id) {
		return ErrSessionBusy
	}
	defer c.release(c.streaming, id)

	var (
		turns []chat.Turn
		index int
	)
	err := c.store.Mutate(ctx, id, func(s chat.Session) (chat.Session, error) {
		turns = s.History.Turns()
		if s.Title == chat.DefaultTitle && len(s.History) <= 1 {
			s.Title = sessionTitle(message)
		}
		s.History = append(s.History, chat.UserMessage(message), chat.Placeholder())
		index = len(s.History) - 1
		return s, nil
	})
	if err != nil {
		return err
	}
	obs.emit(Event{Type: EventStart, SessionID: id, Index: index})

	ctx = context.WithoutCancel(ctx)
	text, err := c.run(ctx, id, index, turns, prompt, ai.FormatText, obs)
	if err != nil {
		c.fail(ctx, id, index, err, "send message", obs)
		return nil
	}
	c.finish(ctx, id, index, text, obs)
	return nil
}

// AnalyzeConflicts 请求对反复出现的冲突模式进行分析。
func (c *Controller) AnalyzeConflicts(ctx context.Context, id string, obs Observer) error {
	index, turns, err := c.beginAnalysis(ctx, id, metaAnalyzing, obs)
	if err != nil {
		return err
	}
	defer c.release(c.streaming, id)

	ctx = context.WithoutCancel(ctx)
	text, err := c.run(ctx, id, index, turns, ai.ConflictAnalysisPrompt, ai.FormatText, obs)
	if err != nil {
		c.fail(ctx, id, index, err, "conflict analysis", obs)
		return nil
	}
	c.finish(ctx, id, index, text, obs)
	return nil
}

// Visualize 请求结构化的关系可视化。解析失败时写入固定的兜底文字。
func (c *Controller) Visualize(ctx context.Context, id string, obs Observer) error {
	index, turns, err := c.beginAnalysis(ctx, id, metaVisualizing, obs)
	if err != nil {
		return err
	}
	defer c.release(c.streaming, id)

	ctx = context.WithoutCancel(ctx)
	text, err := c.run(ctx, id, index, turns, ai.VisualizationPrompt, ai.FormatVisualization, obs)
	if err != nil {
		c.fail(ctx, id, index, err, "dynamics visualization", obs)
		return nil
	}

	data, err := ai.ParseVisualization(text)
	if err != nil {
		c.logger.Warn("failed to parse visualization", "session_id", id, "error", err)
		c.replaceSlot(ctx, id, index, chat.KindChat, chat.ModelMessage(visualizationFallback))
		obs.emit(Event{Type: EventMessage, SessionID: id, Index: index, Content: visualizationFallback})
		c.narrate(ctx, id, visualizationFallback)
		return nil
	}

	c.replaceSlot(ctx, id, index, chat.KindChat, chat.VisualizationMessage{Data: *data})
	obs.emit(Event{Type: EventVisualization, SessionID: id, Index: index, Visualization: data})
	return nil
}

// UpdateMemory 用完整对话整理会话记忆。同一会话同时只允许一次。
func (c *Controller) UpdateMemory(ctx context.Context, id string, obs Observer) error {
	if _, ok := c.store.Get(id); !ok {
		return session.ErrSessionNotFound
	}
	if !c.acquire(c.updating, id) {
		return ErrMemoryBusy
	}
	defer c.release(c.updating, id)

	var (
		transcript []chat.Turn
		prior      *chat.SessionMemory
		index      int
	)
	err := c.store.Mutate(ctx, id, func(s chat.Session) (chat.Session, error) {
		transcript = s.History.Turns()
		prior = s.SessionMemory
		s.History = append(s.History, chat.MetaMessage{Content: metaUpdating})
		index = len(s.History) - 1
		return s, nil
	})
	if err != nil {
		return err
	}
	obs.emit(Event{Type: EventStart, SessionID: id, Index: index, Content: metaUpdating})

	ctx = context.WithoutCancel(ctx)
	memory, err := c.gateway.UpdateMemory(ctx, transcript, prior)
	switch {
	case err == nil:
		_ = c.store.Mutate(ctx, id, func(s chat.Session) (chat.Session, error) {
			s.SessionMemory = memory
			if slotKind(s.History, index) == chat.KindMeta {
				s.History[index] = chat.MetaMessage{Content: metaMemoryUpdated}
			}
			return s, nil
		})
		obs.emit(Event{Type: EventMessage, SessionID: id, Index: index, Content: metaMemoryUpdated})

	case errors.Is(err, ai.ErrMalformedMemory):
		c.logger.Warn("memory model returned malformed output", "session_id", id, "error", err)
		c.replaceSlot(ctx, id, index, chat.KindMeta, chat.MetaMessage{Content: metaMemoryFailed})
		obs.emit(Event{Type: EventMessage, SessionID: id, Index: index, Content: metaMemoryFailed})

	default:
		msg := "Error updating memory: " + c.FriendlyError(err, "session memory update")
		c.replaceSlot(ctx, id, index, chat.KindMeta, chat.ModelMessage(msg))
		obs.emit(Event{Type: EventError, SessionID: id, Index: index, Content: msg})
	}
	return nil
}

// DeleteSession 删除会话。删除的是当前会话时选中最近的会话，一个不剩则新建。
// 返回删除后的当前会话。
func (c *Controller) DeleteSession(ctx context.Context, id string, obs Observer) (string, error) {
	wasActive, err := c.store.Delete(ctx, id)
	if err != nil {
		return "", err
	}
	if !wasActive {
		active, _ := c.store.Active()
		return active, nil
	}
	if recent, ok := c.store.MostRecent(); ok {
		return recent.ID, c.store.Select(recent.ID)
	}
	return c.NewSession(ctx, obs)
}

func (c *Controller) checkUnlocked(id string) error {
	current, ok := c.store.Get(id)
	if !ok {
		return session.ErrSessionNotFound
	}
	if current.History.ChatCount() < minAnalysisMessages {
		return ErrAnalysisLocked
	}
	return nil
}

// beginAnalysis 追加状态消息和占位，返回占位下标。成功时调用方负责释放 streaming。
func (c *Controller) beginAnalysis(ctx context.Context, id, meta string, obs Observer) (int, []chat.Turn, error) {
	if err := c.checkUnlocked(id); err != nil {
		return 0, nil, err
	}
	if !c.acquire(c.streaming, id) {
		return 0, nil, ErrSessionBusy
	}

	var (
		turns []chat.Turn
		index int
	)
	err := c.store.Mutate(ctx, id, func(s chat.Session) (chat.Session, error) {
		turns = s.History.Turns()
		s.History = append(s.History, chat.MetaMessage{Content: meta}, chat.Placeholder())
		index = len(s.History) - 1
		return s, nil
	})
	if err != nil {
		c.release(c.streaming, id)
		return 0, nil, err
	}
	obs.emit(Event{Type: EventStart, SessionID: id, Index: index})
	return index, turns, nil
}

// run 打开以 turns 为历史的对话，发送 prompt，并把回复写入 history[index]。
func (c *Controller) run(ctx context.Context, id string, index int, turns []chat.Turn, prompt string, format ai.ResponseFormat, obs Observer) (string, error) {
	conv, err := c.gateway.Open(ctx, turns)
	if err != nil {
		return "", err
	}
	fragments, err := conv.Send(ctx, prompt, format)
	if err != nil {
		return "", err
	}
	return c.reconciler.Reconcile(ctx, id, index, fragments, stream.WithObserver(func(w stream.Write) {
		obs.emit(Event{Type: EventDelta, SessionID: w.SessionID, Index: w.Index, Content: w.Content, Delta: w.Delta})
	}))
}

func (c *Controller) finish(ctx context.Context, id string, index int, text string, obs Observer) {
	obs.emit(Event{Type: EventMessage, SessionID: id, Index: index, Content: text})
	c.narrate(ctx, id, text)
}

// fail 用友好的错误文字覆盖占位。
func (c *Controller) fail(ctx context.Context, id string, index int, err error, operation string, obs Observer) {
	msg := c.FriendlyError(err, operation)
	c.replaceSlot(ctx, id, index, chat.KindChat, chat.ModelMessage(msg))
	obs.emit(Event{Type: EventError, SessionID: id, Index: index, Content: msg})
}

// replaceSlot 仅当 history[index] 仍是 want 类型时替换它。
func (c *Controller) replaceSlot(ctx context.Context, id string, index int, want chat.Kind, msg chat.Message) {
	err := c.store.Mutate(ctx, id, func(s chat.Session) (chat.Session, error) {
		if slotKind(s.History, index) != want {
			return s, session.ErrUnchanged
		}
		s.History[index] = msg
		return s, nil
	})
	if err != nil {
		c.logger.Debug("slot replacement dropped", "session_id", id, "index", index, "error", err)
	}
}

func slotKind(history chat.History, index int) chat.Kind {
	if index < 0 || index >= len(history) {
		return ""
	}
	return history[index].Kind()
}

// sessionTitle 取消息前 40 个字符。
func sessionTitle(message string) string {
	runes := []rune(message)
	if len(runes) > titleLength {
		runes = runes[:titleLength]
	}
	return strings.TrimSpace(string(runes))
}
