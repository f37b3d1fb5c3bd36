package voice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/aura/backend/internal/service/conversation"
	voicesvc "github.com/zhouzirui/aura/backend/internal/service/voice"
	"github.com/zhouzirui/aura/backend/pkg/utils"
)

const (
	readWait     = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Handler 语音命令 WebSocket 处理器
type Handler struct {
	ctl      *conversation.Controller
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New 创建语音处理器
func New(ctl *conversation.Controller, hub *Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ctl:    ctl,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/voice/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string            `json:"type"`
	Text    string            `json:"text"`
	Results []voicesvc.Result `json:"results"`
	Message string            `json:"message"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, ok := h.ctl.Store().Get(sessionID); !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{sessionID: sessionID, conn: conn}
	h.hub.register(c)
	defer h.hub.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	actions := &sessionActions{
		ctx:       context.WithoutCancel(ctx),
		ctl:       h.ctl,
		client:    c,
		sessionID: sessionID,
		logger:    h.logger,
	}
	// 连接关闭后等待已触发的流程结束。
	defer actions.wg.Wait()
	recognizer := voicesvc.NewRecognizer(actions)

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	go h.pingLoop(ctx, c)

	h.logger.Info("voice client connected", "session_id", sessionID)
	h.sendState(c, recognizer.State(), recognizer.Input())

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("voice websocket read failed", "session_id", sessionID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		h.handleMessage(c, recognizer, &msg)
	}
}

func (h *Handler) handleMessage(c *client, rec *voicesvc.Recognizer, msg *inboundMessage) {
	switch msg.Type {
	case "start":
		out := rec.Start(msg.Text)
		h.sendState(c, out.State, out.Input)
	case "result":
		out := rec.HandleResults(msg.Results)
		if out.Command != voicesvc.CommandNone {
			h.send(c, "command", map[string]string{"command": string(out.Command), "ack": out.Ack})
		} else {
			h.send(c, "input", map[string]string{"text": out.Input})
		}
		h.sendState(c, out.State, out.Input)
	case "input":
		rec.SetInput(msg.Text)
	case "error":
		h.logger.Warn("speech recognition error", "session_id", c.sessionID, "error", msg.Message)
		out := rec.Fail(errors.New(msg.Message))
		h.sendState(c, out.State, out.Input)
	case "end", "stop":
		out := rec.End()
		h.sendState(c, out.State, out.Input)
	default:
		h.send(c, "error", map[string]string{"message": "unsupported message type: " + msg.Type})
	}
}

func (h *Handler) sendState(c *client, state voicesvc.State, input string) {
	h.send(c, "state", map[string]string{"state": state.String(), "input": input})
}

func (h *Handler) send(c *client, msgType string, data interface{}) {
	if err := c.send(msgType, data); err != nil {
		h.logger.Debug("voice websocket write failed", "session_id", c.sessionID, "type", msgType, "error", err)
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// sessionActions 把语音命令转成会话流程。流程在后台运行，错误推送给客户端。
type sessionActions struct {
	ctx       context.Context
	ctl       *conversation.Controller
	client    *client
	sessionID string
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func (a *sessionActions) Analyze() {
	a.spawn("analyze", func(ctx context.Context) error {
		return a.ctl.AnalyzeConflicts(ctx, a.sessionID, nil)
	})
}

func (a *sessionActions) Visualize() {
	a.spawn("visualize", func(ctx context.Context) error {
		return a.ctl.Visualize(ctx, a.sessionID, nil)
	})
}

func (a *sessionActions) UpdateMemory() {
	a.spawn("update memory", func(ctx context.Context) error {
		return a.ctl.UpdateMemory(ctx, a.sessionID, nil)
	})
}

func (a *sessionActions) ToggleVoice() {
	enabled, err := a.ctl.ToggleVoice(a.ctx)
	if err != nil {
		a.fail("toggle voice", err)
		return
	}
	_ = a.client.send("voice", map[string]bool{"enabled": enabled})
}

func (a *sessionActions) Submit(text string) {
	a.spawn("send", func(ctx context.Context) error {
		return a.ctl.Send(ctx, a.sessionID, text, conversation.ModeChat, nil)
	})
}

func (a *sessionActions) spawn(name string, run func(context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := run(a.ctx); err != nil {
			a.fail(name, err)
		}
	}()
}

func (a *sessionActions) fail(name string, err error) {
	a.logger.Warn("voice command failed", "session_id", a.sessionID, "command", name, "error", err)
	_ = a.client.send("error", map[string]string{"command": name, "message": err.Error()})
}
