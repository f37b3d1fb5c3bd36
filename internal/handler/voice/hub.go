package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/aura/backend/internal/service/narration"
)

const writeWait = 10 * time.Second

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// client 是一条 WebSocket 连接，写操作串行化。
type client struct {
	sessionID string
	conn      *websocket.Conn
	mu        sync.Mutex
}

func (c *client) send(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Hub 按会话跟踪语音连接，并作为朗读输出把音频推送给它们。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	logger  *slog.Logger
}

var _ narration.Output = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[string]map[*client]struct{}), logger: logger}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.sessionID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.sessionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.sessionID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.sessionID)
	}
}

// Connections 返回 sessionID 的连接数。
func (h *Hub) Connections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Deliver 把音频推送给会话的所有连接。没有连接时只记录日志。
func (h *Hub) Deliver(_ context.Context, clip narration.Clip) error {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[clip.SessionID]))
	for c := range h.clients[clip.SessionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		h.logger.Debug("no voice client for narration", "session_id", clip.SessionID, "bytes", len(clip.Data))
		return nil
	}

	payload := map[string]any{
		"mimeType":   clip.MIMEType,
		"audioData":  base64.StdEncoding.EncodeToString(clip.Data),
		"durationMs": clip.Duration.Milliseconds(),
	}
	var errs []error
	for _, c := range targets {
		if err := c.send("audio", payload); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(targets) {
		return errors.Join(errs...)
	}
	return nil
}
