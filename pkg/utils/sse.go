package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// SendSSEEvent 发送带事件类型的SSE消息
func SendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal sse event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// SSEWriter 在第一次发送时才写响应头，之前仍可以返回普通的错误响应。
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	failed  bool
}

// NewSSEWriter 返回 nil 表示底层连接不支持流式输出。
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	return &SSEWriter{w: w, flusher: flusher}
}

// Started 报告是否已经发送过事件。
func (s *SSEWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Send 发送一个事件。客户端断开后的写入被忽略。
func (s *SSEWriter) Send(event string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return
	}
	if !s.started {
		SetupSSEHeaders(s.w)
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if err := SendSSEEvent(s.w, s.flusher, event, data); err != nil {
		s.failed = true
		slog.Debug("sse write failed", "event", event, "error", err)
	}
}
