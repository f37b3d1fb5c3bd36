package conversation

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/zhouzirui/aura/backend/internal/service/ai"
)

var (
	// ErrAnalysisLocked 表示对话还不足以做分析。
	ErrAnalysisLocked = errors.New("analysis requires at least 4 chat messages")
	// ErrSessionBusy 表示该会话已有回复在生成。
	ErrSessionBusy = errors.New("a response is already streaming for this session")
	// ErrMemoryBusy 表示该会话的记忆正在更新。
	ErrMemoryBusy = errors.New("session memory update already in progress")

	ErrEmptyMessage = errors.New("message is empty")
	ErrInvalidMode  = errors.New("invalid message mode")
)

const (
	msgSafety       = "I am unable to respond to that request as it may have violated the safety policies. Please try rephrasing your message to be less sensitive, or approach the topic from a different angle."
	msgInvalidKey   = "There's an issue with the application's configuration (invalid API key). Please ensure the application is set up correctly by the developer."
	msgMissingKey   = "The application is not configured correctly; the API key is missing. Please ensure the application is set up correctly by the developer."
	msgTimeout      = "The request took too long to complete. This could be a temporary network issue or a problem with the service. Please try again in a moment."
	msgNetwork      = "It seems there's a problem with your network connection. Please check that you are connected to the internet and try again."
	msgGateway      = "I encountered an issue communicating with my core systems. This might be a temporary hiccup. Please try your request again in a moment."
	msgUnknownError = "I apologize, but I encountered an unexpected issue. It might be a temporary problem with the service. Please try your request again in a moment. If the problem continues, starting a new session may resolve it."
)

// FriendlyError 把任意错误映射为展示给用户的文字。operation 只用于日志。
func (c *Controller) FriendlyError(err error, operation string) string {
	c.logger.Error("aura encountered an error", "operation", operation, "error", err)
	return FriendlyError(err)
}

// FriendlyError 是错误到用户文字的唯一映射。
func FriendlyError(err error) string {
	if err == nil {
		return msgUnknownError
	}
	msg := err.Error()

	switch {
	case errors.Is(err, ai.ErrBlocked) || strings.Contains(msg, "SAFETY"):
		return msgSafety
	case strings.Contains(msg, "API key not valid"):
		return msgInvalidKey
	case errors.Is(err, ai.ErrMissingCredentials) || strings.Contains(msg, "API_KEY"):
		return msgMissingKey
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timed out"):
		return msgTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return msgTimeout
		}
		return msgNetwork
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") || strings.Contains(lower, "network is unreachable") {
		return msgNetwork
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return msgGateway
	}
	return msgUnknownError
}
