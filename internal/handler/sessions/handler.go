package sessions

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
	"github.com/zhouzirui/aura/backend/internal/service/conversation"
	"github.com/zhouzirui/aura/backend/internal/service/session"
	"github.com/zhouzirui/aura/backend/pkg/utils"
)

// Handler 会话相关的HTTP处理器
type Handler struct {
	ctl    *conversation.Controller
	logger *slog.Logger
}

// New 创建会话处理器
func New(ctl *conversation.Controller, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ctl: ctl, logger: logger}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/bootstrap", h.handleBootstrap)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleDelete)
			r.Put("/select", h.handleSelect)
			r.Post("/messages", h.handleSend)
			r.Post("/analyze", h.handleAnalyze)
			r.Post("/visualize", h.handleVisualize)
			r.Get("/memory", h.handleGetMemory)
			r.Post("/memory", h.handleUpdateMemory)
		})
	})
	r.Get("/preferences/voice", h.handleVoice)
	r.Post("/preferences/voice/toggle", h.handleToggleVoice)
}

type summary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	LastModified int64  `json:"lastModified"`
	Active       bool   `json:"active"`
	Streaming    bool   `json:"streaming"`
}

type detail struct {
	chat.Session
	Active          bool `json:"active"`
	Streaming       bool `json:"streaming"`
	AnalysisEnabled bool `json:"analysisEnabled"`
}

func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	active, _ := h.ctl.Store().Active()
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"activeSessionId": active,
		"notice":          h.ctl.Notice(),
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	active, _ := h.ctl.Store().Active()
	all := h.ctl.Store().All()
	out := make([]summary, 0, len(all))
	for _, s := range all {
		out = append(out, summary{
			ID:           s.ID,
			Title:        s.Title,
			LastModified: s.LastModified,
			Active:       s.ID == active,
			Streaming:    h.ctl.Streaming(s.ID),
		})
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := h.ctl.Store().Get(id)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, session.ErrSessionNotFound.Error())
		return
	}
	active, _ := h.ctl.Store().Active()
	utils.RespondJSON(w, http.StatusOK, detail{
		Session:         s,
		Active:          s.ID == active,
		Streaming:       h.ctl.Streaming(s.ID),
		AnalysisEnabled: s.History.ChatCount() >= 4,
	})
}

// handleCreate 创建会话，开场白以 SSE 推送
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	h.ctl.DismissNotice()
	h.stream(w, r, func(obs conversation.Observer) error {
		_, err := h.ctl.NewSession(r.Context(), obs)
		return err
	})
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.ctl.Select(id); err != nil {
		h.respondFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	active, err := h.ctl.DeleteSession(r.Context(), id, nil)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"activeSessionId": active})
}

// handleSend 发送消息，回复以 SSE 推送
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string            `json:"message"`
		Mode    conversation.Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Mode == "" {
		payload.Mode = conversation.ModeChat
	}

	id := chi.URLParam(r, "id")
	h.stream(w, r, func(obs conversation.Observer) error {
		return h.ctl.Send(r.Context(), id, payload.Message, payload.Mode, obs)
	})
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.stream(w, r, func(obs conversation.Observer) error {
		return h.ctl.AnalyzeConflicts(r.Context(), id, obs)
	})
}

func (h *Handler) handleVisualize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.stream(w, r, func(obs conversation.Observer) error {
		return h.ctl.Visualize(r.Context(), id, obs)
	})
}

func (h *Handler) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ctl.Store().Get(chi.URLParam(r, "id"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, session.ErrSessionNotFound.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessionMemory": s.SessionMemory})
}

func (h *Handler) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.stream(w, r, func(obs conversation.Observer) error {
		return h.ctl.UpdateMemory(r.Context(), id, obs)
	})
}

func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"enabled": h.ctl.VoiceEnabled(r.Context())})
}

func (h *Handler) handleToggleVoice(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.ctl.ToggleVoice(r.Context())
	if err != nil {
		h.logger.Error("failed to toggle voice", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to store voice preference")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

// stream 运行一个流程并把事件转换为 SSE。流程开始前的错误按普通 JSON 错误返回。
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, run func(conversation.Observer) error) {
	sse := utils.NewSSEWriter(w)
	if sse == nil {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	err := run(func(e conversation.Event) {
		sse.Send(string(e.Type), e)
	})
	if err != nil && !sse.Started() {
		h.respondFlowError(w, err)
		return
	}
	if err != nil {
		sse.Send(string(conversation.EventError), map[string]string{"error": err.Error()})
	}
	sse.Send("end", map[string]string{})
}

func (h *Handler) respondFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, conversation.ErrEmptyMessage), errors.Is(err, conversation.ErrInvalidMode):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrAnalysisLocked),
		errors.Is(err, conversation.ErrSessionBusy),
		errors.Is(err, conversation.ErrMemoryBusy):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
