package prompts

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/aura/backend/internal/model/prompt"
	"github.com/zhouzirui/aura/backend/pkg/utils"
)

// Handler 提示词库的HTTP处理器
type Handler struct {
	prompts prompt.Store
}

// New 创建提示词库处理器
func New(prompts prompt.Store) *Handler {
	return &Handler{prompts: prompts}
}

// RegisterRoutes 注册提示词库路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/prompts", h.handleList)
	r.Get("/prompts/{id}", h.handleGet)
}

// handleList 列出提示词，可按 category 过滤
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	category := prompt.Category(r.URL.Query().Get("category"))
	switch category {
	case "", prompt.CategoryGeneral, prompt.CategorySpecialized:
	default:
		utils.RespondError(w, http.StatusBadRequest, "unknown category")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.prompts.List(category))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, ok := h.prompts.FindByID(chi.URLParam(r, "id"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "prompt not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, item)
}
