package knowledgebase

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	kbService "github.com/zhouzirui/kbchat/internal/service/knowledgebase"
	"github.com/zhouzirui/kbchat/pkg/utils"
)

// Handler 知识库目录的HTTP处理器
type Handler struct {
	kbSvc *kbService.Service
}

// New 创建知识库处理器
func New(kbSvc *kbService.Service) *Handler {
	return &Handler{kbSvc: kbSvc}
}

// RegisterRoutes 注册知识库相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/knowledgebases", h.handleList)
	r.Get("/knowledgebases/{id}/widget", h.handleWidget)
}

type summary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Heading   string `json:"heading"`
	Documents int    `json:"documents"`
}

// handleList 列出所有知识库（不含文档正文）
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	kbs := h.kbSvc.List()
	out := make([]summary, 0, len(kbs))
	for _, kb := range kbs {
		out = append(out, summary{
			ID:        kb.ID,
			Name:      kb.Name,
			Heading:   kb.Widget.Heading,
			Documents: len(kb.Documents),
		})
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

// handleWidget 返回知识库的挂件外观配置
func (h *Handler) handleWidget(w http.ResponseWriter, r *http.Request) {
	widget, err := h.kbSvc.Widget(chi.URLParam(r, "id"))
	if errors.Is(err, kbService.ErrKnowledgeBaseNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, widget)
}
