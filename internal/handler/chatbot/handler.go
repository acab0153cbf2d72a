package chatbot

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/kbchat/internal/logging"
	chatService "github.com/zhouzirui/kbchat/internal/service/chat"
	kbService "github.com/zhouzirui/kbchat/internal/service/knowledgebase"
	"github.com/zhouzirui/kbchat/pkg/utils"
)

// Handler 知识库问答接口的HTTP处理器
type Handler struct {
	kbSvc  *kbService.Service
	logger zerolog.Logger
}

// New 创建问答处理器
func New(kbSvc *kbService.Service) *Handler {
	return &Handler{
		kbSvc:  kbSvc,
		logger: logging.Component("chatbot-handler"),
	}
}

// RegisterRoutes 注册问答相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chatbot", func(r chi.Router) {
		r.Post("/session", h.handleCreateSession)
		r.Post("/answer", h.handleAnswer)
	})
}

// handleCreateSession 创建会话，响应体为会话ID的JSON字符串
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		KnowledgeBaseID string `json:"knowledgeBaseId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.KnowledgeBaseID == "" {
		utils.RespondError(w, http.StatusBadRequest, "knowledgeBaseId is required")
		return
	}

	sessionID, err := h.kbSvc.CreateSession(r.Context(), payload.KnowledgeBaseID)
	switch {
	case errors.Is(err, kbService.ErrKnowledgeBaseNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Str("kb", payload.KnowledgeBaseID).Msg("create session failed")
		utils.RespondError(w, http.StatusInternalServerError, "unable to create session")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionID)
}

// handleAnswer 回答问题；配额用尽时返回纯文本哨兵
func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Question  string `json:"question"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	reply, err := h.kbSvc.Answer(r.Context(), payload.SessionID, payload.Question)
	switch {
	case errors.Is(err, kbService.ErrQuestionRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, chatService.ErrSessionNotFound), errors.Is(err, kbService.ErrKnowledgeBaseNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Str("session", payload.SessionID).Msg("answer failed")
		utils.RespondError(w, http.StatusBadGateway, "unable to answer right now")
		return
	}

	if reply.QuotaExceeded {
		utils.RespondText(w, http.StatusOK, reply.Text)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"response": reply.Text})
}
