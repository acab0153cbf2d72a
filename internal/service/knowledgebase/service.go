// Package knowledgebase answers widget questions against a knowledge base,
// enforcing the per-session answer quota.
package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zhouzirui/kbchat/internal/logging"
	"github.com/zhouzirui/kbchat/internal/model/chat"
	"github.com/zhouzirui/kbchat/internal/model/knowledgebase"
	"github.com/zhouzirui/kbchat/internal/service/ai"
	chatservice "github.com/zhouzirui/kbchat/internal/service/chat"
	"github.com/zhouzirui/kbchat/pkg/chatbot"
)

var (
	ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")
	ErrQuestionRequired      = errors.New("question is required")
)

// Reply is the outcome of one answer request.
type Reply struct {
	Text          string
	QuotaExceeded bool
}

// Service ties the catalogue, the session store and the responder together.
type Service struct {
	kbs       knowledgebase.Store
	sessions  *chatservice.Service
	responder ai.Responder
	quota     int
	logger    zerolog.Logger

	// 每个会话一把锁，配额检查到消息落库之间不允许并发
	sessionLocks sync.Map
}

// NewService builds the orchestrator. quota is the number of answers a
// session may receive before the quota sentinel is returned.
func NewService(kbs knowledgebase.Store, sessions *chatservice.Service, responder ai.Responder, quota int) *Service {
	return &Service{
		kbs:       kbs,
		sessions:  sessions,
		responder: responder,
		quota:     quota,
		logger:    logging.Component("knowledgebase"),
	}
}

// List returns the configured knowledge bases.
func (s *Service) List() []knowledgebase.KnowledgeBase {
	return s.kbs.List()
}

// Widget returns the presentation settings of a knowledge base.
func (s *Service) Widget(knowledgeBaseID string) (chatbot.Customize, error) {
	kb, ok := s.kbs.FindByID(knowledgeBaseID)
	if !ok {
		return chatbot.Customize{}, ErrKnowledgeBaseNotFound
	}
	return kb.Widget, nil
}

// CreateSession opens a session for an existing knowledge base.
func (s *Service) CreateSession(ctx context.Context, knowledgeBaseID string) (string, error) {
	if knowledgeBaseID == "" {
		return "", chatservice.ErrKnowledgeBaseRequired
	}
	if _, ok := s.kbs.FindByID(knowledgeBaseID); !ok {
		return "", ErrKnowledgeBaseNotFound
	}

	session, err := s.sessions.CreateSession(ctx, knowledgeBaseID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	s.logger.Info().Str("session", session.ID).Str("kb", knowledgeBaseID).Msg("session created")
	return session.ID, nil
}

// Answer answers a question inside a session. Once the session has used up
// its quota the reply carries the sentinel text and QuotaExceeded.
func (s *Service) Answer(ctx context.Context, sessionID, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, ErrQuestionRequired
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}

	kb, ok := s.kbs.FindByID(session.KnowledgeBaseID)
	if !ok {
		return Reply{}, ErrKnowledgeBaseNotFound
	}

	unlock := s.lockSession(session.ID)
	defer unlock()

	answered, err := s.sessions.CountAnswers(ctx, session.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("count answers: %w", err)
	}
	if answered >= s.quota {
		s.logger.Info().Str("session", session.ID).Int("quota", s.quota).Msg("session quota exhausted")
		return Reply{Text: chatbot.QuotaSentinel, QuotaExceeded: true}, nil
	}

	transcript, err := s.sessions.LoadTranscript(ctx, session.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("load transcript: %w", err)
	}

	answer, err := s.responder.Answer(ctx, kb, transcript, question)
	if err != nil {
		return Reply{}, fmt.Errorf("generate answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = ai.NoMatchAnswer
	}

	if err := s.sessions.SaveMessage(ctx, chat.Message{
		SessionID: session.ID,
		Sender:    chat.SenderUser,
		Content:   question,
	}); err != nil {
		return Reply{}, fmt.Errorf("persist question: %w", err)
	}
	if err := s.sessions.SaveMessage(ctx, chat.Message{
		SessionID: session.ID,
		Sender:    chat.SenderAssistant,
		Content:   answer,
	}); err != nil {
		return Reply{}, fmt.Errorf("persist answer: %w", err)
	}

	s.logger.Debug().
		Str("session", session.ID).
		Str("kb", kb.ID).
		Str("model", s.responder.Model()).
		Int("length", len(answer)).
		Msg("question answered")
	return Reply{Text: answer}, nil
}

func (s *Service) lockSession(sessionID string) func() {
	v, _ := s.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Backend exposes the service as a chatbot.Backend for widgets hosted in
// the same process (the websocket bridge).
func (s *Service) Backend() chatbot.Backend {
	return backend{svc: s}
}

type backend struct {
	svc *Service
}

func (b backend) CreateSession(ctx context.Context, knowledgeBaseID string) (string, error) {
	return b.svc.CreateSession(ctx, knowledgeBaseID)
}

func (b backend) GetAnswer(ctx context.Context, sessionID, question string) (chatbot.Answer, error) {
	reply, err := b.svc.Answer(ctx, sessionID, question)
	if err != nil {
		return chatbot.Answer{}, err
	}
	if reply.QuotaExceeded {
		return chatbot.Answer{Raw: reply.Text}, nil
	}
	return chatbot.Answer{Response: reply.Text}, nil
}
