package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/kbchat/internal/model/chat"
)

var (
	ErrKnowledgeBaseRequired = errors.New("knowledge base id is required")
	ErrSessionNotFound       = errors.New("session not found")
)

// Service encapsulates session and transcript management on top of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires the service to a repository; nil falls back to memory.
func NewService(repo Repository) *Service {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions an anonymous session bound to a knowledge base.
func (s *Service) CreateSession(ctx context.Context, knowledgeBaseID string) (chat.Session, error) {
	if knowledgeBaseID == "" {
		return chat.Session{}, ErrKnowledgeBaseRequired
	}

	session := chat.Session{
		ID:              uuid.NewString(),
		KnowledgeBaseID: knowledgeBaseID,
		CreatedAt:       s.now(),
	}
	if err := s.repo.InsertSession(ctx, session); err != nil {
		return chat.Session{}, err
	}
	return session, nil
}

// SaveMessage appends a message to the session history.
func (s *Service) SaveMessage(ctx context.Context, message chat.Message) error {
	if message.SessionID == "" {
		return ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now()
	}
	return s.repo.AppendMessage(ctx, message)
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	if sessionID == "" {
		return chat.Session{}, ErrSessionNotFound
	}
	return s.repo.GetSession(ctx, sessionID)
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	return s.repo.ListMessages(ctx, sessionID)
}

// CountAnswers reports how many assistant replies a session has received.
func (s *Service) CountAnswers(ctx context.Context, sessionID string) (int, error) {
	messages, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, msg := range messages {
		if msg.Sender == chat.SenderAssistant {
			count++
		}
	}
	return count, nil
}

// Close releases the underlying repository.
func (s *Service) Close() error {
	return s.repo.Close()
}
