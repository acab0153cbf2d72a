package chat

import (
	"context"
	"sync"

	"github.com/zhouzirui/kbchat/internal/model/chat"
)

// Repository persists sessions and their transcripts.
type Repository interface {
	InsertSession(ctx context.Context, session chat.Session) error
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	AppendMessage(ctx context.Context, message chat.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
	Close() error
}

// MemoryRepository keeps everything in process memory; data is lost on restart.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
}

// NewMemoryRepository bootstraps an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
	}
}

func (r *MemoryRepository) InsertSession(_ context.Context, session chat.Session) error {
	r.mu.Lock()
	r.sessions[session.ID] = session
	r.messages[session.ID] = make([]chat.Message, 0, 16)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (r *MemoryRepository) AppendMessage(_ context.Context, message chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[message.SessionID]; !ok {
		return ErrSessionNotFound
	}
	r.messages[message.SessionID] = append(r.messages[message.SessionID], message)
	return nil
}

func (r *MemoryRepository) ListMessages(_ context.Context, sessionID string) ([]chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	messages, ok := r.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (r *MemoryRepository) Close() error { return nil }
