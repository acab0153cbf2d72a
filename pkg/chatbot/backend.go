package chatbot

import (
	"context"
	"strings"
)

// Backend is the knowledge-base service the widget talks to.
type Backend interface {
	// CreateSession opens a conversation scope for the knowledge base and
	// returns its opaque identifier.
	CreateSession(ctx context.Context, knowledgeBaseID string) (string, error)
	// GetAnswer asks a question inside a session. sessionID may be empty
	// when session creation failed.
	GetAnswer(ctx context.Context, sessionID, question string) (Answer, error)
}

// Answer is the decoded payload of an answer call. The backend either
// answers with an object carrying Response, or with a bare string (Raw),
// which it uses to signal quota exhaustion.
type Answer struct {
	Response string `json:"response,omitempty"`
	Raw      string `json:"-"`
}

func (a Answer) outcome() Outcome {
	if a.Response != "" {
		return OutcomeAnswered
	}
	if strings.TrimSpace(a.Raw) == QuotaSentinel {
		return OutcomeQuotaExceeded
	}
	return OutcomeUnavailable
}
