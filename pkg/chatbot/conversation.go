// Package chatbot implements the state of an embeddable knowledge-base chat
// widget: the message list, the lazily created backend session and the
// per-exchange state machine that turns a question into a bot turn.
//
// Renderers (terminal, browser) own presentation only; they call Begin when
// the user submits, Run to drive the remote calls, and read Snapshot or
// Subscribe to redraw.
package chatbot

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrBusy              = errors.New("an exchange is already in flight")
	ErrEmptyQuestion     = errors.New("question is empty")
	ErrUnknownExchange   = errors.New("exchange does not belong to this conversation")
	ErrInvalidTransition = errors.New("invalid exchange transition")
	ErrUnrecognizedReply = errors.New("unrecognized answer payload")
)

// Snapshot is a consistent copy of the conversation state.
type Snapshot struct {
	Messages  []Message `json:"messages"`
	SessionID string    `json:"sessionId,omitempty"`
	Remaining int       `json:"remaining"`
	Busy      bool      `json:"busy"`
	State     string    `json:"state"`
}

// Option customizes a Conversation.
type Option func(*Conversation)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Conversation) { c.logger = logger }
}

// WithIDGenerator overrides message and exchange id generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Conversation) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// Conversation is the widget's local state. It is safe for concurrent use,
// but admits a single exchange at a time.
type Conversation struct {
	backend         Backend
	knowledgeBaseID string
	logger          zerolog.Logger
	newID           func() string

	mu           sync.Mutex
	messages     []Message
	sessionID    string
	remaining    int
	current      *Exchange
	observers    map[int]func(Snapshot)
	nextObserver int
}

// New creates a conversation for the widget described by props. The list
// starts with the welcome message.
func New(backend Backend, props Props, opts ...Option) *Conversation {
	c := &Conversation{
		backend:         backend,
		knowledgeBaseID: props.KnowledgeBaseID,
		logger:          zerolog.Nop(),
		newID:           uuid.NewString,
		remaining:       MaxMessages - props.DefaultMessageNumber,
		observers:       make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.messages = []Message{{
		ID:   c.newID(),
		Type: TypeBot,
		Text: props.Customize.Welcome(),
	}}
	return c
}

// KnowledgeBaseID returns the knowledge base the conversation talks to.
func (c *Conversation) KnowledgeBaseID() string { return c.knowledgeBaseID }

// Messages returns a copy of the message list.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMessages(c.messages)
}

// SessionID returns the backend session, empty until one was created.
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Remaining returns the display-only remaining-message counter.
func (c *Conversation) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Busy reports whether an exchange is in flight.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyLocked()
}

// Snapshot returns a consistent copy of the whole state.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change of the
// message list. The returned function removes the subscription.
func (c *Conversation) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Begin appends the user turn and a loading placeholder and returns the
// exchange to pass to Run. It fails with ErrBusy while another exchange is
// outstanding.
func (c *Conversation) Begin(question string) (*Exchange, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		return nil, ErrBusy
	}

	ex := newExchange(c.newID(), question, c.newID(), c.newID())
	c.messages = append(c.messages,
		Message{ID: ex.UserMessageID, Type: TypeUser, Text: question},
		Message{ID: ex.PlaceholderID, Type: TypeBot, IsLoading: true},
	)
	c.current = ex
	snap, observers := c.snapshotLocked(), c.observersLocked()
	c.mu.Unlock()

	notify(observers, snap)
	return ex, nil
}

// Run drives ex through session creation (when needed) and the answer call,
// then replaces its placeholder. Cancelling ctx drops the placeholder
// without adding a bot turn.
func (c *Conversation) Run(ctx context.Context, ex *Exchange) (Snapshot, error) {
	c.mu.Lock()
	if ex == nil || c.current != ex {
		c.mu.Unlock()
		return Snapshot{}, ErrUnknownExchange
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	logger := c.logger.With().Str("exchange", ex.ID).Str("knowledge_base", c.knowledgeBaseID).Logger()

	if sessionID == "" {
		if err := ex.transition(StateAwaitingSession); err != nil {
			return c.Snapshot(), err
		}
		id, err := c.backend.CreateSession(ctx, c.knowledgeBaseID)
		switch {
		case ctx.Err() != nil:
			return c.cancel(ex, ctx.Err())
		case err != nil:
			logger.Warn().Err(err).Msg("unable to create session, continuing without one")
		case id == "":
			logger.Warn().Msg("backend returned an empty session id")
		default:
			sessionID = id
			c.mu.Lock()
			c.sessionID = id
			c.mu.Unlock()
			logger.Debug().Str("session", id).Msg("session created")
		}
	}

	if err := ex.transition(StateAwaitingAnswer); err != nil {
		return c.Snapshot(), err
	}

	answer, err := c.backend.GetAnswer(ctx, sessionID, ex.Question)
	if ctx.Err() != nil {
		return c.cancel(ex, ctx.Err())
	}
	if err != nil {
		logger.Error().Err(err).Msg("answer call failed")
		return c.resolve(ex, StateFailed, OutcomeUnavailable, err,
			Message{ID: c.newID(), Type: TypeBot, Text: UnavailableText})
	}

	c.mu.Lock()
	c.remaining--
	c.mu.Unlock()

	switch answer.outcome() {
	case OutcomeAnswered:
		return c.resolve(ex, StateResolved, OutcomeAnswered, nil,
			Message{ID: c.newID(), Type: TypeBot, Text: answer.Response})
	case OutcomeQuotaExceeded:
		logger.Info().Msg("knowledge base quota exceeded")
		return c.resolve(ex, StateResolved, OutcomeQuotaExceeded, nil,
			Message{ID: c.newID(), Type: TypeBotError, Text: QuotaExceededText})
	default:
		logger.Warn().Str("raw", answer.Raw).Msg("unrecognized answer payload")
		return c.resolve(ex, StateFailed, OutcomeUnavailable, ErrUnrecognizedReply,
			Message{ID: c.newID(), Type: TypeBot, Text: UnavailableText})
	}
}

// Submit is Begin followed by Run.
func (c *Conversation) Submit(ctx context.Context, question string) (Snapshot, error) {
	ex, err := c.Begin(question)
	if err != nil {
		return c.Snapshot(), err
	}
	return c.Run(ctx, ex)
}

func (c *Conversation) resolve(ex *Exchange, to State, outcome Outcome, cause error, reply Message) (Snapshot, error) {
	if err := ex.finish(to, outcome, cause); err != nil {
		return c.Snapshot(), err
	}

	c.mu.Lock()
	c.messages = append(c.withoutLocked(ex.PlaceholderID), reply)
	snap, observers := c.snapshotLocked(), c.observersLocked()
	c.mu.Unlock()

	notify(observers, snap)
	return snap, nil
}

func (c *Conversation) cancel(ex *Exchange, cause error) (Snapshot, error) {
	if err := ex.finish(StateCanceled, OutcomeCanceled, cause); err != nil {
		return c.Snapshot(), err
	}

	c.mu.Lock()
	c.messages = c.withoutLocked(ex.PlaceholderID)
	snap, observers := c.snapshotLocked(), c.observersLocked()
	c.mu.Unlock()

	notify(observers, snap)
	return snap, cause
}

func (c *Conversation) withoutLocked(id string) []Message {
	out := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

func (c *Conversation) busyLocked() bool {
	return c.current != nil && !c.current.State().Terminal()
}

func (c *Conversation) snapshotLocked() Snapshot {
	state := StateIdle
	if c.current != nil {
		state = c.current.State()
	}
	return Snapshot{
		Messages:  cloneMessages(c.messages),
		SessionID: c.sessionID,
		Remaining: c.remaining,
		Busy:      c.busyLocked(),
		State:     state.String(),
	}
}

func (c *Conversation) observersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		out = append(out, fn)
	}
	return out
}

func notify(observers []func(Snapshot), snap Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}
