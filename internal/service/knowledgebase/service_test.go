package knowledgebase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhouzirui/kbchat/internal/model/chat"
	"github.com/zhouzirui/kbchat/internal/model/knowledgebase"
	chatservice "github.com/zhouzirui/kbchat/internal/service/chat"
	"github.com/zhouzirui/kbchat/pkg/chatbot"
)

type fakeResponder struct {
	answer  string
	err     error
	history [][]chat.Message
}

func (f *fakeResponder) Model() string { return "fake" }

func (f *fakeResponder) Answer(_ context.Context, _ knowledgebase.KnowledgeBase, history []chat.Message, _ string) (string, error) {
	f.history = append(f.history, history)
	return f.answer, f.err
}

func newTestService(quota int, responder *fakeResponder) (*Service, *chatservice.Service) {
	sessions := chatservice.NewService(chatservice.NewMemoryRepository())
	return NewService(knowledgebase.NewMemoryStore(knowledgebase.Seed()), sessions, responder, quota), sessions
}

func TestCreateSession(t *testing.T) {
	svc, sessions := newTestService(20, &fakeResponder{answer: "ok"})
	ctx := context.Background()

	id, err := svc.CreateSession(ctx, "kbchat-help")
	require.NoError(t, err)

	session, err := sessions.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "kbchat-help", session.KnowledgeBaseID)

	_, err = svc.CreateSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrKnowledgeBaseNotFound)

	_, err = svc.CreateSession(ctx, "")
	assert.ErrorIs(t, err, chatservice.ErrKnowledgeBaseRequired)
}

func TestAnswerPersistsTranscriptAndEnforcesQuota(t *testing.T) {
	responder := &fakeResponder{answer: "  Five business days.  "}
	svc, sessions := newTestService(2, responder)
	ctx := context.Background()

	id, err := svc.CreateSession(ctx, "acme-billing")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		reply, err := svc.Answer(ctx, id, "refunds?")
		require.NoError(t, err)
		assert.Equal(t, "Five business days.", reply.Text)
		assert.False(t, reply.QuotaExceeded)
	}

	reply, err := svc.Answer(ctx, id, "refunds?")
	require.NoError(t, err)
	assert.True(t, reply.QuotaExceeded)
	assert.Equal(t, chatbot.QuotaSentinel, reply.Text)

	transcript, err := sessions.LoadTranscript(ctx, id)
	require.NoError(t, err)
	assert.Len(t, transcript, 4)

	require.Len(t, responder.history, 2)
	assert.Empty(t, responder.history[0])
	assert.Len(t, responder.history[1], 2)
}

type slowResponder struct {
	calls atomic.Int32
}

func (r *slowResponder) Model() string { return "slow" }

func (r *slowResponder) Answer(context.Context, knowledgebase.KnowledgeBase, []chat.Message, string) (string, error) {
	r.calls.Add(1)
	time.Sleep(50 * time.Millisecond)
	return "Five business days.", nil
}

func TestAnswerQuotaHoldsUnderConcurrentRequests(t *testing.T) {
	responder := &slowResponder{}
	sessions := chatservice.NewService(chatservice.NewMemoryRepository())
	svc := NewService(knowledgebase.NewMemoryStore(knowledgebase.Seed()), sessions, responder, 1)
	ctx := context.Background()

	id, err := svc.CreateSession(ctx, "acme-billing")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		answered atomic.Int32
		limited  atomic.Int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := svc.Answer(ctx, id, "refunds?")
			if !assert.NoError(t, err) {
				return
			}
			if reply.QuotaExceeded {
				limited.Add(1)
			} else {
				answered.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), answered.Load())
	assert.Equal(t, int32(4), limited.Load())
	assert.Equal(t, int32(1), responder.calls.Load())

	count, err := sessions.CountAnswers(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAnswerErrors(t *testing.T) {
	responder := &fakeResponder{err: errors.New("model down")}
	svc, _ := newTestService(20, responder)
	ctx := context.Background()

	_, err := svc.Answer(ctx, "", "hi")
	assert.ErrorIs(t, err, chatservice.ErrSessionNotFound)

	_, err = svc.Answer(ctx, "unknown", "hi")
	assert.ErrorIs(t, err, chatservice.ErrSessionNotFound)

	id, err := svc.CreateSession(ctx, "acme-billing")
	require.NoError(t, err)

	_, err = svc.Answer(ctx, id, "   ")
	assert.ErrorIs(t, err, ErrQuestionRequired)

	_, err = svc.Answer(ctx, id, "hi")
	assert.ErrorContains(t, err, "model down")
}

func TestAnswerFallsBackOnEmptyModelOutput(t *testing.T) {
	svc, _ := newTestService(20, &fakeResponder{answer: " "})
	id, err := svc.CreateSession(context.Background(), "acme-billing")
	require.NoError(t, err)

	reply, err := svc.Answer(context.Background(), id, "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Text)
}

func TestWidget(t *testing.T) {
	svc, _ := newTestService(20, &fakeResponder{})

	widget, err := svc.Widget("acme-billing")
	require.NoError(t, err)
	assert.Equal(t, "ACME Billing", widget.Heading)

	_, err = svc.Widget("nope")
	assert.ErrorIs(t, err, ErrKnowledgeBaseNotFound)
	assert.Len(t, svc.List(), 2)
}

func TestBackendDrivesConversation(t *testing.T) {
	svc, _ := newTestService(1, &fakeResponder{answer: "Monthly."})
	conv := chatbot.New(svc.Backend(), chatbot.DefaultProps("acme-billing"))
	ctx := context.Background()

	snap, err := conv.Submit(ctx, "invoices?")
	require.NoError(t, err)
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, chatbot.TypeBot, snap.Messages[2].Type)
	assert.Equal(t, "Monthly.", snap.Messages[2].Text)
	assert.NotEmpty(t, snap.SessionID)

	snap, err = conv.Submit(ctx, "again?")
	require.NoError(t, err)
	last := snap.Messages[len(snap.Messages)-1]
	assert.Equal(t, chatbot.TypeBotError, last.Type)
	assert.Equal(t, chatbot.QuotaExceededText, last.Text)
}
