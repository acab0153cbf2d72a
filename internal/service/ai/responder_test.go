package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhouzirui/kbchat/internal/config"
	"github.com/zhouzirui/kbchat/internal/model/chat"
	"github.com/zhouzirui/kbchat/internal/model/knowledgebase"
)

func billing() knowledgebase.KnowledgeBase {
	for _, kb := range knowledgebase.Seed() {
		if kb.ID == "acme-billing" {
			return kb
		}
	}
	panic("seed changed")
}

func TestKeywordResponderPicksBestDocument(t *testing.T) {
	r := NewKeywordResponder()
	kb := billing()

	answer, err := r.Answer(context.Background(), kb, nil, "How do refunds work?")
	require.NoError(t, err)
	assert.Contains(t, answer, "five business days")

	answer, err = r.Answer(context.Background(), kb, nil, "Where is my invoice PDF?")
	require.NoError(t, err)
	assert.Contains(t, answer, "first day of every month")

	answer, err = r.Answer(context.Background(), kb, nil, "weather tomorrow")
	require.NoError(t, err)
	assert.Equal(t, NoMatchAnswer, answer)
}

func TestKeywordResponderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewKeywordResponder().Answer(ctx, billing(), nil, "refunds")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt(billing())
	assert.Contains(t, prompt, `"ACME billing FAQ"`)
	assert.Contains(t, prompt, "[1] Invoices")
	assert.Contains(t, prompt, "[2] Refunds")

	empty := BuildSystemPrompt(knowledgebase.KnowledgeBase{ID: "bare"})
	assert.Contains(t, empty, `"bare"`)
	assert.Contains(t, empty, "No documents")
}

func TestBuildHistoryMessagesTrims(t *testing.T) {
	var history []chat.Message
	for i := 0; i < 6; i++ {
		sender := chat.SenderUser
		if i%2 == 1 {
			sender = chat.SenderAssistant
		}
		history = append(history, chat.Message{Sender: sender, Content: string(rune('a' + i))})
	}

	msgs := buildHistoryMessages(history, 4)
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Equal(t, "c", msgs[0].Content)
	assert.Equal(t, schema.Assistant, msgs[3].Role)

	assert.Nil(t, buildHistoryMessages(history, 0))
}

type fakeChatModel struct {
	got []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = input
	return schema.AssistantMessage("from the chain", nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.got = input
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("from the chain", nil)}), nil
}

func TestChainResponder(t *testing.T) {
	fake := &fakeChatModel{}
	r, err := NewChainResponder(context.Background(), fake, "ep-test", 10)
	require.NoError(t, err)
	assert.Equal(t, "ep-test", r.Model())

	history := []chat.Message{
		{Sender: chat.SenderUser, Content: "hello"},
		{Sender: chat.SenderAssistant, Content: "hi"},
	}
	answer, err := r.Answer(context.Background(), billing(), history, "refunds?")
	require.NoError(t, err)
	assert.Equal(t, "from the chain", answer)

	require.Len(t, fake.got, 4)
	assert.Equal(t, schema.System, fake.got[0].Role)
	assert.Contains(t, fake.got[0].Content, "Refunds")
	assert.Equal(t, "refunds?", fake.got[3].Content)
}

func TestOpenAIResponder(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Five business days."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	r := NewOpenAIResponder("sk-test", srv.URL+"/v1", "gpt-test", 10)
	answer, err := r.Answer(context.Background(), billing(), []chat.Message{{Sender: chat.SenderUser, Content: "hey"}}, "refunds?")
	require.NoError(t, err)
	assert.Equal(t, "Five business days.", answer)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
	assert.Equal(t, "refunds?", got.Messages[2].Content)
}

func TestOpenAIResponderEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIResponder("sk-test", srv.URL, "", 10).Answer(context.Background(), billing(), nil, "x")
	assert.ErrorIs(t, err, errEmptyChoices)
}

func TestNewResponderMock(t *testing.T) {
	r, err := NewResponder(context.Background(), config.AIConfig{Provider: config.ProviderMock})
	require.NoError(t, err)
	assert.Equal(t, "mock-keyword", r.Model())

	r, err = NewResponder(context.Background(), config.AIConfig{Provider: config.ProviderOpenAI, OpenAIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIResponder{}, r)

	_, err = NewResponder(context.Background(), config.AIConfig{Provider: config.ProviderArk})
	assert.Error(t, err)
}
