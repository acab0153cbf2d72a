package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/kbchat/internal/model/chat"
	"github.com/zhouzirui/kbchat/internal/model/knowledgebase"
	chatservice "github.com/zhouzirui/kbchat/internal/service/chat"
	kbservice "github.com/zhouzirui/kbchat/internal/service/knowledgebase"
	widget "github.com/zhouzirui/kbchat/pkg/chatbot"
)

type stubResponder struct {
	err error
}

func (stubResponder) Model() string { return "stub" }

func (s stubResponder) Answer(context.Context, knowledgebase.KnowledgeBase, []chat.Message, string) (string, error) {
	return "Hi", s.err
}

func setupRouter(quota int, responderErr error) *chi.Mux {
	sessions := chatservice.NewService(chatservice.NewMemoryRepository())
	svc := kbservice.NewService(knowledgebase.NewMemoryStore(knowledgebase.Seed()), sessions, stubResponder{err: responderErr}, quota)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r
}

func post(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	resp := post(t, r, "/chatbot/session", map[string]string{"knowledgeBaseId": "acme-billing"})
	require.Equal(t, http.StatusCreated, resp.Code)

	var id string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &id))
	require.NotEmpty(t, id)
	return id
}

func TestCreateSession(t *testing.T) {
	r := setupRouter(20, nil)
	createSession(t, r)

	resp := post(t, r, "/chatbot/session", map[string]string{"knowledgeBaseId": "non-existent"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = post(t, r, "/chatbot/session", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	req := httptest.NewRequest(http.MethodPost, "/chatbot/session", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnswer(t *testing.T) {
	r := setupRouter(20, nil)
	id := createSession(t, r)

	resp := post(t, r, "/chatbot/answer", map[string]string{"sessionId": id, "question": "refunds?"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"response":"Hi"}`, resp.Body.String())
}

func TestAnswerQuotaSentinel(t *testing.T) {
	r := setupRouter(1, nil)
	id := createSession(t, r)

	resp := post(t, r, "/chatbot/answer", map[string]string{"sessionId": id, "question": "one"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = post(t, r, "/chatbot/answer", map[string]string{"sessionId": id, "question": "two"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, widget.QuotaSentinel, resp.Body.String())
}

func TestAnswerErrors(t *testing.T) {
	r := setupRouter(20, errors.New("model down"))
	id := createSession(t, r)

	cases := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"missing session", map[string]string{"question": "hi"}, http.StatusBadRequest},
		{"unknown session", map[string]string{"sessionId": "nope", "question": "hi"}, http.StatusNotFound},
		{"blank question", map[string]string{"sessionId": id, "question": " "}, http.StatusBadRequest},
		{"responder failure", map[string]string{"sessionId": id, "question": "hi"}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(t, r, "/chatbot/answer", tc.body)
			assert.Equal(t, tc.status, resp.Code)
		})
	}
}
