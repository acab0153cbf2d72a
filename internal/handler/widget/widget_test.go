package widget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/kbchat/internal/model/chat"
	"github.com/zhouzirui/kbchat/internal/model/knowledgebase"
	"github.com/zhouzirui/kbchat/internal/service/ai"
	chatservice "github.com/zhouzirui/kbchat/internal/service/chat"
	kbservice "github.com/zhouzirui/kbchat/internal/service/knowledgebase"
	"github.com/zhouzirui/kbchat/pkg/chatbot"
)

func setupRouter() *chi.Mux {
	return setupRouterWith(knowledgebase.Seed(), ai.NewKeywordResponder())
}

func setupRouterWith(kbs []knowledgebase.KnowledgeBase, responder ai.Responder) *chi.Mux {
	svc := kbservice.NewService(
		knowledgebase.NewMemoryStore(kbs),
		chatservice.NewService(nil),
		responder,
		20,
	)
	h := New(svc)

	r := chi.NewRouter()
	h.RegisterPageRoutes(r)
	r.Route("/api", h.RegisterWebSocketRoutes)
	return r
}

func TestPageRendersWidget(t *testing.T) {
	r := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/widget/kbchat-help", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, "<h2>kbchat help</h2>")
	assert.Contains(t, body, "<strong>embedding</strong>")
	assert.Contains(t, body, `id="chat-close"`)
	assert.Contains(t, body, "height: 520px")
	assert.Contains(t, body, `chat-message chatbot-error`)
}

func TestPageQueryOverrides(t *testing.T) {
	r := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/widget/acme-billing?close=false&launcher=0&height=400px", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.NotContains(t, body, `id="chat-close"`)
	assert.Contains(t, body, "height: 400px")
	assert.Contains(t, body, `"showLauncher":false`)
}

func TestPageUnknownKnowledgeBase(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/widget/missing", nil)
	resp := httptest.NewRecorder()
	setupRouter().ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

type frame struct {
	Type string           `json:"type"`
	Data chatbot.Snapshot `json:"data"`
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := httptest.NewServer(setupRouter())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/widget/ws/acme-billing"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first frame
	require.NoError(t, ws.ReadJSON(&first))
	assert.Equal(t, "snapshot", first.Type)
	require.Len(t, first.Data.Messages, 1)
	assert.Equal(t, chatbot.DefaultWelcomeMessage, first.Data.Messages[0].Text)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "submit", "text": "How do refunds work?"}))

	var last frame
	for {
		require.NoError(t, ws.ReadJSON(&last))
		if last.Type == "snapshot" && !last.Data.Busy {
			break
		}
	}

	require.Len(t, last.Data.Messages, 3)
	assert.Equal(t, chatbot.TypeUser, last.Data.Messages[1].Type)
	reply := last.Data.Messages[2]
	assert.Equal(t, chatbot.TypeBot, reply.Type)
	assert.Contains(t, reply.Text, "five business days")
	assert.False(t, reply.IsLoading)
	assert.NotEmpty(t, last.Data.SessionID)
	assert.Equal(t, chatbot.MaxMessages-1, last.Data.Remaining)
}

func TestWebSocketRejectsUnknownMessages(t *testing.T) {
	srv := httptest.NewServer(setupRouter())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/widget/ws/acme-billing"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first frame
	require.NoError(t, ws.ReadJSON(&first))

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "submit", "text": "   "}))
	var errFrame struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&errFrame))
	assert.Equal(t, "error", errFrame.Type)
	assert.Equal(t, chatbot.ErrEmptyQuestion.Error(), errFrame.Data["message"])

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))
	require.NoError(t, ws.ReadJSON(&errFrame))
	assert.Equal(t, "error", errFrame.Type)
	assert.Contains(t, errFrame.Data["message"], "unsupported")
}

func TestPageEscapesSocketPath(t *testing.T) {
	kbs := []knowledgebase.KnowledgeBase{{ID: "faq #1", Name: "FAQ"}}

	req := httptest.NewRequest(http.MethodGet, "/widget/faq%20%231", nil)
	resp := httptest.NewRecorder()
	setupRouterWith(kbs, ai.NewKeywordResponder()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"socketPath":"/api/widget/ws/faq%20%231?defaultMessages=0"`)
}

func TestPageKeepsInputWhileBusy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/widget/kbchat-help", nil)
	resp := httptest.NewRecorder()
	setupRouter().ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "if (busy || pending !== null) return;")
}

// blockingResponder holds every answer until release is closed or the
// request context ends.
type blockingResponder struct {
	release  chan struct{}
	canceled chan struct{}
}

func newBlockingResponder() *blockingResponder {
	return &blockingResponder{release: make(chan struct{}), canceled: make(chan struct{}, 1)}
}

func (r *blockingResponder) Model() string { return "blocking" }

func (r *blockingResponder) Answer(ctx context.Context, _ knowledgebase.KnowledgeBase, _ []chat.Message, _ string) (string, error) {
	select {
	case <-r.release:
		return "Refunds take five business days.", nil
	case <-ctx.Done():
		r.canceled <- struct{}{}
		return "", ctx.Err()
	}
}

type rawFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialWidget(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/widget/ws/acme-billing"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first frame
	require.NoError(t, ws.ReadJSON(&first))
	require.Equal(t, "snapshot", first.Type)
	return ws
}

func waitBusy(t *testing.T, ws *websocket.Conn) chatbot.Snapshot {
	t.Helper()
	for {
		var f frame
		require.NoError(t, ws.ReadJSON(&f))
		if f.Type == "snapshot" && f.Data.Busy {
			return f.Data
		}
	}
}

func TestWebSocketRejectsSubmitWhileBusy(t *testing.T) {
	responder := newBlockingResponder()
	srv := httptest.NewServer(setupRouterWith(knowledgebase.Seed(), responder))
	defer srv.Close()

	ws := dialWidget(t, srv)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "submit", "text": "How do refunds work?"}))
	busy := waitBusy(t, ws)
	require.Len(t, busy.Messages, 3)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "submit", "text": "And invoices?"}))
	for {
		var f rawFrame
		require.NoError(t, ws.ReadJSON(&f))
		if f.Type == "error" {
			var data map[string]string
			require.NoError(t, json.Unmarshal(f.Data, &data))
			assert.Equal(t, chatbot.ErrBusy.Error(), data["message"])
			break
		}
		var snap chatbot.Snapshot
		require.NoError(t, json.Unmarshal(f.Data, &snap))
		assert.Len(t, snap.Messages, 3)
	}

	close(responder.release)

	var last frame
	for {
		require.NoError(t, ws.ReadJSON(&last))
		if last.Type == "snapshot" && !last.Data.Busy {
			break
		}
	}
	require.Len(t, last.Data.Messages, 3)
	assert.Equal(t, "How do refunds work?", last.Data.Messages[1].Text)
	assert.Equal(t, "Refunds take five business days.", last.Data.Messages[2].Text)
	for _, m := range last.Data.Messages {
		assert.NotEqual(t, "And invoices?", m.Text)
	}
}

func TestWebSocketDisconnectCancelsExchange(t *testing.T) {
	responder := newBlockingResponder()
	srv := httptest.NewServer(setupRouterWith(knowledgebase.Seed(), responder))
	defer srv.Close()

	ws := dialWidget(t, srv)
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "submit", "text": "How do refunds work?"}))
	waitBusy(t, ws)
	require.NoError(t, ws.Close())

	select {
	case <-responder.canceled:
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight answer was not canceled after disconnect")
	}
}
