package widget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	kbService "github.com/zhouzirui/kbchat/internal/service/knowledgebase"
	"github.com/zhouzirui/kbchat/pkg/chatbot"
	"github.com/zhouzirui/kbchat/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// conn 串行化对同一连接的写操作
type conn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	logger zerolog.Logger
}

func (c *conn) send(msgType string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	msg := outgoingMessage{Type: msgType, Data: data, Timestamp: time.Now().Unix()}
	if err := c.ws.WriteJSON(msg); err != nil {
		c.logger.Debug().Err(err).Str("type", msgType).Msg("write failed")
	}
}

func (c *conn) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 每个连接持有一个独立的 Conversation
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")
	customize, err := h.kbSvc.Widget(kbID)
	if errors.Is(err, kbService.ErrKnowledgeBaseNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer ws.Close()

	logger := h.logger.With().Str("kb", kbID).Str("remote", r.RemoteAddr).Logger()
	c := &conn{ws: ws, logger: logger}

	ctx, cancel := context.WithCancel(r.Context())

	conversation := chatbot.New(h.kbSvc.Backend(), propsFromRequest(r, kbID, customize), chatbot.WithLogger(logger))
	unsubscribe := conversation.Subscribe(func(snap chatbot.Snapshot) {
		c.send("snapshot", snap)
	})
	defer unsubscribe()

	logger.Info().Msg("widget connected")
	defer logger.Info().Msg("widget disconnected")

	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)

	c.send("snapshot", conversation.Snapshot())

	var running sync.WaitGroup
	defer running.Wait()
	// cancel 先于 Wait 执行，挂起的回答会以 canceled 结束
	defer cancel()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}

		switch msg.Type {
		case "submit":
			ex, err := conversation.Begin(msg.Text)
			if err != nil {
				c.sendError(err.Error())
				continue
			}
			running.Add(1)
			go func() {
				defer running.Done()
				_, _ = conversation.Run(ctx, ex)
			}()
		default:
			c.sendError("unsupported message type: " + msg.Type)
		}
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
