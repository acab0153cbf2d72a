// Package kbclient calls the knowledge-base chatbot endpoints over HTTP.
package kbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/kbchat/pkg/chatbot"
)

const (
	sessionPath = "/api/chatbot/session"
	answerPath  = "/api/chatbot/answer"
	widgetPath  = "/api/knowledgebases/%s/widget"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

var (
	ErrEmptySession = errors.New("kbclient: backend returned an empty session id")
	ErrBodyTooLarge = errors.New("kbclient: response body exceeds size limit")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kbclient: backend returned %d: %s", e.Status, e.Body)
}

// Client implements chatbot.Backend against a remote knowledge-base service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends "Authorization: Bearer <token>" on every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ chatbot.Backend = (*Client)(nil)

// CreateSession opens a session for the knowledge base.
func (c *Client) CreateSession(ctx context.Context, knowledgeBaseID string) (string, error) {
	body, err := c.post(ctx, sessionPath, map[string]string{"knowledgeBaseId": knowledgeBaseID})
	if err != nil {
		return "", err
	}

	id := strings.TrimSpace(decodeString(body))
	if id == "" {
		return "", ErrEmptySession
	}
	c.logger.Debug().Str("knowledge_base", knowledgeBaseID).Str("session", id).Msg("session created")
	return id, nil
}

// GetAnswer asks a question. Bodies that are not a {"response": ...}
// object are returned verbatim in Answer.Raw for the widget to classify.
func (c *Client) GetAnswer(ctx context.Context, sessionID, question string) (chatbot.Answer, error) {
	body, err := c.post(ctx, answerPath, map[string]string{
		"sessionId": sessionID,
		"question":  question,
	})
	if err != nil {
		return chatbot.Answer{}, err
	}
	return decodeAnswer(body), nil
}

// Widget fetches the customization the backend stores for a knowledge base.
func (c *Client) Widget(ctx context.Context, knowledgeBaseID string) (chatbot.Customize, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+fmt.Sprintf(widgetPath, url.PathEscape(knowledgeBaseID)), nil)
	if err != nil {
		return chatbot.Customize{}, err
	}
	body, err := c.do(req)
	if err != nil {
		return chatbot.Customize{}, err
	}

	var out chatbot.Customize
	if err := json.Unmarshal(body, &out); err != nil {
		return chatbot.Customize{}, fmt.Errorf("kbclient: decode widget: %w", err)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json, text/plain")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kbclient: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("kbclient: read body: %w", err)
	}
	tooLarge := len(body) > maxBodyBytes
	if tooLarge {
		body = body[:maxBodyBytes]
	}

	if resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if tooLarge {
		c.logger.Warn().Str("path", req.URL.Path).Int("limit", maxBodyBytes).Msg("response body truncated")
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, maxBodyBytes)
	}
	return body, nil
}

// decodeString accepts a JSON string or a plain-text body.
func decodeString(body []byte) string {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	return string(body)
}

func decodeAnswer(body []byte) chatbot.Answer {
	var obj struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && obj.Response != nil {
		return chatbot.Answer{Response: *obj.Response}
	}
	return chatbot.Answer{Raw: decodeString(body)}
}
