package widget

import (
	"bytes"
	_ "embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/zhouzirui/kbchat/internal/logging"
	kbService "github.com/zhouzirui/kbchat/internal/service/knowledgebase"
	"github.com/zhouzirui/kbchat/pkg/chatbot"
	"github.com/zhouzirui/kbchat/pkg/utils"
)

//go:embed templates/widget.html
var pageTemplate string

// Handler 浏览器挂件：HTML 页面与 WebSocket 桥接
type Handler struct {
	kbSvc    *kbService.Service
	tmpl     *template.Template
	markdown goldmark.Markdown
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New 创建挂件处理器
func New(kbSvc *kbService.Service) *Handler {
	return &Handler{
		kbSvc: kbSvc,
		tmpl:  template.Must(template.New("widget").Parse(pageTemplate)),
		// 描述允许内联 HTML，与嵌入方原有行为一致
		markdown: goldmark.New(goldmark.WithRendererOptions(html.WithUnsafe())),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logging.Component("widget"),
	}
}

// RegisterPageRoutes 注册挂件页面路由
func (h *Handler) RegisterPageRoutes(r chi.Router) {
	r.Get("/widget/{kbID}", h.handlePage)
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *Handler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/widget/ws/{kbID}", h.handleWebSocket)
}

type bubbleStyle struct {
	ClassName  string `json:"className"`
	Background string `json:"background"`
	Foreground string `json:"foreground"`
}

type pageConfig struct {
	SocketPath      string                       `json:"socketPath"`
	ShowLauncher    bool                         `json:"showLauncher"`
	ShowRemaining   bool                         `json:"showRemaining"`
	DefaultMessages int                          `json:"defaultMessages"`
	LoaderColor     string                       `json:"loaderColor"`
	BorderRadius    string                       `json:"borderRadius"`
	Bubbles         map[chatbot.Type]bubbleStyle `json:"bubbles"`
}

type pageData struct {
	Props       chatbot.Props
	Description template.HTML
	Config      pageConfig
}

// propsFromRequest 解析嵌入方通过查询参数传入的挂件属性
func propsFromRequest(r *http.Request, kbID string, customize chatbot.Customize) chatbot.Props {
	props := chatbot.DefaultProps(kbID)
	props.Customize = customize

	q := r.URL.Query()
	if v, err := strconv.ParseBool(q.Get("close")); err == nil {
		props.ShowCloseButton = v
	}
	if v, err := strconv.ParseBool(q.Get("launcher")); err == nil {
		props.ShowLauncher = v
	}
	if v := strings.TrimSpace(q.Get("height")); v != "" {
		props.Height = v
	}
	if v, err := strconv.Atoi(q.Get("defaultMessages")); err == nil && v >= 0 {
		props.DefaultMessageNumber = v
	}
	return props
}

// handlePage 渲染挂件页面
func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")
	customize, err := h.kbSvc.Widget(kbID)
	if errors.Is(err, kbService.ErrKnowledgeBaseNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	props := propsFromRequest(r, kbID, customize)

	var desc bytes.Buffer
	if err := h.markdown.Convert([]byte(customize.Description), &desc); err != nil {
		h.logger.Error().Err(err).Str("kb", kbID).Msg("failed to convert description")
		desc.Reset()
		desc.WriteString(template.HTMLEscapeString(customize.Description))
	}

	bubbles := make(map[chatbot.Type]bubbleStyle, 3)
	for _, t := range []chatbot.Type{chatbot.TypeBot, chatbot.TypeBotError, chatbot.TypeUser} {
		colors := chatbot.Colors(t, customize)
		bubbles[t] = bubbleStyle{
			ClassName:  chatbot.ClassName(t),
			Background: colors.Background,
			Foreground: colors.Foreground,
		}
	}

	data := pageData{
		Props:       props,
		Description: template.HTML(desc.String()),
		Config: pageConfig{
			SocketPath:      "/api/widget/ws/" + url.PathEscape(kbID) + "?defaultMessages=" + strconv.Itoa(props.DefaultMessageNumber),
			ShowLauncher:    props.ShowLauncher,
			ShowRemaining:   r.URL.Query().Get("remaining") == "true",
			DefaultMessages: props.DefaultMessageNumber,
			LoaderColor:     customize.BackgroundColor,
			BorderRadius:    customize.BorderRadius,
			Bubbles:         bubbles,
		},
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.Execute(w, data); err != nil {
		h.logger.Error().Err(err).Str("kb", kbID).Msg("failed to render widget page")
	}
}
