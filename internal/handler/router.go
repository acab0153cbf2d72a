package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zhouzirui/kbchat/internal/handler/chatbot"
	"github.com/zhouzirui/kbchat/internal/handler/knowledgebase"
	"github.com/zhouzirui/kbchat/internal/handler/widget"
	"github.com/zhouzirui/kbchat/internal/logging"
	kbService "github.com/zhouzirui/kbchat/internal/service/knowledgebase"
	"github.com/zhouzirui/kbchat/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(kbSvc *kbService.Service, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)
	// 挂件会被嵌入到任意站点，跨域来源由 CORS_ALLOWED_ORIGINS 控制
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	chatbotHandler := chatbot.New(kbSvc)
	knowledgeBaseHandler := knowledgebase.New(kbSvc)
	widgetHandler := widget.New(kbSvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	widgetHandler.RegisterPageRoutes(r)

	r.Route("/api", func(api chi.Router) {
		chatbotHandler.RegisterRoutes(api)
		knowledgeBaseHandler.RegisterRoutes(api)
		widgetHandler.RegisterWebSocketRoutes(api)
	})

	return r
}
