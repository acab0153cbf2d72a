package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/kbchat/internal/config"
	"github.com/zhouzirui/kbchat/internal/handler"
	"github.com/zhouzirui/kbchat/internal/logging"
	"github.com/zhouzirui/kbchat/internal/model/knowledgebase"
	"github.com/zhouzirui/kbchat/internal/service/ai"
	"github.com/zhouzirui/kbchat/internal/service/chat"
	kbService "github.com/zhouzirui/kbchat/internal/service/knowledgebase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Init(os.Stderr, "info", "console")
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	// Knowledge bases: YAML catalogue if configured, demo seed otherwise
	items := knowledgebase.Seed()
	if cfg.KnowledgeBases.File != "" {
		items, err = knowledgebase.LoadFile(cfg.KnowledgeBases.File)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.KnowledgeBases.File).Msg("failed to load knowledge bases")
		}
	}
	kbStore := knowledgebase.NewMemoryStore(items)
	log.Info().Int("count", len(items)).Msg("knowledge bases loaded")

	// Session storage: SQLite when KB_DB_PATH is set, memory otherwise
	var repo chat.Repository = chat.NewMemoryRepository()
	if cfg.Storage.DBPath != "" {
		sqliteRepo, err := chat.NewSQLiteRepository(cfg.Storage.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Storage.DBPath).Msg("failed to open chat store")
		}
		repo = sqliteRepo
	} else {
		log.Warn().Msg("KB_DB_PATH 未配置，会话仅保存在内存中")
	}
	chatService := chat.NewService(repo)
	defer chatService.Close()

	responder, err := ai.NewResponder(ctx, cfg.AI)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize AI responder, falling back to keyword responder - 请检查模型相关环境变量")
		responder = ai.NewKeywordResponder()
	}
	log.Info().Str("provider", cfg.AI.ResolvedProvider()).Str("model", responder.Model()).Msg("AI responder ready")

	kbSvc := kbService.NewService(kbStore, chatService, responder, cfg.Quota.SessionAnswers)
	router := handler.NewRouter(kbSvc, cfg.Server.AllowedOrigins)

	if err := runServer(ctx, cfg.Server, router); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("kbchat backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
