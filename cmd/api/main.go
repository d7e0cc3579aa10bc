package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"persona-chat/internal/config"
	"persona-chat/internal/db"
	apihttp "persona-chat/internal/http"
	"persona-chat/internal/llm"
	"persona-chat/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	stores, err := db.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer stores.Close()

	guard := service.NewMemoryTurnGuard()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed; using in-process turn guard", zap.Error(err))
		} else {
			guard = service.NewRedisTurnGuard(redisClient, cfg.TurnLockTTL, logger)
		}
		cancel()
	}

	if cfg.APIKey() == "" {
		logger.Warn("llm api key not configured; turns will fail until LLM_API_KEY is set")
	}
	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.APIKey(), cfg.LLMModel, cfg.LLMTimeout, logger)
	promptBuilder := service.PersonaPromptBuilder{LanguageHint: cfg.PromptLanguageHint}
	orchestrator := service.NewResponseOrchestrator(llmClient, promptBuilder, logger)
	conversation := service.NewConversationController(stores.Personas, stores.Messages, orchestrator, guard, logger)
	personaSvc := service.NewPersonaService(stores.Personas, stores.Messages, logger)
	personaSvc.Observe(conversation)

	personaHandler := apihttp.NewPersonaHandler(logger, personaSvc)
	chatHandler := apihttp.NewChatHandler(logger, conversation)
	router := apihttp.NewRouter(logger, personaHandler, chatHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.StoreDriver))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
