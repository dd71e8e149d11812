package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"edukeeper/internal/ratelimit"
	"edukeeper/internal/usertoken"
	"edukeeper/internal/util"
	"edukeeper/pkg/ai"
	"edukeeper/services/assist/internal/app"
	"edukeeper/services/assist/internal/config"
	"edukeeper/services/assist/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:    cfg.APIJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init jwks verifier: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Provider: ai.ProviderConfig{
			OpenAIBaseURL: cfg.OpenAIBaseURL,
			OpenAIAPIKey:  cfg.OpenAIAPIKey,
			OpenAIModel:   cfg.OpenAIModel,
			GeminiAPIKey:  cfg.GeminiAPIKey,
			GeminiModel:   cfg.GeminiModel,
		},
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	generateLimit := cfg.GenerateRateLimitPerMinute
	if generateLimit <= 0 {
		generateLimit = 10
	}
	generateLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "edukeeper:assist:ratelimit:generate", generateLimit, time.Minute)
	if err != nil {
		log.Fatalf("failed to init generate limiter: %v", err)
	}

	httpServer := server.New(server.Config{
		App:             appCore,
		TokenVerifier:   tokenVerifier,
		GenerateLimiter: generateLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("assist server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
