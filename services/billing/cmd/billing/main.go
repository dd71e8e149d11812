package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"edukeeper/internal/usertoken"
	"edukeeper/internal/util"
	"edukeeper/services/billing/internal/app"
	"edukeeper/services/billing/internal/config"
	"edukeeper/services/billing/internal/server"
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
		DatabaseURL:   cfg.DatabaseURL,
		StripeAPIKey:  cfg.StripeAPIKey,
		SendGridKey:   cfg.SendGridKey,
		MailFromName:  cfg.MailFromName,
		MailFromEmail: cfg.MailFromEmail,
		InterestEmail: cfg.InterestEmail,
		SuccessURL:    cfg.SuccessURL,
		CancelURL:     cfg.CancelURL,
		PortalURL:     cfg.PortalURL,
		TrialDays:     cfg.TrialDays,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer := server.New(server.Config{
		App:           appCore,
		TokenVerifier: tokenVerifier,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("billing server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
