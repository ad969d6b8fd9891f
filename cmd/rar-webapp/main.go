package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gematik/zero-rar/pkg/oidc"
	"github.com/gematik/zero-rar/pkg/prettylog"
	"github.com/gematik/zero-rar/pkg/webapp"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional
	_ = godotenv.Load()
	prettylog.Setup(os.Getenv("PRETTY_LOGS") != "false", slog.LevelDebug)

	cfg, err := webapp.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	cfg.Log()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := oidc.NewClient(ctx, &oidc.Config{
		Issuer:       cfg.Issuer,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI(),
		Scopes:       cfg.Scopes(),
		ResponseType: cfg.ResponseType,
		Audience:     cfg.Audience,
	})
	if err != nil {
		log.Fatal(err)
	}

	s, err := webapp.NewServer(*cfg, client)
	if err != nil {
		log.Fatal(err)
	}

	if err := s.ListenAndServe(ctx); err != nil {
		log.Fatal(err)
	}
}
