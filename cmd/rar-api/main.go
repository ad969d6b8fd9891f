package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gematik/zero-rar/pkg/api"
	"github.com/gematik/zero-rar/pkg/pep"
	"github.com/gematik/zero-rar/pkg/prettylog"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional
	_ = godotenv.Load()
	prettylog.Setup(os.Getenv("PRETTY_LOGS") != "false", slog.LevelDebug)

	cfg, err := api.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("Loaded API config",
		"address", cfg.Address,
		"url", cfg.URL,
		"issuer", cfg.PEP.AuthzIssuer,
		"audience", cfg.PEP.Audience,
		"required_scopes", cfg.RequiredScopes,
		"ledger_mode", cfg.Ledger.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var p *pep.PEP
	if path := os.Getenv("PEP_CONFIG_PATH"); path != "" {
		// a dedicated PEP file replaces the pep section and ISSUER_BASE_URL/AUDIENCE
		p, err = pep.NewFromConfigFile(ctx, path)
	} else {
		p, err = pep.New(ctx, cfg.PEP)
	}
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("Policy enforcement point ready", "issuer", p.Issuer(), "audience", p.Config.Audience, "realm", p.Config.Realm)

	s, err := api.NewServer(*cfg, p, api.NewLedger(cfg.Ledger))
	if err != nil {
		log.Fatal(err)
	}

	if err := s.ListenAndServe(ctx); err != nil {
		log.Fatal(err)
	}
}
