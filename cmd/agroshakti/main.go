package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agroshakti/agroshakti-backend/internal/advisory"
	"github.com/agroshakti/agroshakti-backend/internal/api"
	"github.com/agroshakti/agroshakti-backend/internal/auth"
	"github.com/agroshakti/agroshakti-backend/internal/config"
	"github.com/agroshakti/agroshakti-backend/internal/db"
	"github.com/agroshakti/agroshakti-backend/internal/history"
	"github.com/agroshakti/agroshakti-backend/internal/logging"
	"github.com/agroshakti/agroshakti-backend/internal/monitor"
	"github.com/agroshakti/agroshakti-backend/internal/orchestrator"
	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/telemetry"
	"github.com/agroshakti/agroshakti-backend/internal/translate"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
	"github.com/agroshakti/agroshakti-backend/internal/upstream/registry"
	"github.com/agroshakti/agroshakti-backend/internal/version"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	cat, err := catalog.Load(cfg.ProvidersFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load provider catalog")
	}
	set, err := registry.Build(ctx, cat)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build provider clients")
	}
	logCatalog(cat)

	database, err := db.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to initialize database")
	}

	attempts := monitor.NewAttemptMonitor(database)
	orch := orchestrator.New(cat, set.PrimaryProvider(), set.Backups, orchestrator.Options{
		Deadline: cfg.Advisory.FallbackDeadline,
		Observer: attempts,
	})

	var cureEndpoint advisory.CureEndpoint
	if set.Primary != nil {
		cureEndpoint = set.Primary
	}
	synth := advisory.NewSynthesizer(orch, cureEndpoint, cat.Primary().Timeout, advisory.ParseMode(cfg.Advisory.CureMode))

	var verifier auth.Verifier
	tokens, err := auth.ParseStaticTokens(cfg.APITokens)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid AGRO_API_TOKENS")
	}
	if tokens.Len() > 0 {
		verifier = tokens
	} else {
		log.Warn().Msg("AGRO_API_TOKENS not set, API runs without authentication")
	}

	router := api.NewRouter(api.Deps{
		Catalog:     cat,
		Resolver:    orch,
		Advisor:     synth,
		History:     history.NewStore(database),
		Monitor:     attempts,
		Translator:  translate.NewLibreTranslate(cfg.Translate.URL, cfg.Translate.APIKey, upstream.NewHTTPClient(10*time.Second)),
		Verifier:    verifier,
		CORSOrigins: cfg.CORSOrigins,
		Started:     time.Now(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("version", version.Version).
			Str("cure_mode", cfg.Advisory.CureMode).
			Msg("AgroShakti backend starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Graceful shutdown failed")
	}
	attempts.Flush()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to flush traces")
	}
	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func logCatalog(cat *catalog.Catalog) {
	p := cat.Primary()
	log.Info().Str("provider", p.Name).Str("base_url", p.BaseURL).Bool("enabled", p.Enabled).Dur("timeout", p.Timeout).Msg("Primary provider")
	for i, d := range cat.Candidates() {
		log.Info().Int("order", i+1).Str("provider", d.Name).Str("kind", string(d.Kind)).Bool("preferred", d.Preferred).Dur("timeout", d.Timeout).Msg("Backup provider")
	}
	for _, d := range cat.Backups() {
		if !d.Enabled {
			log.Info().Str("provider", d.Name).Msg("Backup provider disabled")
		}
	}
}
