// Package app wires configuration, memory tiers, the hosted-model client,
// and the HTTP surface into one runnable unit.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/malganisridhargoud/groqchat/internal/assistant"
	"github.com/malganisridhargoud/groqchat/internal/config"
	"github.com/malganisridhargoud/groqchat/internal/httpapi"
	"github.com/malganisridhargoud/groqchat/internal/identity"
	"github.com/malganisridhargoud/groqchat/internal/memory"
	"github.com/malganisridhargoud/groqchat/internal/observability"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Memory   *memory.Manager
	Registry *identity.Registry
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	// Tier construction never fails the boot: a missing or unreachable
	// backend leaves that tier nil and the manager degraded.
	store := memory.NewDurableStore(ctx, cfg.DatabaseURL, logger)
	cache := memory.NewHotCache(ctx, cfg.RedisURL, logger)

	mgr := memory.NewManager(store, cache, memory.Config{
		ContextWindow:   cfg.ContextWindow,
		ContentMaxBytes: cfg.ContentMaxBytes,
		OpTimeout:       cfg.MemoryOpTimeout,
	}, logger, metrics)

	brain := assistant.New(assistant.Config{
		APIKey:      cfg.GroqAPIKey,
		BaseURL:     cfg.GroqBaseURL,
		ChatModel:   cfg.PrimaryModel,
		AudioModel:  cfg.AudioModel,
		VisionModel: cfg.VisionModel,
	}, logger, metrics)

	users := identity.NewUserStore(ctx, cfg.DatabaseURL, logger)
	ident := identity.NewService(users, logger)

	registry := identity.NewRegistry(cfg.GuestInactivityTimeout)
	registry.SetExpireHook(func(sessionID string) {
		// Expired guests lose their in-process state; durable rows for
		// registered users are untouched.
		mgr.ForgetSession(sessionID)
		metrics.SetActiveGuests(registry.GuestCount())
		logger.Info().Str("session_id", sessionID).Msg("guest session expired")
	})

	api := httpapi.New(cfg, mgr, brain, ident, registry, metrics, logger)

	cleanup := func() error {
		var errs []string
		if store != nil {
			if err := store.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if cache != nil {
			if err := cache.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := users.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Memory:   mgr,
		Registry: registry,
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}
