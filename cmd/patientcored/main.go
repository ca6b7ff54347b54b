package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"patientcore/internal/api"
	"patientcore/internal/broadcast"
	"patientcore/internal/logging"
	"patientcore/internal/metrics"
	"patientcore/internal/persistence"
	"patientcore/internal/registry"
)

func main() {
	logging.Setup("patientcore")

	log.Info().Msg("Starting patientcore service")

	ctx := context.Background()

	driver, err := persistence.Open(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage driver")
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close storage driver")
		}
	}()

	hub := broadcast.NewHub()
	channel := hub.Open("patient_registry_changes", log.Logger)
	defer channel.Close()

	store, err := registry.Open(ctx, registry.Options{
		Driver:    driver,
		Publisher: channel,
		Logger:    log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open registry store")
	}

	log.Info().
		Int("patients", len(store.ListPatients())).
		Int("allergies", len(store.ListAllergies())).
		Int("saved_queries", len(store.ListSavedQueries())).
		Msg("Registry hydrated")

	metrics.StartSystemMetrics(15 * time.Second)

	router := api.SetupRoutes()

	port := os.Getenv("PATIENTCORE_API_PORT")
	if port == "" {
		port = "3001"
	}

	log.Info().
		Str("port", port).
		Msg("API server starting")

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal().
			Err(err).
			Msg("Failed to start API server")
	}
}
