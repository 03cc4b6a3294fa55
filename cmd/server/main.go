package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/rs/cors"

	"github.com/dwalsh/galley/internal/config"
	"github.com/dwalsh/galley/internal/db"
	"github.com/dwalsh/galley/internal/reporting"
	"github.com/dwalsh/galley/internal/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	log.DefaultLogger.Level = log.ParseLevel(cfg.LogLevel)

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database.URL()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	jobs := repository.NewJobGateway(conn.Pool)
	errorRepo := repository.NewErrorRepository(conn.Pool)
	logRepo := repository.NewLogRepository(conn.Pool)
	recipeTypeRepo := repository.NewRecipeTypeRepository(conn, jobs)
	recipeRepo := repository.NewRecipeRepository(conn, jobs, jobs, jobs)

	handler := reporting.NewHandler(errorRepo, logRepo, recipeTypeRepo, recipeRepo)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(handler.Mux()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting reporting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
