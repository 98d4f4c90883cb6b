package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"quizstream"

	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := quizstream.LoadConfig()
	quizstream.SetVerbose(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	generator, release, err := cfg.NewGenerator(ctx)
	if err != nil {
		log.Fatalf("Failed to create LLM backend: %v", err)
	}
	defer release()

	// Initialize database
	db, err := quizstream.OpenDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(ctx); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options.HttpOnly = true

	// The studio drives generation through the same /generate endpoint it serves
	orchestrator := quizstream.NewOrchestrator(quizstream.NewStreamClient(cfg.GenerateURL, cfg.RequestTimeout))
	details := quizstream.NewDetailQueue(quizstream.NewDetailClient(cfg.GenerateURL, cfg.RequestTimeout), 32)

	server := NewServer(db, store, quizstream.NewEndpoint(generator, cfg.LLMLogDir), orchestrator, details)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Printf("Shutting down server")
		server.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Starting server on port %s (provider=%s)", cfg.Port, cfg.LLMProvider)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
