package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ansinwind/25Summer-FitnessAgent/internal/completion"
	"github.com/Ansinwind/25Summer-FitnessAgent/internal/server"
	"github.com/Ansinwind/25Summer-FitnessAgent/internal/state"
	"github.com/Ansinwind/25Summer-FitnessAgent/internal/storage"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Info().Msg("shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// The context informs the server it has 5 seconds to finish the request
	// it is currently handling.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

// newKV selects the durable storage backend: file (default) or postgres.
func newKV() (storage.KV, func(), error) {
	switch os.Getenv("STORAGE_DRIVER") {
	case "", "file":
		dir := os.Getenv("DATA_DIR")
		if dir == "" {
			dir = "data"
		}
		kv, err := storage.NewFile(dir)
		return kv, func() {}, err
	case "postgres":
		kv, err := storage.NewPostgres(context.Background(), os.Getenv("DATABASE_URL"))
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORAGE_DRIVER %q", os.Getenv("STORAGE_DRIVER"))
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	kv, closeKV, err := newKV()
	if err != nil {
		log.Fatal().Err(err).Msg("Fatal error: could not initialize storage")
	}
	defer closeKV()

	manager := state.NewManager(kv, log.Logger)
	client := completion.NewDashScope(log.Logger)

	apiServer := server.NewServer(manager, client, log.Logger)

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(apiServer, done)

	err = apiServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Info().Msg("Graceful shutdown complete.")
}
