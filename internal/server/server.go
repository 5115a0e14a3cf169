/*
Package server implements the application's network transport layer.
It initializes the HTTP server, configures timeouts, and wires the
session-keyed state stores, the dispatch gateway, and the completion client
into the API routes.
*/
package server

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/sessions"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"github.com/Ansinwind/25Summer-FitnessAgent/internal/completion"
	"github.com/Ansinwind/25Summer-FitnessAgent/internal/state"
	"github.com/Ansinwind/25Summer-FitnessAgent/internal/utility"
)

const sessionCookie = "fitness_session"

// Server holds the configuration and dependencies for the HTTP service.
type Server struct {
	// port specifies the TCP port the server will listen on.
	port int

	// manager hands out the per-session fitness state stores.
	manager *state.Manager

	// client is the external text-completion API.
	client completion.Client

	// sessions issues the cookie that identifies one browser's FitnessState.
	// This is not authentication; it is the "one state per client" identity.
	sessions *sessions.CookieStore

	log zerolog.Logger

	startTime time.Time
}

// NewServer initializes a Server and returns a configured *http.Server.
// It reads the port from the environment and sets production network
// timeouts.
func NewServer(manager *state.Manager, client completion.Client, logger zerolog.Logger) *http.Server {
	// Attempt to parse port from environment; fallback to 8080 if not set or invalid.
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil || port == 0 {
		port = 8080
	}

	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		// Random per-process secret: sessions do not survive a restart but
		// the durable state keyed by their IDs does.
		token, _ := utility.GenerateSecureToken(32)
		secret = token
	}

	app := &Server{
		port:      port,
		manager:   manager,
		client:    client,
		sessions:  sessions.NewCookieStore([]byte(secret)),
		log:       logger,
		startTime: time.Now(),
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.port),
		Handler:      app.RegisterRoutes(),
		IdleTimeout:  time.Minute,      // Time to wait for the next request on keep-alive connections.
		ReadTimeout:  10 * time.Second, // Maximum duration for reading the entire request.
		WriteTimeout: 60 * time.Second, // Generous: dispatch calls block on the completion API.
	}

	return server
}
