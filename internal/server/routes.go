package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"https://*", "http://*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	e.Use(LoggerMiddleware)

	e.GET("/health", s.healthHandler)

	// Profile
	e.POST("/api/user", s.saveProfileHandler)
	e.GET("/api/profile", s.getProfileHandler)

	// Dispatch: the single entry point for all three AI services
	e.POST("/api/dispatch", s.dispatchHandler)

	// Fitness state
	e.GET("/api/state", s.getStateHandler)
	e.POST("/api/state/reset", s.resetStateHandler)
	e.GET("/api/state/ws", s.stateSocketHandler)

	// Data export/import
	e.GET("/api/export", s.exportHandler)
	e.POST("/api/import", s.importHandler)

	return e
}

// LoggerMiddleware binds a request-scoped logger carrying a request ID.
func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Response().Header().Set("X-Request-ID", requestID)

		logger := log.With().Str("request_id", requestID).Logger()

		c.Set("logger", &logger)

		return next(c)
	}
}
