package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/errgroup"

	"github.com/Ansinwind/25Summer-FitnessAgent/internal/dispatch"
	"github.com/Ansinwind/25Summer-FitnessAgent/internal/state"
	"github.com/Ansinwind/25Summer-FitnessAgent/internal/utility"
)

// dispatchRequest is the /api/dispatch body. "condition" is the field name
// the original web client used for the service identifier; both are accepted.
type dispatchRequest struct {
	Service       string         `json:"service"`
	Condition     string         `json:"condition"`
	UserProfile   *state.Profile `json:"userProfile"`
	CustomRequest string         `json:"customRequest"`
}

type dispatchResponse struct {
	Text       string          `json:"text"`
	Structured json.RawMessage `json:"structured,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// sessionStore resolves the caller's session cookie (creating one on first
// contact) and returns the session's state store.
func (s *Server) sessionStore(c echo.Context) (*state.Store, string, error) {
	sess, _ := s.sessions.Get(c.Request(), sessionCookie)
	sid, ok := sess.Values["sid"].(string)
	if !ok || sid == "" {
		sid = uuid.New().String()
		sess.Values["sid"] = sid
		sess.Options.HttpOnly = true
		sess.Options.MaxAge = 60 * 60 * 24 * 365
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return nil, "", err
		}
	}
	return s.manager.Store(sid), sid, nil
}

func requestLogger(c echo.Context) zerolog.Logger {
	if l, ok := c.Get("logger").(*zerolog.Logger); ok {
		return *l
	}
	return log.Logger
}

func (s *Server) dispatchHandler(c echo.Context) error {
	var req dispatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dispatchResponse{Error: "invalid request body"})
	}

	service := req.Service
	if service == "" {
		service = req.Condition
	}

	store, sid, err := s.sessionStore(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dispatchResponse{Error: "failed to establish session"})
	}
	ctx := c.Request().Context()

	// Profile precedence: request body first, then the stored one. A failed
	// read of the stored profile degrades the prompt instead of failing the
	// dispatch.
	profile := req.UserProfile
	if profile == nil {
		stored, err := store.Profile(ctx)
		if err != nil {
			logger := requestLogger(c)
			logger.Warn().Err(err).Msg("Failed to read stored profile, composing without it")
		}
		profile = stored
	}

	gw := dispatch.New(store, s.client, requestLogger(c))
	result := gw.Dispatch(ctx, dispatch.Request{
		Service:       dispatch.Service(service),
		Profile:       profile,
		CustomRequest: req.CustomRequest,
	})

	switch result.Outcome {
	case dispatch.OutcomeSuccess, dispatch.OutcomePartial:
		s.pushState(ctx, store, sid)
		return c.JSON(http.StatusOK, dispatchResponse{Text: result.Text, Structured: result.Structured})
	default:
		status := http.StatusBadGateway
		if result.Kind == dispatch.ErrInvalidService {
			status = http.StatusBadRequest
		}
		return c.JSON(status, dispatchResponse{Error: result.Message})
	}
}

// pushState sends a fresh state snapshot to the session's websocket watcher.
func (s *Server) pushState(ctx context.Context, store *state.Store, sid string) {
	snapshot, err := json.Marshal(store.Current(ctx))
	if err != nil {
		return
	}
	utility.PushStateUpdate(sid, snapshot)
}

func (s *Server) saveProfileHandler(c echo.Context) error {
	var profile state.Profile
	if err := c.Bind(&profile); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid profile body"})
	}

	store, _, err := s.sessionStore(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to establish session"})
	}
	if err := store.SaveProfile(c.Request().Context(), &profile); err != nil {
		logger := requestLogger(c)
		logger.Error().Err(err).Msg("Failed to save profile")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save profile"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "User profile saved"})
}

func (s *Server) getProfileHandler(c echo.Context) error {
	store, _, err := s.sessionStore(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to establish session"})
	}
	profile, err := store.Profile(c.Request().Context())
	if err != nil {
		logger := requestLogger(c)
		logger.Error().Err(err).Msg("Failed to read profile")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read profile"})
	}
	if profile == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no profile saved"})
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) getStateHandler(c echo.Context) error {
	store, _, err := s.sessionStore(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to establish session"})
	}
	return c.JSON(http.StatusOK, store.Current(c.Request().Context()))
}

func (s *Server) resetStateHandler(c echo.Context) error {
	store, _, err := s.sessionStore(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to establish session"})
	}
	if err := store.Reset(c.Request().Context()); err != nil {
		logger := requestLogger(c)
		logger.Error().Err(err).Msg("Failed to reset state")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to reset state"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Fitness state reset"})
}

// exportDocument mirrors the original client's export file layout.
type exportDocument struct {
	UserProfile          *state.Profile       `json:"userProfile"`
	FitnessState         *state.State         `json:"fitnessState"`
	MedicalConsultations []state.Consultation `json:"medicalConsultations"`
	ExportDate           time.Time            `json:"exportDate"`
	Version              string               `json:"version"`
}

func (s *Server) exportHandler(c echo.Context) error {
	store, _, err := s.sessionStore(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to establish session"})
	}
	ctx := c.Request().Context()

	snapshot := store.Current(ctx)
	doc := exportDocument{
		FitnessState: &snapshot,
		ExportDate:   time.Now(),
		Version:      "1.0",
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profile, err := store.Profile(gctx)
		doc.UserProfile = profile
		return err
	})
	g.Go(func() error {
		consultations, err := store.Consultations(gctx)
		doc.MedicalConsultations = consultations
		return err
	})
	if err := g.Wait(); err != nil {
		logger := requestLogger(c)
		logger.Error().Err(err).Msg("Failed to gather export data")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to export data"})
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="fitness-data.json"`)
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) importHandler(c echo.Context) error {
	var doc exportDocument
	if err := c.Bind(&doc); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid import body"})
	}
	if doc.Version == "" || doc.UserProfile == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid data file format"})
	}

	store, _, err := s.sessionStore(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to establish session"})
	}
	ctx := c.Request().Context()

	if err := store.SaveProfile(ctx, doc.UserProfile); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to import profile"})
	}
	if doc.FitnessState != nil {
		if err := store.Restore(ctx, doc.FitnessState); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to import state"})
		}
	}
	if doc.MedicalConsultations != nil {
		if err := store.ReplaceConsultations(ctx, doc.MedicalConsultations); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to import consultations"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Data imported"})
}

func (s *Server) stateSocketHandler(c echo.Context) error {
	_, sid, err := s.sessionStore(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to establish session"})
	}

	conn, err := utility.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	utility.RegisterClient(sid, conn)

	// Hold the connection until the client goes away. Incoming messages are
	// discarded; the socket is push-only.
	go func() {
		defer func() {
			utility.UnregisterClient(sid)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

func (s *Server) healthHandler(c echo.Context) error {
	stats := echo.Map{
		"status":     "up",
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats["cpu_percent"] = percents[0]
	}
	if info, err := host.Info(); err == nil {
		stats["host_uptime_s"] = info.Uptime
	}

	return c.JSON(http.StatusOK, stats)
}
