/*
Package dispatch runs one request/response cycle against an AI service:
read state, compose the prompt, call the completion API, parse the response,
update and persist the state. It is the single mutator of FitnessState.
*/
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ansinwind/25Summer-FitnessAgent/internal/completion"
	"github.com/Ansinwind/25Summer-FitnessAgent/internal/prompt"
	"github.com/Ansinwind/25Summer-FitnessAgent/internal/state"
	"github.com/Ansinwind/25Summer-FitnessAgent/internal/utility"
)

// Service identifies which AI service a request targets.
type Service string

const (
	ServicePlan    Service = "A" // workout/diet planning
	ServiceRoute   Service = "B" // running-route planning
	ServiceMedical Service = "C" // medical consultation
)

// Request is one dispatch call.
type Request struct {
	Service       Service
	Profile       *state.Profile
	CustomRequest string
}

// Gateway executes dispatch cycles against one session's store.
type Gateway struct {
	store  *state.Store
	client completion.Client
	log    zerolog.Logger
	now    func() time.Time
}

func New(store *state.Store, client completion.Client, logger zerolog.Logger) *Gateway {
	return &Gateway{store: store, client: client, log: logger, now: time.Now}
}

// Dispatch runs the full cycle. Prompts are composed from a state snapshot;
// mutation happens only after a fully parsed response, under the store's
// lock, so cancellation or failure at the network boundary leaves the state
// untouched and concurrent dispatches in the same session never interleave
// half-applied writes.
func (g *Gateway) Dispatch(ctx context.Context, req Request) Result {
	switch req.Service {
	case ServicePlan, ServiceRoute, ServiceMedical:
	default:
		return Failure(ErrInvalidService, fmt.Sprintf("unknown service %q", string(req.Service)))
	}

	st := g.store.Current(ctx)
	pctx := prompt.ContextFrom(&st)

	var composed string
	switch req.Service {
	case ServicePlan:
		composed = prompt.ComposePlan(req.Profile, req.CustomRequest, pctx)
	case ServiceRoute:
		composed = prompt.ComposeRoute(req.CustomRequest, pctx)
	case ServiceMedical:
		composed = prompt.ComposeMedical(req.Profile, req.CustomRequest, pctx)
	}

	text, err := g.client.Complete(ctx, composed)
	if err != nil {
		g.log.Error().Err(err).Str("service", string(req.Service)).Msg("Completion call failed")
		return Failure(ErrNetwork, err.Error())
	}

	switch req.Service {
	case ServicePlan:
		return g.applyPlan(ctx, text)
	case ServiceRoute:
		return g.applyRoute(ctx, text)
	default:
		return g.applyMedical(ctx, req.CustomRequest, text)
	}
}

// planDocument checks that extracted JSON really is a plan: both the
// workout and diet sub-objects must be present.
type planDocument struct {
	WorkoutPlan json.RawMessage `json:"workoutPlan"`
	DietPlan    json.RawMessage `json:"dietPlan"`
}

func (g *Gateway) applyPlan(ctx context.Context, text string) Result {
	raw, ok := utility.ExtractJSON(text)
	if !ok {
		g.log.Warn().Msg("Plan response carried no extractable JSON, returning text only")
		return PartialSuccess(text)
	}
	var doc planDocument
	if err := json.Unmarshal(raw, &doc); err != nil || !jsonPresent(doc.WorkoutPlan) || !jsonPresent(doc.DietPlan) {
		g.log.Warn().Msg("Plan JSON is missing workoutPlan or dietPlan, returning text only")
		return PartialSuccess(text)
	}

	g.persist(ctx, func(st *state.State) {
		st.CurrentPlan = raw
		st.EnergyLevel = state.DeriveEnergyLevel(raw)
	})
	return Success(text, raw)
}

// routeDocument checks that extracted JSON carries start/end coordinates.
type routeDocument struct {
	Start []float64 `json:"start"`
	End   []float64 `json:"end"`
}

func (g *Gateway) applyRoute(ctx context.Context, text string) Result {
	raw, ok := utility.ExtractJSON(text)
	if !ok {
		g.log.Warn().Msg("Route response carried no extractable JSON, returning text only")
		return PartialSuccess(text)
	}
	var doc routeDocument
	if err := json.Unmarshal(raw, &doc); err != nil || len(doc.Start) < 2 || len(doc.End) < 2 {
		g.log.Warn().Msg("Route JSON is missing start/end coordinates, returning text only")
		return PartialSuccess(text)
	}

	g.persist(ctx, func(st *state.State) {
		st.CurrentRoute = raw
		now := g.now()
		st.LastActivity = &now
	})
	return Success(text, raw)
}

func (g *Gateway) applyMedical(ctx context.Context, question, text string) Result {
	g.persist(ctx, func(st *state.State) {
		st.RecentMedicalAdvice = text
		st.DailyStatus = state.DeriveDailyStatus(text)
	})

	c := state.Consultation{
		ID:          g.now().UnixMilli(),
		Timestamp:   g.now(),
		UserMessage: question,
		AIResponse:  text,
	}
	if err := g.store.AppendConsultation(ctx, c); err != nil {
		g.log.Warn().Err(err).Msg("Failed to record consultation")
	}
	return Success(text, nil)
}

// persist applies the mutation and saves, logging storage failures without
// surfacing them: the dispatch itself succeeded and the in-memory state
// remains authoritative.
func (g *Gateway) persist(ctx context.Context, mutate func(*state.State)) {
	if err := g.store.Update(ctx, mutate); err != nil {
		g.log.Warn().Err(err).Str("error_kind", string(ErrStorage)).Msg("Failed to persist state, in-memory state remains authoritative")
	}
}

// jsonPresent reports whether a raw field exists and is not JSON null.
func jsonPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
