/*
Package state owns the shared FitnessState record that ties the three AI
services together, the pure derivation rules computed from service outputs,
and the per-session stores that persist it.
*/
package state

import (
	"encoding/json"
	"time"
)

// DailyStatus is derived solely from keyword matching in the most recent
// medical advice. It is never set directly by callers.
type DailyStatus string

const (
	StatusNormal     DailyStatus = "normal"
	StatusTired      DailyStatus = "tired"
	StatusInjured    DailyStatus = "injured"
	StatusRecovering DailyStatus = "recovering"
)

// Intensity classifies the current training plan's overall load.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// Constraint is a symbolic health tag extracted from medical advice, used to
// bias route and plan prompts.
type Constraint string

const (
	ConstraintAvoidHighIntensity   Constraint = "avoid_high_intensity"
	ConstraintKneeProtection       Constraint = "knee_protection"
	ConstraintCardiacConsideration Constraint = "cardiac_consideration"
	ConstraintRespiratoryCare      Constraint = "respiratory_care"
	ConstraintBackProtection       Constraint = "back_protection"
)

const (
	defaultEnergyLevel = 5
	MinEnergyLevel     = 1
	MaxEnergyLevel     = 10
)

// State is the single shared mutable record, one per client session. Plan
// and route payloads stay opaque raw JSON: the AI decides their exact shape
// and the derivation functions parse what they need defensively.
type State struct {
	CurrentPlan         json.RawMessage `json:"currentPlan,omitempty"`
	CurrentRoute        json.RawMessage `json:"currentRoute,omitempty"`
	RecentMedicalAdvice string          `json:"recentMedicalAdvice,omitempty"`
	DailyStatus         DailyStatus     `json:"dailyStatus"`
	EnergyLevel         int             `json:"energyLevel"`
	LastActivity        *time.Time      `json:"lastActivity,omitempty"`
	LastUpdate          time.Time       `json:"lastUpdate"`
}

// Default returns the initial state used at first load and whenever the
// stored document is missing or malformed.
func Default() *State {
	return &State{
		DailyStatus: StatusNormal,
		EnergyLevel: defaultEnergyLevel,
	}
}

// Feedback is one entry of the profile's workout feedback history.
type Feedback struct {
	Date            string   `json:"date"`
	Intensity       int      `json:"intensity"`
	Completion      string   `json:"completion,omitempty"`
	Adjustments     []string `json:"adjustments,omitempty"`
	DiscomfortNotes string   `json:"discomfortNotes,omitempty"`
}

// Profile is the user profile consumed by the prompt composer. The core
// treats it as read-only input; the HTTP layer owns writing it.
type Profile struct {
	Height              float64    `json:"height,omitempty"`
	Weight              float64    `json:"weight,omitempty"`
	Age                 int        `json:"age,omitempty"`
	Gender              string     `json:"gender,omitempty"`
	Goal                string     `json:"goal,omitempty"`
	Frequency           string     `json:"frequency,omitempty"`
	BodyFat             float64    `json:"body_fat,omitempty"`
	MetabolicRate       float64    `json:"metabolic_rate,omitempty"`
	MedicalHistory      string     `json:"medical_history,omitempty"`
	CurrentMedications  string     `json:"current_medications,omitempty"`
	Allergies           string     `json:"allergies,omitempty"`
	PreferredActivities []string   `json:"preferred_activities,omitempty"`
	FeedbackHistory     []Feedback `json:"feedbackHistory,omitempty"`
}

// Consultation is one saved medical Q&A exchange.
type Consultation struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"userMessage"`
	AIResponse  string    `json:"aiResponse"`
}

// maxConsultations bounds the stored consultation history.
const maxConsultations = 50
