package state

import (
	"encoding/json"
	"strings"
)

// planEnvelope is the slice of the plan payload the derivation rules need.
// Everything else in the AI's plan JSON is ignored here.
type planEnvelope struct {
	WorkoutPlan *struct {
		TrainingDays []struct {
			Exercises []struct {
				Name string `json:"name"`
			} `json:"exercises"`
		} `json:"trainingDays"`
	} `json:"workoutPlan"`
}

// totalExercises counts exercises across all training days. Returns -1 when
// the payload is absent or does not carry a workout plan, so callers can
// distinguish "no plan" from "empty plan".
func totalExercises(plan json.RawMessage) int {
	if len(plan) == 0 {
		return -1
	}
	var env planEnvelope
	if err := json.Unmarshal(plan, &env); err != nil || env.WorkoutPlan == nil {
		return -1
	}
	total := 0
	for _, day := range env.WorkoutPlan.TrainingDays {
		total += len(day.Exercises)
	}
	return total
}

// DeriveEnergyLevel maps the plan's total exercise count onto the 1-10
// energy scale: the heavier the plan, the lower the remaining energy.
// Absent or malformed plans yield the default of 5.
func DeriveEnergyLevel(plan json.RawMessage) int {
	total := totalExercises(plan)
	if total < 0 {
		return defaultEnergyLevel
	}
	switch {
	case total > 20:
		return 3
	case total > 15:
		return 4
	case total > 10:
		return 5
	case total > 5:
		return 6
	default:
		return 7
	}
}

// Status keyword sets, checked in priority order: the first matching set
// wins, so advice mentioning both 停止 and 休息 reads as injured.
var statusKeywords = []struct {
	status   DailyStatus
	keywords []string
}{
	{StatusInjured, []string{"停止", "禁止", "避免"}},
	{StatusRecovering, []string{"休息", "恢复", "疲劳"}},
	{StatusTired, []string{"注意", "小心", "适度"}},
}

// DeriveDailyStatus classifies the most recent medical advice text.
func DeriveDailyStatus(advice string) DailyStatus {
	if advice == "" {
		return StatusNormal
	}
	lowered := strings.ToLower(advice)
	for _, set := range statusKeywords {
		for _, kw := range set.keywords {
			if strings.Contains(lowered, kw) {
				return set.status
			}
		}
	}
	return StatusNormal
}

var constraintKeywords = []struct {
	constraint Constraint
	keywords   []string
}{
	{ConstraintAvoidHighIntensity, []string{"避免高强度", "降低强度"}},
	{ConstraintKneeProtection, []string{"膝盖", "膝关节"}},
	{ConstraintCardiacConsideration, []string{"心脏", "心血管"}},
	{ConstraintRespiratoryCare, []string{"哮喘", "呼吸"}},
	{ConstraintBackProtection, []string{"腰部", "腰椎"}},
}

// DeriveHealthConstraints extracts the set of health tags mentioned in the
// advice. Multiple tags may co-occur; the returned order is fixed, so the
// result does not depend on where keywords appear in the text.
func DeriveHealthConstraints(advice string) []Constraint {
	if advice == "" {
		return nil
	}
	lowered := strings.ToLower(advice)
	var constraints []Constraint
	for _, set := range constraintKeywords {
		for _, kw := range set.keywords {
			if strings.Contains(lowered, kw) {
				constraints = append(constraints, set.constraint)
				break
			}
		}
	}
	return constraints
}

// DeriveTrainingIntensity classifies the plan's load by exercise count.
func DeriveTrainingIntensity(plan json.RawMessage) Intensity {
	total := totalExercises(plan)
	switch {
	case total > 20:
		return IntensityHigh
	case total > 10:
		return IntensityMedium
	default:
		return IntensityLow
	}
}

var trainingTypeKeywords = []struct {
	kind     string
	keywords []string
}{
	{"cardio", []string{"跑步", "有氧", "cardio"}},
	{"strength", []string{"力量", "举重", "strength"}},
	{"flexibility", []string{"拉伸", "瑜伽", "yoga"}},
}

// DeriveTrainingType scans exercise names across all training days and
// returns the de-duplicated set of matched training categories.
func DeriveTrainingType(plan json.RawMessage) []string {
	if len(plan) == 0 {
		return nil
	}
	var env planEnvelope
	if err := json.Unmarshal(plan, &env); err != nil || env.WorkoutPlan == nil {
		return nil
	}

	seen := make(map[string]bool)
	var types []string
	for _, day := range env.WorkoutPlan.TrainingDays {
		for _, ex := range day.Exercises {
			name := strings.ToLower(ex.Name)
			for _, family := range trainingTypeKeywords {
				if seen[family.kind] {
					continue
				}
				for _, kw := range family.keywords {
					if strings.Contains(name, kw) {
						seen[family.kind] = true
						types = append(types, family.kind)
						break
					}
				}
			}
		}
	}
	return types
}
