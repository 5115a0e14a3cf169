package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Ansinwind/25Summer-FitnessAgent/internal/state"
)

// Context carries the cross-service state injected into prompts: the current
// status line plus whichever other services' outputs exist.
type Context struct {
	DailyStatus   state.DailyStatus
	EnergyLevel   int
	CurrentPlan   json.RawMessage
	CurrentRoute  json.RawMessage
	MedicalAdvice string
	Constraints   []state.Constraint
}

// ContextFrom derives the prompt context from the session's current state.
func ContextFrom(st *state.State) Context {
	return Context{
		DailyStatus:   st.DailyStatus,
		EnergyLevel:   st.EnergyLevel,
		CurrentPlan:   st.CurrentPlan,
		CurrentRoute:  st.CurrentRoute,
		MedicalAdvice: st.RecentMedicalAdvice,
		Constraints:   state.DeriveHealthConstraints(st.RecentMedicalAdvice),
	}
}

var goalText = map[string]string{
	"muscle_gain": "增肌",
	"weight_loss": "减脂塑形",
}

var frequencyText = map[string]string{
	"3-4_times_week": "每周3-4次",
	"1-2_times_week": "每周1-2次",
	"5_times_week":   "每周5次以上",
}

// routeAdvice maps each health constraint to the route-preference language
// appended to service B prompts.
var routeAdvice = map[state.Constraint]string{
	state.ConstraintAvoidHighIntensity:   "健康考虑：用户需要避免高强度运动，请推荐平缓、低强度的路线",
	state.ConstraintKneeProtection:       "健康考虑：用户有膝盖问题，请推荐对膝盖友好的路线（避免陡坡、台阶）",
	state.ConstraintCardiacConsideration: "健康考虑：用户有心脏问题，请推荐短距离、有医疗设施的路线",
	state.ConstraintRespiratoryCare:      "健康考虑：用户有呼吸问题，请推荐空气清新、低强度的路线",
	state.ConstraintBackProtection:       "健康考虑：用户有腰部问题，请推荐平坦、无颠簸的路线",
}

func displayGoal(goal string) string {
	if text, ok := goalText[goal]; ok {
		return text
	}
	return "保持健康"
}

func displayGender(gender string) string {
	switch gender {
	case "male":
		return "男性"
	case "female":
		return "女性"
	default:
		return "未知"
	}
}

func displayFrequency(frequency string) string {
	if text, ok := frequencyText[frequency]; ok {
		return text
	}
	return "未知"
}

// num renders a profile number, or 未知 when unset.
func num(v float64) string {
	if v == 0 {
		return "未知"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func age(v int) string {
	if v == 0 {
		return "未知"
	}
	return strconv.Itoa(v)
}

// compactJSON renders a raw payload as a single-line JSON summary.
func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func statusLine(ctx Context) string {
	return fmt.Sprintf("当前状态：%s，能量水平：%d/10", ctx.DailyStatus, ctx.EnergyLevel)
}

// planBase is the personalized base block of the plan prompt: profile fields,
// optional body-composition and medical fields, activity preferences, the
// last three feedback entries, and the free-text custom request.
func planBase(p *state.Profile, custom string) string {
	if p == nil {
		p = &state.Profile{}
	}

	var b strings.Builder
	b.WriteString("你是一个专业的健身教练和营养师。请为以下用户制定一个为期一周的健身和饮食计划。\n")
	b.WriteString("用户基本信息：\n")
	fmt.Fprintf(&b, "- 身高: %s cm\n", num(p.Height))
	fmt.Fprintf(&b, "- 体重: %s kg\n", num(p.Weight))
	fmt.Fprintf(&b, "- 年龄: %s 岁\n", age(p.Age))
	fmt.Fprintf(&b, "- 性别: %s\n", displayGender(p.Gender))
	fmt.Fprintf(&b, "- 目标: %s\n", displayGoal(p.Goal))
	fmt.Fprintf(&b, "- 锻炼频率: %s", displayFrequency(p.Frequency))

	if p.BodyFat > 0 {
		fmt.Fprintf(&b, "\n- 体脂率: %s%%", num(p.BodyFat))
	}
	if p.MetabolicRate > 0 {
		fmt.Fprintf(&b, "\n- 基础代谢率: %s kcal/天", num(p.MetabolicRate))
	}
	if p.MedicalHistory != "" {
		fmt.Fprintf(&b, "\n- 过往病史: %s", p.MedicalHistory)
	}
	if p.CurrentMedications != "" {
		fmt.Fprintf(&b, "\n- 当前用药: %s", p.CurrentMedications)
	}
	if p.Allergies != "" {
		fmt.Fprintf(&b, "\n- 过敏史: %s", p.Allergies)
	}
	if len(p.PreferredActivities) > 0 {
		fmt.Fprintf(&b, "\n- 运动偏好: %s", strings.Join(p.PreferredActivities, ", "))
	}

	if len(p.FeedbackHistory) > 0 {
		b.WriteString("\n- 历史反馈记录:")
		for _, fb := range lastN(p.FeedbackHistory, 3) {
			adjustments := strings.Join(fb.Adjustments, ", ")
			if adjustments == "" {
				adjustments = "无"
			}
			fmt.Fprintf(&b, "\n  * %s: 强度%d/5, 调整建议: %s", fb.Date, fb.Intensity, adjustments)
			if fb.DiscomfortNotes != "" {
				fmt.Fprintf(&b, ", 不适症状: %s", fb.DiscomfortNotes)
			}
		}
	}

	if custom == "" {
		custom = "无特殊要求"
	}
	fmt.Fprintf(&b, "\n个性化需求: \"%s\"\n\n", custom)
	b.WriteString("请根据以上信息制定详细的锻炼和饮食计划，锻炼和饮食建议分开。\n")
	b.WriteString("请以JSON格式返回，包含两个主键: \"workoutPlan\" 和 \"dietPlan\"，其中 \"workoutPlan\" 包含 \"trainingDays\" 数组，每个训练日列出 \"exercises\" 动作清单。")
	return b.String()
}

// medicalBase is the base block of the medical consultation prompt: the
// question, profile basics, medical history fields, and the last two
// feedback entries.
func medicalBase(p *state.Profile, custom string) string {
	if p == nil {
		p = &state.Profile{}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "用户咨询: \"%s\"\n\n用户基本信息：", custom)
	fmt.Fprintf(&b, "\n- 身高: %s cm", num(p.Height))
	fmt.Fprintf(&b, "\n- 体重: %s kg", num(p.Weight))
	fmt.Fprintf(&b, "\n- 年龄: %s 岁", age(p.Age))
	fmt.Fprintf(&b, "\n- 性别: %s", displayGender(p.Gender))

	if p.MedicalHistory != "" {
		fmt.Fprintf(&b, "\n- 过往病史: %s", p.MedicalHistory)
	}
	if p.CurrentMedications != "" {
		fmt.Fprintf(&b, "\n- 当前用药: %s", p.CurrentMedications)
	}
	if p.Allergies != "" {
		fmt.Fprintf(&b, "\n- 过敏史: %s", p.Allergies)
	}

	if len(p.FeedbackHistory) > 0 {
		b.WriteString("\n- 最近运动反馈:")
		for _, fb := range lastN(p.FeedbackHistory, 2) {
			fmt.Fprintf(&b, "\n  * %s: 强度%d/5", fb.Date, fb.Intensity)
			if fb.DiscomfortNotes != "" {
				fmt.Fprintf(&b, ", 不适症状: %s", fb.DiscomfortNotes)
			}
		}
	}

	b.WriteString("\n\n请根据以上信息提供专业的运动医疗建议和分析。")
	return b.String()
}

func lastN(entries []state.Feedback, n int) []state.Feedback {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

// ComposePlan builds the service A prompt: the personalized base block, then
// the route summary, the recent medical advice, and the status line.
func ComposePlan(p *state.Profile, custom string, ctx Context) string {
	return NewBuilder().
		Section(planBase(p, custom)).
		Optional(len(ctx.CurrentRoute) > 0, "最近路线执行情况："+compactJSON(ctx.CurrentRoute)).
		Optional(ctx.MedicalAdvice != "", "最近医疗建议："+ctx.MedicalAdvice).
		Section(statusLine(ctx)).
		Build()
}

// ComposeRoute builds the service B prompt: the request block, then the
// current plan summary, route-preference language for each health
// constraint, and the status line.
func ComposeRoute(custom string, ctx Context) string {
	b := NewBuilder().
		Section(fmt.Sprintf("用户需求: \"%s\"\n请在回复中附上JSON格式的路线坐标，包含 \"start\" 和 \"end\" 两个 [经度, 纬度] 数组，可附带完整的 \"path\" 坐标数组。", custom)).
		Optional(len(ctx.CurrentPlan) > 0, "当前训练计划："+compactJSON(ctx.CurrentPlan))
	for _, c := range ctx.Constraints {
		if line, ok := routeAdvice[c]; ok {
			b.Section(line)
		}
	}
	return b.Section(statusLine(ctx)).Build()
}

// ComposeMedical builds the service C prompt: the consultation base block,
// then the current plan summary, the recent route, and the status line.
func ComposeMedical(p *state.Profile, custom string, ctx Context) string {
	return NewBuilder().
		Section(medicalBase(p, custom)).
		Optional(len(ctx.CurrentPlan) > 0, "当前训练计划："+compactJSON(ctx.CurrentPlan)).
		Optional(len(ctx.CurrentRoute) > 0, "最近路线执行："+compactJSON(ctx.CurrentRoute)).
		Section(statusLine(ctx)).
		Build()
}
