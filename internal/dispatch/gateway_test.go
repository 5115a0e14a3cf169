package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ansinwind/25Summer-FitnessAgent/internal/state"
	"github.com/Ansinwind/25Summer-FitnessAgent/internal/storage"
)

// fakeCompleter returns a canned response and remembers the last prompt.
// Safe for concurrent dispatches.
type fakeCompleter struct {
	mu       sync.Mutex
	response string
	err      error
	prompt   string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeCompleter) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompt
}

func newTestGateway(t *testing.T, completer *fakeCompleter) (*Gateway, *state.Store) {
	t.Helper()
	store := state.NewStore(storage.NewMemory(), "test-session", zerolog.Nop())
	return New(store, completer, zerolog.Nop()), store
}

func planResponse(exercises int) string {
	days := make([]map[string]any, 0, 1)
	list := make([]map[string]string, exercises)
	for i := range list {
		list[i] = map[string]string{"name": fmt.Sprintf("动作%d", i+1)}
	}
	days = append(days, map[string]any{"exercises": list})
	doc, _ := json.Marshal(map[string]any{
		"workoutPlan": map[string]any{"trainingDays": days},
		"dietPlan":    map[string]any{"meals": []string{"早餐"}},
	})
	return "这是为你定制的计划：\n```json\n" + string(doc) + "\n```"
}

func TestDispatchInvalidService(t *testing.T) {
	g, _ := newTestGateway(t, &fakeCompleter{response: "ignored"})

	res := g.Dispatch(context.Background(), Request{Service: "D"})
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Equal(t, ErrInvalidService, res.Kind)
}

func TestDispatchPlanSuccessDerivesEnergy(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{response: planResponse(22)}
	g, store := newTestGateway(t, completer)

	res := g.Dispatch(ctx, Request{Service: ServicePlan, CustomRequest: "增肌计划"})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.NotEmpty(t, res.Structured)
	assert.Contains(t, completer.lastPrompt(), "个性化需求: \"增肌计划\"")

	st := store.Current(ctx)
	assert.Equal(t, 3, st.EnergyLevel, "22 exercises is a heavy week")
	assert.JSONEq(t, string(res.Structured), string(st.CurrentPlan))
}

func TestDispatchPlanPartialSuccessLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	g, store := newTestGateway(t, &fakeCompleter{response: "抱歉，我只能给出文字建议：多做深蹲。"})

	before := store.Current(ctx)
	priorPlan := string(before.CurrentPlan)
	priorEnergy := before.EnergyLevel

	res := g.Dispatch(ctx, Request{Service: ServicePlan})
	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.Equal(t, "抱歉，我只能给出文字建议：多做深蹲。", res.Text)
	assert.Empty(t, res.Structured)

	after := store.Current(ctx)
	assert.Equal(t, priorPlan, string(after.CurrentPlan))
	assert.Equal(t, priorEnergy, after.EnergyLevel)
}

func TestDispatchPlanPartialWhenDietPlanMissing(t *testing.T) {
	g, _ := newTestGateway(t, &fakeCompleter{
		response: "```json\n{\"workoutPlan\":{\"trainingDays\":[]}}\n```",
	})
	res := g.Dispatch(context.Background(), Request{Service: ServicePlan})
	assert.Equal(t, OutcomePartial, res.Outcome)
}

func TestDispatchRouteSuccess(t *testing.T) {
	ctx := context.Background()
	g, store := newTestGateway(t, &fakeCompleter{
		response: "推荐沿河路线。{\"start\":[116.31,39.98],\"end\":[116.35,39.99],\"path\":[[116.31,39.98],[116.35,39.99]]}",
	})

	res := g.Dispatch(ctx, Request{Service: ServiceRoute, CustomRequest: "五公里慢跑"})
	require.Equal(t, OutcomeSuccess, res.Outcome)

	st := store.Current(ctx)
	require.NotNil(t, st.LastActivity)
	var route struct {
		Start []float64 `json:"start"`
		End   []float64 `json:"end"`
	}
	require.NoError(t, json.Unmarshal(st.CurrentRoute, &route))
	assert.Equal(t, []float64{116.31, 39.98}, route.Start)
}

func TestDispatchRoutePartialWithoutCoordinates(t *testing.T) {
	ctx := context.Background()
	g, store := newTestGateway(t, &fakeCompleter{response: "建议沿着公园外环跑一圈。"})

	res := g.Dispatch(ctx, Request{Service: ServiceRoute})
	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.Empty(t, store.Current(ctx).CurrentRoute)
	assert.Nil(t, store.Current(ctx).LastActivity)
}

func TestDispatchMedicalUpdatesStatusAndHistory(t *testing.T) {
	ctx := context.Background()
	advice := "根据你的描述，建议立即停止跑步并休息，必要时就医。"
	g, store := newTestGateway(t, &fakeCompleter{response: advice})

	res := g.Dispatch(ctx, Request{Service: ServiceMedical, CustomRequest: "跑步时膝盖刺痛"})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, advice, res.Text)
	assert.Empty(t, res.Structured)

	st := store.Current(ctx)
	assert.Equal(t, state.StatusInjured, st.DailyStatus)
	assert.Equal(t, advice, st.RecentMedicalAdvice)

	list, err := store.Consultations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "跑步时膝盖刺痛", list[0].UserMessage)
	assert.Equal(t, advice, list[0].AIResponse)
}

func TestDispatchNetworkFailureLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	g, store := newTestGateway(t, &fakeCompleter{err: errors.New("connection refused")})

	res := g.Dispatch(ctx, Request{Service: ServiceMedical, CustomRequest: "有点头晕"})
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Equal(t, ErrNetwork, res.Kind)
	assert.Contains(t, res.Message, "connection refused")

	st := store.Current(ctx)
	assert.Equal(t, state.StatusNormal, st.DailyStatus)
	assert.Empty(t, st.RecentMedicalAdvice)

	list, err := store.Consultations(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDispatchConcurrentSameSession(t *testing.T) {
	ctx := context.Background()
	g, store := newTestGateway(t, &fakeCompleter{response: planResponse(22)})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res := g.Dispatch(ctx, Request{Service: ServicePlan})
			assert.Equal(t, OutcomeSuccess, res.Outcome)
		}()
		go func() {
			defer wg.Done()
			st := store.Current(ctx)
			assert.GreaterOrEqual(t, st.EnergyLevel, state.MinEnergyLevel)
			assert.LessOrEqual(t, st.EnergyLevel, state.MaxEnergyLevel)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, store.Current(ctx).EnergyLevel)
}

func TestDispatchFeedsStateBackIntoPrompts(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{response: "注意补水，适度运动即可。"}
	g, store := newTestGateway(t, completer)

	res := g.Dispatch(ctx, Request{Service: ServiceMedical, CustomRequest: "今天能练吗"})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Equal(t, state.StatusTired, store.Current(ctx).DailyStatus)

	completer.response = planResponse(8)
	res = g.Dispatch(ctx, Request{Service: ServicePlan})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Contains(t, completer.lastPrompt(), "最近医疗建议：注意补水，适度运动即可。")
	assert.True(t, strings.Contains(completer.lastPrompt(), "当前状态：tired"))
}
