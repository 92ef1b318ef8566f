package planner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	response string
	err      error
}

func (f *fakeClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.response}}},
	}, nil
}

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestGenerateNilClientReturnsGenesisFallback(t *testing.T) {
	p := New(nil, "", nil)
	p.Now = fixedNow
	plan := p.Generate(context.Background(), nil)

	require.Equal(t, MissionFallback, plan.MissionType)
	require.Len(t, plan.SeedQueries, 5)
	require.NotEmpty(t, plan.ReasoningTrace.Conclusion)
}

func TestGenerateNilClientAdaptiveContinuesOnSuccess(t *testing.T) {
	p := New(nil, "", nil)
	p.Now = fixedNow
	plan := p.Generate(context.Background(), &PriorReport{NewSitesFound: 4, TotalActive: 20, Serialized: "{}"})

	require.Equal(t, MissionFallback, plan.MissionType)
	require.Equal(t, "live sports stream free online", plan.SeedQueries[0])
}

func TestGenerateNilClientAdaptivePivotsOnFailure(t *testing.T) {
	p := New(nil, "", nil)
	p.Now = fixedNow
	plan := p.Generate(context.Background(), &PriorReport{NewSitesFound: 0, TotalActive: 20, Serialized: "{}"})

	require.Equal(t, MissionFallback, plan.MissionType)
	require.Equal(t, "sports streaming reddit communities", plan.SeedQueries[0])
}

func TestGenerateParsesCleanGenesisJSON(t *testing.T) {
	raw, err := json.Marshal(MissionPlan{
		Timestamp:   "2026-01-01T00:00:00Z",
		SeedQueries: []string{"a", "b", "c", "d", "e"},
		ReasoningTrace: ReasoningTrace{
			InitialAnalysis: "x", StrategicGoal: "y", TacticalPlan: "z", Conclusion: "w",
		},
		Confidence: 80,
	})
	require.NoError(t, err)

	p := New(&fakeClient{response: string(raw)}, "test-model", nil)
	plan := p.Generate(context.Background(), nil)

	require.Equal(t, MissionGenesis, plan.MissionType)
	require.Len(t, plan.SeedQueries, 5)
	require.Equal(t, 80, plan.Confidence)
}

func TestGenerateFallsBackOnInvalidJSON(t *testing.T) {
	p := New(&fakeClient{response: "not json at all"}, "test-model", nil)
	p.Now = fixedNow
	plan := p.Generate(context.Background(), nil)

	require.Equal(t, MissionFallback, plan.MissionType)
}

func TestGenerateFallsBackOnLLMError(t *testing.T) {
	p := New(&fakeClient{err: errors.New("boom")}, "test-model", nil)
	p.Now = fixedNow
	plan := p.Generate(context.Background(), nil)

	require.Equal(t, MissionFallback, plan.MissionType)
}

func TestGenerateAdaptiveSetsMissionType(t *testing.T) {
	raw, err := json.Marshal(MissionPlan{
		SeedQueries:    []string{"a", "b", "c", "d", "e"},
		ReasoningTrace: ReasoningTrace{InitialAnalysis: "x", StrategicGoal: "y", TacticalPlan: "z", Conclusion: "w"},
		Confidence:     70,
	})
	require.NoError(t, err)

	p := New(&fakeClient{response: string(raw)}, "test-model", nil)
	plan := p.Generate(context.Background(), &PriorReport{NewSitesFound: 2, TotalActive: 10, Serialized: "{}"})

	require.Equal(t, MissionAdaptive, plan.MissionType)
}
