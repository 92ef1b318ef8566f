package analyzer

import (
	"context"
	"testing"

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
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.response}},
		},
	}, nil
}

func TestAnalyzeParsesCleanJSON(t *testing.T) {
	client := &fakeClient{response: `{"service_name":"StreamEast","is_sports_streaming_site":true,"full_reasoning_process":{"initial_analysis":"a","hypothesis":"b","self_critique":"c","conclusion":"d"},"final_confidence_score":92}`}
	a := New(client, "test-model", nil)
	v := a.Analyze(context.Background(), "Watch NFL live free", "https://streameast.example/")

	require.Equal(t, "StreamEast", v.ServiceName)
	require.True(t, v.IsSportsStreamingSite)
	require.Equal(t, 92, v.FinalConfidenceScore)
	require.Empty(t, v.ParseError)
}

func TestAnalyzeFallbackExtractsEmbeddedJSON(t *testing.T) {
	client := &fakeClient{response: `Sure! Here is my analysis: {"service_name":"Foo","is_sports_streaming_site":false,"full_reasoning_process":{"initial_analysis":"a","hypothesis":"b","self_critique":"c","conclusion":"d"},"final_confidence_score":10} Hope that helps!`}
	a := New(client, "test-model", nil)
	v := a.Analyze(context.Background(), "irrelevant", "https://example.com/")

	require.Equal(t, "Foo", v.ServiceName)
	require.False(t, v.IsSportsStreamingSite)
	require.Empty(t, v.ParseError)
}

func TestAnalyzeNoJSONReturnsNegativeDefaultWithParseError(t *testing.T) {
	client := &fakeClient{response: "Sure! Here is analysis of the website, no structured output though."}
	a := New(client, "test-model", nil)
	v := a.Analyze(context.Background(), "irrelevant", "https://example.com/")

	require.Equal(t, "Unknown", v.ServiceName)
	require.False(t, v.IsSportsStreamingSite)
	require.Zero(t, v.FinalConfidenceScore)
	require.NotEmpty(t, v.ParseError)
}

func TestAnalyzeMissingFieldsFilledWithSentinels(t *testing.T) {
	client := &fakeClient{response: `{"is_sports_streaming_site":true}`}
	a := New(client, "test-model", nil)
	v := a.Analyze(context.Background(), "irrelevant", "https://example.com/")

	require.Equal(t, "Unknown", v.ServiceName)
	require.Equal(t, "Unknown", v.FullReasoningProcess.InitialAnalysis)
	require.True(t, v.IsSportsStreamingSite)
}

func TestAnalyzeNilClientReturnsCredentialUnavailableDefault(t *testing.T) {
	a := New(nil, "test-model", nil)
	v := a.Analyze(context.Background(), "irrelevant", "https://example.com/")

	require.False(t, v.IsSportsStreamingSite)
	require.NotEmpty(t, v.Error)
}

func TestAnalyzeLLMErrorReturnsNegativeDefault(t *testing.T) {
	client := &fakeClient{err: context.DeadlineExceeded}
	a := New(client, "test-model", nil)
	v := a.Analyze(context.Background(), "irrelevant", "https://example.com/")

	require.False(t, v.IsSportsStreamingSite)
	require.NotEmpty(t, v.Error)
}
