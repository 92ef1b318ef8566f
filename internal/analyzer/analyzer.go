// Package analyzer implements the Cognitive Analyzer (C7): a single-shot,
// JSON-only chat-completion contract that asks an external language model
// for a structured, chain-of-thought-with-self-critique verdict on whether
// a page is a sports-streaming site. Its result enriches the Crawler's
// admission decision; it is never itself a veto in non-strict mode.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rs/zerolog/log"

	"github.com/elliotttmiller/signalscout/internal/cache"
	"github.com/elliotttmiller/signalscout/internal/llm"
)

const maxContentChars = 2000

// Reasoning is the required chain-of-thought-with-self-critique structure.
type Reasoning struct {
	InitialAnalysis string `json:"initial_analysis"`
	Hypothesis      string `json:"hypothesis"`
	SelfCritique    string `json:"self_critique"`
	Conclusion      string `json:"conclusion"`
}

// Verdict is the Cognitive Analyzer's tagged result, matching spec §4.7's
// wire contract exactly plus a ParseError flag for the two-stage parse
// fallback.
type Verdict struct {
	ServiceName            string    `json:"service_name"`
	IsSportsStreamingSite  bool      `json:"is_sports_streaming_site"`
	FullReasoningProcess    Reasoning `json:"full_reasoning_process"`
	FinalConfidenceScore    int       `json:"final_confidence_score"`
	ParseError              string    `json:"parse_error,omitempty"`
	Error                   string    `json:"-"`
}

func negativeDefault(reason string) Verdict {
	return Verdict{
		ServiceName:           "Unknown",
		IsSportsStreamingSite: false,
		FullReasoningProcess: Reasoning{
			InitialAnalysis: "Unknown",
			Hypothesis:      "Unknown",
			SelfCritique:    "Unknown",
			Conclusion:      "Unknown",
		},
		FinalConfidenceScore: 0,
		ParseError:           reason,
	}
}

// Analyzer wraps an llm.Client with the cognitive-analysis prompt contract.
type Analyzer struct {
	Client  llm.Client
	Model   string
	Cache   *cache.LLMCache
	Timeout time.Duration
}

// New builds an Analyzer. A nil client is valid: Analyze will then always
// return the credential-unavailable default, per spec §4.7.
func New(client llm.Client, model string, llmCache *cache.LLMCache) *Analyzer {
	return &Analyzer{Client: client, Model: model, Cache: llmCache, Timeout: 30 * time.Second}
}

// Analyze runs the cognitive verification stage over truncated page text.
// It never returns an error to the caller: every failure mode is encoded
// as a negative-default Verdict with a descriptive Error/ParseError field,
// per spec §4.7 ("never throw to the caller").
func (a *Analyzer) Analyze(ctx context.Context, pageText, url string) Verdict {
	if a == nil || a.Client == nil {
		v := negativeDefault("")
		v.Error = "analyzer credentials not configured"
		return v
	}

	content := pageText
	if len(content) > maxContentChars {
		content = content[:maxContentChars] + "..."
	}

	system := systemPrompt()
	user := userPrompt(url, content)

	if a.Cache != nil {
		key := cache.KeyFrom(a.Model, system+"\n\n"+user)
		if raw, ok, _ := a.Cache.Get(ctx, key); ok {
			if v, err := parseVerdict(string(raw)); err == nil {
				return v
			}
		}
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := a.Client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: a.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.1,
		N:           1,
	})
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("cognitive analyzer call failed")
		v := negativeDefault("")
		v.Error = fmt.Sprintf("llm call failed: %v", err)
		return v
	}
	if len(resp.Choices) == 0 {
		v := negativeDefault("")
		v.Error = "llm returned no choices"
		return v
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	verdict, parseErr := parseVerdict(raw)
	if parseErr != nil {
		log.Warn().Str("url", url).Msg("cognitive analyzer response failed both parse stages")
		return negativeDefault(parseErr.Error())
	}

	if a.Cache != nil {
		if b, err := json.Marshal(verdict); err == nil {
			_ = a.Cache.Save(ctx, cache.KeyFrom(a.Model, system+"\n\n"+user), b)
		}
	}
	return verdict
}

// parseVerdict implements the two-stage parse strategy: direct JSON parse,
// then best-effort extraction of the outermost {...} substring. Missing
// required fields are filled with sentinel values rather than failing the
// parse outright.
func parseVerdict(raw string) (Verdict, error) {
	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		fillSentinels(&v)
		return v, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return Verdict{}, errors.New("no JSON object found in response")
	}
	candidate := raw[start : end+1]
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return Verdict{}, fmt.Errorf("fallback JSON parse failed: %w", err)
	}
	fillSentinels(&v)
	return v, nil
}

func fillSentinels(v *Verdict) {
	if v.ServiceName == "" {
		v.ServiceName = "Unknown"
	}
	if v.FullReasoningProcess.InitialAnalysis == "" {
		v.FullReasoningProcess.InitialAnalysis = "Unknown"
	}
	if v.FullReasoningProcess.Hypothesis == "" {
		v.FullReasoningProcess.Hypothesis = "Unknown"
	}
	if v.FullReasoningProcess.SelfCritique == "" {
		v.FullReasoningProcess.SelfCritique = "Unknown"
	}
	if v.FullReasoningProcess.Conclusion == "" {
		v.FullReasoningProcess.Conclusion = "Unknown"
	}
	if v.FinalConfidenceScore < 0 {
		v.FinalConfidenceScore = 0
	}
	if v.FinalConfidenceScore > 100 {
		v.FinalConfidenceScore = 100
	}
}

func systemPrompt() string {
	return "You are an expert web content analyst. Analyze the provided website text and URL and determine whether the site is a sports-streaming portal. " +
		"Respond ONLY with a single valid JSON object, no narration, matching exactly this schema: " +
		`{"service_name": string, "is_sports_streaming_site": bool, "full_reasoning_process": {"initial_analysis": string, "hypothesis": string, "self_critique": string, "conclusion": string}, "final_confidence_score": integer 0-100}. ` +
		"The full_reasoning_process must show your chain of thought: initial_analysis (what the page appears to be), hypothesis (your working theory), self_critique (what could make your hypothesis wrong), and conclusion (your final judgment)."
}

func userPrompt(url, content string) string {
	var sb strings.Builder
	sb.WriteString("URL: ")
	sb.WriteString(url)
	sb.WriteString("\n\nContent:\n")
	sb.WriteString(content)
	return sb.String()
}
