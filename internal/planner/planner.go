// Package planner implements the Planner Agent (C10): it emits a
// MissionPlan for the upcoming discovery cycle, either from a fixed
// genesis objective (no prior report) or adaptively from the previous
// cycle's AfterActionReport. When the language model is unavailable, a
// deterministic fallback plan is emitted instead; fallback plans are
// semantically valid MissionPlan values, never an error.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rs/zerolog/log"

	"github.com/elliotttmiller/signalscout/internal/budget"
	"github.com/elliotttmiller/signalscout/internal/cache"
	"github.com/elliotttmiller/signalscout/internal/llm"
)

const reservedOutputTokens = 1000

// MissionType distinguishes how a MissionPlan was produced.
type MissionType string

const (
	MissionGenesis  MissionType = "genesis"
	MissionAdaptive MissionType = "adaptive"
	MissionFallback MissionType = "fallback"
)

// ReasoningTrace is the required four-part chain of thought carried by
// every MissionPlan, reusing the same initial_analysis/.../conclusion
// shape as the Cognitive Analyzer's verdict, with planner-specific names
// for the middle two steps.
type ReasoningTrace struct {
	InitialAnalysis string `json:"initial_analysis"`
	StrategicGoal   string `json:"strategic_goal"`
	TacticalPlan    string `json:"tactical_plan"`
	Conclusion      string `json:"conclusion"`
}

// MissionPlan is emitted by the Planner and consumed by the Crawler.
type MissionPlan struct {
	MissionType    MissionType    `json:"mission_type"`
	Timestamp      string         `json:"timestamp"`
	SeedQueries    []string       `json:"seed_queries"`
	ReasoningTrace ReasoningTrace `json:"reasoning_trace"`
	Confidence     int            `json:"confidence"`

	// AdaptationsMade and ExpectedImprovements are populated only for
	// adaptive plans, per spec's adaptive-mode contract.
	AdaptationsMade      string `json:"adaptations_made,omitempty"`
	ExpectedImprovements string `json:"expected_improvements,omitempty"`
}

// PriorReport is the subset of the previous cycle's AfterActionReport the
// Planner needs to adapt its strategy. The Reporting Agent's report type
// is converted into this shape by the Engine.
type PriorReport struct {
	NewSitesFound         int
	TotalActive           int
	ClassifierSuccessRate float64
	VerifierSuccessRate   float64
	MostEffectiveSource   string
	Serialized            string // full JSON, embedded verbatim in the adaptive prompt
}

const genesisObjective = "Your mission is to discover and maintain a database of active sports streaming websites. " +
	"Focus on finding reliable, functional streaming sites that provide live sports content."

// Planner produces a MissionPlan, genesis or adaptive depending on whether
// a PriorReport is supplied.
type Planner struct {
	Client  llm.Client
	Model   string
	Cache   *cache.LLMCache
	Timeout time.Duration
	Now     func() time.Time
}

// New builds a Planner. A nil client is valid: Generate will then always
// fall back to the deterministic plan.
func New(client llm.Client, model string, llmCache *cache.LLMCache) *Planner {
	return &Planner{Client: client, Model: model, Cache: llmCache, Timeout: 30 * time.Second, Now: time.Now}
}

func (p *Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Generate produces a MissionPlan for the upcoming cycle. prior == nil
// selects genesis mode; otherwise adaptive mode.
func (p *Planner) Generate(ctx context.Context, prior *PriorReport) MissionPlan {
	if p.Client == nil || p.Model == "" {
		return p.fallback(prior)
	}

	system, user := p.prompts(prior)
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if p.Cache != nil {
		key := cache.KeyFrom(p.Model, system+"\n\n"+user)
		if raw, ok, _ := p.Cache.Get(ctx, key); ok {
			if plan, err := parsePlan(raw, prior); err == nil {
				return plan
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.Client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: p.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.3,
		N:           1,
	})
	if err != nil {
		log.Warn().Err(err).Msg("planner: llm call failed, using fallback plan")
		return p.fallback(prior)
	}
	if len(resp.Choices) == 0 {
		log.Warn().Msg("planner: llm returned no choices, using fallback plan")
		return p.fallback(prior)
	}

	raw := []byte(strings.TrimSpace(resp.Choices[0].Message.Content))
	plan, parseErr := parsePlan(raw, prior)
	if parseErr != nil {
		log.Warn().Err(parseErr).Msg("planner: response failed validation, using fallback plan")
		return p.fallback(prior)
	}

	if p.Cache != nil {
		if b, err := json.Marshal(plan); err == nil {
			_ = p.Cache.Save(ctx, cache.KeyFrom(p.Model, system+"\n\n"+user), b)
		}
	}
	return plan
}

func (p *Planner) prompts(prior *PriorReport) (system, user string) {
	if prior == nil {
		system = "You are an expert autonomous planning AI for web discovery missions. " +
			"Respond ONLY with a single valid JSON object, no narration, matching exactly this schema: " +
			`{"mission_type": "genesis", "timestamp": string, "seed_queries": string[5], "reasoning_trace": {"initial_analysis": string, "strategic_goal": string, "tactical_plan": string, "conclusion": string}, "confidence": integer 0-100}.`
		user = genesisObjective + "\n\n" +
			"As an autonomous planning AI, create an intelligent discovery strategy. Generate exactly 5 search queries that will help discover active sports streaming websites.\n\n" +
			"Consider: popular sports (NFL, NBA, MLB, soccer, hockey); different search angles (live streaming, free sports, specific teams); " +
			"community-driven terms (Reddit terms, streaming communities); technical terms (stream, live TV, sports broadcasts)."
		return system, user
	}

	system = "You are an expert autonomous planning AI that learns from previous mission results to improve strategy. " +
		"Respond ONLY with a single valid JSON object, no narration, matching exactly this schema: " +
		`{"mission_type": "adaptive", "timestamp": string, "seed_queries": string[5], "reasoning_trace": {"initial_analysis": string, "strategic_goal": string, "tactical_plan": string, "conclusion": string}, "confidence": integer 0-100, "adaptations_made": string, "expected_improvements": string}.`
	instructions := "Based on these results, create an improved discovery strategy. Consider: which queries/methods were most effective; " +
		"what types of sites were successfully found; where the mission struggled or failed; how the strategy can evolve. " +
		"Generate exactly 5 seed_queries, and state explicit adaptations_made and expected_improvements."
	serialized := p.fitReportToContext(system, instructions, prior.Serialized)
	user = "Analyze this mission report from the previous discovery cycle:\n\n" + serialized + "\n\n" + instructions
	return system, user
}

// fitReportToContext truncates the serialized prior report so that
// system+instructions+report stays within the model's context window,
// reserving room for the model's own output.
func (p *Planner) fitReportToContext(system, instructions, serialized string) string {
	fixed := budget.EstimatePromptTokens(system, instructions, nil)
	remaining := budget.RemainingContextWithHeadroom(p.Model, reservedOutputTokens, fixed)
	if remaining <= 0 {
		return serialized
	}
	maxChars := remaining * 4
	if len(serialized) <= maxChars {
		return serialized
	}
	return serialized[:maxChars] + "...(truncated)"
}

func parsePlan(raw []byte, prior *PriorReport) (MissionPlan, error) {
	var plan MissionPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return MissionPlan{}, fmt.Errorf("parse mission plan json: %w", err)
	}
	plan.SeedQueries = sanitizeQueries(plan.SeedQueries)
	if len(plan.SeedQueries) == 0 {
		return MissionPlan{}, errors.New("mission plan has no usable seed queries")
	}
	if prior == nil {
		plan.MissionType = MissionGenesis
	} else {
		plan.MissionType = MissionAdaptive
	}
	fillSentinels(&plan)
	return plan, nil
}

func fillSentinels(p *MissionPlan) {
	if p.Timestamp == "" {
		p.Timestamp = "Unknown"
	}
	if p.ReasoningTrace.InitialAnalysis == "" {
		p.ReasoningTrace.InitialAnalysis = "Unknown"
	}
	if p.ReasoningTrace.StrategicGoal == "" {
		p.ReasoningTrace.StrategicGoal = "Unknown"
	}
	if p.ReasoningTrace.TacticalPlan == "" {
		p.ReasoningTrace.TacticalPlan = "Unknown"
	}
	if p.ReasoningTrace.Conclusion == "" {
		p.ReasoningTrace.Conclusion = "Unknown"
	}
	if p.Confidence < 0 {
		p.Confidence = 0
	}
	if p.Confidence > 100 {
		p.Confidence = 100
	}
}

func sanitizeQueries(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, q := range in {
		s := strings.TrimSpace(q)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// fallback builds the deterministic fallback plan, per spec: a fixed query
// list for genesis, and a continue/pivot branch on new_sites_found for
// adaptive.
func (p *Planner) fallback(prior *PriorReport) MissionPlan {
	ts := p.now().Format(time.RFC3339)
	if prior == nil {
		return MissionPlan{
			MissionType: MissionFallback,
			Timestamp:   ts,
			SeedQueries: []string{
				"watch NFL live free streaming",
				"soccer stream free online",
				"NBA live stream reddit",
				"MLB streaming sites free",
				"live sports streaming free",
			},
			ReasoningTrace: ReasoningTrace{
				InitialAnalysis: "No prior report available; this is a genesis run.",
				StrategicGoal:   "Cover major sports leagues with community-focused search terms.",
				TacticalPlan:    "Issue a fixed, pre-validated query set spanning NFL, soccer, NBA, MLB, and general live-sports terms.",
				Conclusion:      "Deterministic genesis plan used due to language model unavailability.",
			},
			Confidence: 50,
		}
	}

	var queries []string
	var goal, plan string
	if prior.NewSitesFound > 0 {
		queries = []string{
			"live sports stream free online",
			"watch sports streaming free",
			"sports stream websites free",
			"streaming sports live free",
			"free sports streaming sites",
		}
		goal = "Continue the successful discovery pattern from the previous cycle."
		plan = "Repeat query phrasings close to those that produced new sites last cycle."
	} else {
		queries = []string{
			"sports streaming reddit communities",
			"live sports broadcasting free",
			"stream sports online free",
			"sports stream aggregator sites",
			"free live sports streaming",
		}
		goal = "Pivot strategy due to limited success in the previous cycle."
		plan = "Shift toward community-aggregator phrasing distinct from the prior, unproductive query set."
	}

	return MissionPlan{
		MissionType: MissionFallback,
		Timestamp:   ts,
		SeedQueries: queries,
		ReasoningTrace: ReasoningTrace{
			InitialAnalysis: fmt.Sprintf("Previous cycle found %d new sites out of %d active.", prior.NewSitesFound, prior.TotalActive),
			StrategicGoal:   goal,
			TacticalPlan:    plan,
			Conclusion:      "Deterministic adaptive plan used due to language model unavailability.",
		},
		Confidence:           40,
		AdaptationsMade:      "Branched query set on prior new_sites_found count.",
		ExpectedImprovements: "Maintain or improve discovery rate relative to the previous cycle.",
	}
}
