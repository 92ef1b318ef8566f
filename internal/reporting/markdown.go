package reporting

import (
	"fmt"
	"strings"
)

// RenderMarkdown renders an AfterActionReport as a human-readable Markdown
// document, following the teacher's section-by-section report structure.
func RenderMarkdown(report AfterActionReport) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# After-Action Report — %s\n\n", report.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))

	sb.WriteString("## Mission Summary\n\n")
	fmt.Fprintf(&sb, "- Duration: %.0fs\n", report.MissionSummary.DurationSeconds)
	fmt.Fprintf(&sb, "- Pages crawled: %d\n", report.MissionSummary.PagesCrawled)
	fmt.Fprintf(&sb, "- Links evaluated: %d\n\n", report.MissionSummary.LinksEvaluated)

	sb.WriteString("## Discovery Results\n\n")
	fmt.Fprintf(&sb, "- New sites: %d\n", report.DiscoveryResults.NewSites)
	fmt.Fprintf(&sb, "- Quarantined: %d\n", report.DiscoveryResults.Quarantined)
	fmt.Fprintf(&sb, "- Total active: %d\n\n", report.DiscoveryResults.TotalActive)

	sb.WriteString("## Performance Analysis\n\n")
	fmt.Fprintf(&sb, "- Classifier success rate: %.2f\n", report.PerformanceAnalysis.ClassifierSuccessRate)
	fmt.Fprintf(&sb, "- Verifier success rate: %.2f\n", report.PerformanceAnalysis.VerifierSuccessRate)
	fmt.Fprintf(&sb, "- Most effective source: %s\n", report.PerformanceAnalysis.MostEffectiveSource)
	fmt.Fprintf(&sb, "- Avg sites per query: %.2f\n\n", report.PerformanceAnalysis.AvgSitesPerQuery)

	sb.WriteString("## Cognitive Reasoning Process\n\n")
	sb.WriteString("### Observations\n\n")
	for k, v := range report.CognitiveReasoningProcess.Observations.PerformanceObservations {
		fmt.Fprintf(&sb, "- %s: %.2f\n", k, v)
	}
	for k, v := range report.CognitiveReasoningProcess.Observations.DiscoveryObservations {
		fmt.Fprintf(&sb, "- %s: %.2f\n", k, v)
	}
	sb.WriteString("\n### Insights\n\n")
	fmt.Fprintf(&sb, "- Performance: %s\n", report.CognitiveReasoningProcess.Insights.PerformanceInsight)
	fmt.Fprintf(&sb, "- Discovery: %s\n", report.CognitiveReasoningProcess.Insights.DiscoveryInsight)
	fmt.Fprintf(&sb, "- Operational: %s\n\n", report.CognitiveReasoningProcess.Insights.OperationalInsight)

	sb.WriteString("### Recommendations\n\n")
	fmt.Fprintf(&sb, "**Primary:** %s\n\n", report.CognitiveReasoningProcess.PrimaryRecommendation)
	if len(report.CognitiveReasoningProcess.SecondaryRecommendations) > 0 {
		sb.WriteString("Secondary:\n\n")
		for _, r := range report.CognitiveReasoningProcess.SecondaryRecommendations {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Reasoning confidence: %d/100\n", report.CognitiveReasoningProcess.ReasoningConfidence)

	if len(report.FailedOperations) > 0 {
		sb.WriteString("\n## Failed Operations\n\n")
		for _, f := range report.FailedOperations {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}

	return sb.String()
}
