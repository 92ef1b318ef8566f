package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/elliotttmiller/signalscout/internal/planner"
)

// Store persists AfterActionReports to a directory as timestamped JSON
// (and, optionally, Markdown/PDF renderings), and retrieves the most
// recent one by modification time, per spec §4.11.
type Store struct {
	Dir        string
	WriteMD    bool
	WritePDF   bool
}

// NewStore builds a reporting Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir, WriteMD: true}
}

// Persist writes report as a timestamped JSON file under Dir (and a
// sibling Markdown/PDF rendering if enabled), returning the JSON path.
func (s *Store) Persist(report AfterActionReport) (string, error) {
	if strings.TrimSpace(s.Dir) == "" {
		return "", fmt.Errorf("reporting store: no directory configured")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir reports dir: %w", err)
	}

	stamp := report.Timestamp.UTC().Format("20060102_150405")
	base := fmt.Sprintf("after_action_report_%s", stamp)
	jsonPath := filepath.Join(s.Dir, base+".json")

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write report json: %w", err)
	}

	md := RenderMarkdown(report)
	if s.WriteMD {
		if err := os.WriteFile(filepath.Join(s.Dir, base+".md"), []byte(md), 0o644); err != nil {
			return "", fmt.Errorf("write report markdown: %w", err)
		}
	}
	if s.WritePDF {
		if err := writeSimplePDF(md, filepath.Join(s.Dir, base+".pdf")); err != nil {
			return "", fmt.Errorf("write report pdf: %w", err)
		}
	}

	return jsonPath, nil
}

// Latest loads the most recently modified AfterActionReport JSON file in
// Dir. ok is false when no report has ever been persisted.
func (s *Store) Latest() (report AfterActionReport, ok bool, err error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return AfterActionReport{}, false, nil
		}
		return AfterActionReport{}, false, fmt.Errorf("read reports dir: %w", err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || !strings.HasPrefix(e.Name(), "after_action_report_") {
			continue
		}
		info, ierr := e.Info()
		if ierr != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(s.Dir, e.Name()), modTime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return AfterActionReport{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.After(candidates[j].modTime) })

	data, rerr := os.ReadFile(candidates[0].path)
	if rerr != nil {
		return AfterActionReport{}, false, fmt.Errorf("read latest report: %w", rerr)
	}
	var report2 AfterActionReport
	if uerr := json.Unmarshal(data, &report2); uerr != nil {
		return AfterActionReport{}, false, fmt.Errorf("parse latest report: %w", uerr)
	}
	return report2, true, nil
}

// ToPriorReport converts an AfterActionReport into the subset the Planner
// needs to adapt its next mission plan.
func ToPriorReport(report AfterActionReport) planner.PriorReport {
	serialized := "{}"
	if data, err := json.Marshal(report); err == nil {
		serialized = string(data)
	}
	return planner.PriorReport{
		NewSitesFound:         report.DiscoveryResults.NewSites,
		TotalActive:           report.DiscoveryResults.TotalActive,
		ClassifierSuccessRate: report.PerformanceAnalysis.ClassifierSuccessRate,
		VerifierSuccessRate:   report.PerformanceAnalysis.VerifierSuccessRate,
		MostEffectiveSource:   report.PerformanceAnalysis.MostEffectiveSource,
		Serialized:            serialized,
	}
}
