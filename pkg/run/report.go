package run

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/caravan/pkg/types"
)

const warningDisplayLimit = 10

// FormatDuration renders seconds human-readable: seconds under a
// minute, minutes under an hour, hours above
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1f seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%.1f minutes", seconds/60)
	default:
		return fmt.Sprintf("%.1f hours", seconds/3600)
	}
}

// groupThousands formats n with comma separators
func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}

// RenderMarkdown produces the human-readable migration report
func RenderMarkdown(m *types.RunManifest) string {
	var b strings.Builder
	writeExecutiveSummary(&b, m)
	writePhaseBreakdown(&b, m)
	writeFindings(&b, "Warnings", warningsOf(m), warningDisplayLimit)
	writeFindings(&b, "Errors", errorsOf(m), 0)
	writeRecommendations(&b, m)
	writeArtifacts(&b, m)
	return b.String()
}

func writeExecutiveSummary(b *strings.Builder, m *types.RunManifest) {
	emoji := "⛔"
	if m.OverallSuccess {
		emoji = "✅"
	}
	fmt.Fprintf(b, "# Migration Report: %s\n\n", m.DistrictID)
	fmt.Fprintf(b, "**Run ID:** %s\n", m.RunID)
	fmt.Fprintf(b, "**Status:** %s %s\n", emoji, m.OverallStatus)
	fmt.Fprintf(b, "**Duration:** %s\n", FormatDuration(m.TotalDuration))
	fmt.Fprintf(b, "**Timestamp:** %s - %s\n\n",
		m.StartTime.Format(time.RFC3339), m.EndTime.Format(time.RFC3339))

	b.WriteString("## Executive Summary\n\n")
	if m.OverallSuccess {
		fmt.Fprintf(b, "Successfully migrated district %q from PROD to CERT.\n\n", m.DistrictID)
	} else {
		fmt.Fprintf(b, "Migration FAILED for district %q.\n\n", m.DistrictID)
	}

	fmt.Fprintf(b, "- **Records Extracted:** %s\n", groupThousands(m.RecordsExtracted))
	fmt.Fprintf(b, "- **PII Fields Anonymized:** %d\n", m.FieldsAnonymized)
	status, warnings := "UNKNOWN", 0
	if m.Validation != nil {
		status, warnings = m.Validation.OverallStatus, m.Validation.TotalWarnings
	}
	fmt.Fprintf(b, "- **Validation Status:** %s (%d warnings)\n", status, warnings)
	fmt.Fprintf(b, "- **Records Loaded to CERT:** %s\n\n", groupThousands(m.RecordsLoaded))

	if m.OverallSuccess {
		b.WriteString("CERT environment is ready for testing.\n\n")
	} else {
		msg := m.ErrorMessage
		if msg == "" {
			msg = "See details below"
		}
		fmt.Fprintf(b, "**Error:** %s\n\n", msg)
	}
}

func writePhaseBreakdown(b *strings.Builder, m *types.RunManifest) {
	b.WriteString("## Phase Breakdown\n\n")

	var totalRecords int64
	var extractionDuration float64
	tablesExtracted := 0
	for _, e := range m.Extractions {
		extractionDuration += e.DurationSeconds
		totalRecords += e.TotalRecords
		tablesExtracted += len(e.TablesExtracted)
	}
	fmt.Fprintf(b, "### Phase: Extraction (%s)\n\n", FormatDuration(extractionDuration))
	fmt.Fprintf(b, "- Connected to %d data stores\n", len(m.Extractions))
	fmt.Fprintf(b, "- Extracted %d tables\n", tablesExtracted)
	fmt.Fprintf(b, "- Total records: %s\n\n", groupThousands(totalRecords))

	if a := m.Anonymization; a != nil {
		fmt.Fprintf(b, "### Phase: Anonymization (%s)\n\n", FormatDuration(a.DurationSeconds))
		fmt.Fprintf(b, "- Anonymized %d fields\n", a.TotalFieldsAnonymized)
		fmt.Fprintf(b, "- Processed %s records\n", groupThousands(a.TotalRecords))
		fmt.Fprintf(b, "- PII leak check: %s\n\n", a.PIILeakCheck)
	}

	if v := m.Validation; v != nil {
		fmt.Fprintf(b, "### Phase: Validation (%s)\n\n", FormatDuration(v.DurationSeconds))
		fmt.Fprintf(b, "- Ran %d validation checks\n", v.TotalChecks)
		fmt.Fprintf(b, "- Status: %s\n", v.OverallStatus)
		fmt.Fprintf(b, "- Passed: %d\n", v.TotalPassed)
		fmt.Fprintf(b, "- Failed: %d\n", v.TotalFailed)
		fmt.Fprintf(b, "- Warnings: %d\n\n", v.TotalWarnings)
	}

	if len(m.Loads) > 0 {
		var loadDuration float64
		var rowsLoaded int64
		tablesLoaded := 0
		strategy := types.LoadStrategy("")
		for _, l := range m.Loads {
			loadDuration += l.DurationSeconds
			rowsLoaded += l.TotalRowsLoaded
			tablesLoaded += len(l.TablesLoaded)
			strategy = l.Strategy
		}
		fmt.Fprintf(b, "### Phase: Loading (%s)\n\n", FormatDuration(loadDuration))
		fmt.Fprintf(b, "- Loaded to %d CERT data stores\n", len(m.Loads))
		fmt.Fprintf(b, "- Tables loaded: %d\n", tablesLoaded)
		fmt.Fprintf(b, "- Total rows: %s\n", groupThousands(rowsLoaded))
		fmt.Fprintf(b, "- Strategy: %s\n\n", strategy)
	}
}

func warningsOf(m *types.RunManifest) []types.Finding {
	if m.Validation == nil {
		return nil
	}
	return m.Validation.Warnings
}

func errorsOf(m *types.RunManifest) []types.Finding {
	if m.Validation == nil {
		return nil
	}
	return m.Validation.Errors
}

// writeFindings renders a numbered findings section. A limit of zero
// means unlimited; past the limit a one-line count points at the full
// validation report.
func writeFindings(b *strings.Builder, title string, findings []types.Finding, limit int) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)

	shown := findings
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for i, f := range shown {
		name := f.Rule
		if name == "" {
			name = f.Check
		}
		table := f.Table
		if table == "" {
			table = "N/A"
		}
		fmt.Fprintf(b, "%d. **%s**: %s\n", i+1, name, f.Message)
		fmt.Fprintf(b, "   - Table: %s\n", table)
		fmt.Fprintf(b, "   - Severity: %s\n\n", f.Severity)
	}
	if limit > 0 && len(findings) > limit {
		fmt.Fprintf(b, "... and %d more warnings (see validation report for details)\n\n", len(findings)-limit)
	}
}

func writeRecommendations(b *strings.Builder, m *types.RunManifest) {
	b.WriteString("## Recommendations\n\n")
	if m.OverallSuccess {
		b.WriteString("1. ✅ CERT is ready for QA testing\n")
		if m.Validation != nil && m.Validation.TotalWarnings > 0 {
			fmt.Fprintf(b, "2. Review the %d warnings above (non-blocking)\n", m.Validation.TotalWarnings)
		}
		fmt.Fprintf(b, "3. Run `caravan validate --district %s` for post-load validation\n", m.DistrictID)
		b.WriteString("4. Begin QA test plan execution\n")
	} else {
		b.WriteString("1. ⛔ Migration FAILED - do NOT proceed to testing\n")
		b.WriteString("2. Review errors above and fix root causes\n")
		fmt.Fprintf(b, "3. Run `caravan rollback --district %s` to clean up partial data\n", m.DistrictID)
		b.WriteString("4. Re-run migration after fixes\n")
	}
	b.WriteString("\n")
}

func writeArtifacts(b *strings.Builder, m *types.RunManifest) {
	b.WriteString("## Artifacts\n\n")
	fmt.Fprintf(b, "- **Extracted Data:** `data/staging/%s/`\n", m.DistrictID)
	fmt.Fprintf(b, "- **Anonymized Data:** `data/anonymized/%s/`\n", m.DistrictID)
	fmt.Fprintf(b, "- **Validation Report:** `data/anonymized/%s/validation-report.json`\n", m.DistrictID)
	fmt.Fprintf(b, "- **Run Manifest:** `data/reports/%s.json`\n", m.RunID)
}

// WriteReports persists the run manifest as <run_id>.json and the
// rendered Markdown as <run_id>.md under dir. Returns the two paths.
func WriteReports(m *types.RunManifest, dir string) (jsonPath, markdownPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", err
	}

	jsonPath = filepath.Join(dir, m.RunID+".json")
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(jsonPath, payload, 0644); err != nil {
		return "", "", err
	}

	markdownPath = filepath.Join(dir, m.RunID+".md")
	if err := os.WriteFile(markdownPath, []byte(RenderMarkdown(m)), 0644); err != nil {
		return "", "", err
	}
	return jsonPath, markdownPath, nil
}
