package anonymize

import (
	"fmt"
	"strings"

	"github.com/cuemby/caravan/pkg/stage"
	"github.com/cuemby/caravan/pkg/types"
)

// leakSampleSize bounds the post-transform spot check per column
const leakSampleSize = 10

// ScanColumn samples up to ten non-null values of an anonymized column
// and applies the sentinel check for the column's PII family. Findings
// never echo the suspect values.
func ScanColumn(rule *types.AnonymizationRule, col *stage.Column) []string {
	checkEmail := rule.SyntheticType == "email" || strings.Contains(strings.ToLower(col.Name), "email")
	checkName := strings.Contains(strings.ToLower(col.Name), "name") ||
		strings.Contains(rule.SyntheticType, "name")
	if !checkEmail && !checkName {
		return nil
	}

	var sampled, badEmails, shortNames int
	for _, v := range col.Values {
		if v == nil {
			continue
		}
		if sampled >= leakSampleSize {
			break
		}
		sampled++

		s := stage.Stringify(v)
		if checkEmail && strings.Contains(s, "@") && !strings.HasSuffix(s, "example.org") {
			badEmails++
		}
		if checkName && len(strings.TrimSpace(s)) < 3 {
			shortNames++
		}
	}

	var findings []string
	if badEmails > 0 {
		findings = append(findings, fmt.Sprintf(
			"column %s: %d of %d sampled values do not resolve to the synthetic email domain",
			col.Name, badEmails, sampled))
	}
	if shortNames > 0 {
		findings = append(findings, fmt.Sprintf(
			"column %s: %d of %d sampled values are suspiciously short for a name field",
			col.Name, shortNames, sampled))
	}
	return findings
}
