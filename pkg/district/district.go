package district

import (
	"math"
	"sort"
	"time"
)

// Size categories by total record count
const (
	SizeLarge  = "large"
	SizeMedium = "medium"
	SizeSmall  = "small"

	largeThreshold  = 700_000
	mediumThreshold = 300_000
)

// Historical per-phase throughput, records per minute. Loading is the
// bottleneck.
const (
	extractionPerMinute    = 50_000
	anonymizationPerMinute = 100_000
	validationPerMinute    = 200_000
	loadingPerMinute       = 30_000

	// setup, monitoring, reporting
	overheadFactor = 1.1
)

// Metrics is a district's measured footprint
type Metrics struct {
	Students            int64   `json:"students"`
	Staff               int64   `json:"staff"`
	Schools             int64   `json:"schools"`
	TotalRecords        int64   `json:"total_records"`
	RecentUpdates30d    int64   `json:"recent_updates_30d"`
	DataCompletenessPct float64 `json:"data_completeness_pct"`
}

// District is one candidate for migration
type District struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	State            string           `json:"state"`
	BusinessPriority float64          `json:"business_priority,omitempty"`
	Metrics          Metrics          `json:"metrics"`
	FootprintByStore map[string]int64 `json:"footprint_by_store,omitempty"`

	PriorityScore       float64 `json:"priority_score"`
	Priority            int     `json:"priority"`
	EstimatedHours      float64 `json:"estimated_migration_hours"`
	SizeCategory        string  `json:"size_category"`
	RecommendedForPilot bool    `json:"recommended_for_pilot"`
}

// Criteria filters candidates before ranking
type Criteria struct {
	MinStudents        int64   `json:"min_students"`
	MinSchools         int64   `json:"min_schools"`
	MinTotalRecords    int64   `json:"min_total_records"`
	MaxTotalRecords    int64   `json:"max_total_records"`
	MinCompletenessPct float64 `json:"min_completeness_pct"`
}

// DefaultCriteria matches the standard selection policy
func DefaultCriteria() Criteria {
	return Criteria{
		MinStudents:        5000,
		MinSchools:         10,
		MinTotalRecords:    50_000,
		MaxTotalRecords:    2_000_000,
		MinCompletenessPct: 85,
	}
}

// Summary aggregates the recommended set
type Summary struct {
	TotalStudents       int64          `json:"total_students"`
	TotalStaff          int64          `json:"total_staff"`
	TotalSchools        int64          `json:"total_schools"`
	TotalRecords        int64          `json:"total_records"`
	EstimatedTotalHours float64        `json:"estimated_total_migration_hours"`
	DistrictsBySize     map[string]int `json:"districts_by_size"`
	PilotRecommended    []string       `json:"pilot_recommended"`
}

// Analysis is the ranking result
type Analysis struct {
	Success              bool       `json:"success"`
	GeneratedAt          time.Time  `json:"generated_at"`
	TotalAnalyzed        int        `json:"total_districts_analyzed"`
	RecommendedDistricts int        `json:"recommended_districts"`
	Criteria             Criteria   `json:"selection_criteria"`
	Districts            []District `json:"districts"`
	Summary              Summary    `json:"summary"`
}

// PriorityScore weighs a district for migration ordering: size 40%,
// recent activity 30%, data completeness 20%, declared business
// priority 10%. Size and activity normalize against 1M records and 10k
// updates.
func PriorityScore(d District) float64 {
	completeness := d.Metrics.DataCompletenessPct
	if completeness == 0 {
		completeness = 100
	}
	business := d.BusinessPriority
	if business == 0 {
		business = 50
	}

	sizeScore := math.Min(100, float64(d.Metrics.TotalRecords)/1_000_000*100)
	activityScore := math.Min(100, float64(d.Metrics.RecentUpdates30d)/10_000*100)

	score := sizeScore*0.40 + activityScore*0.30 + completeness*0.20 + business*0.10
	return math.Round(score*100) / 100
}

// EstimateHours predicts migration wall time from per-phase throughput
// plus overhead
func EstimateHours(totalRecords int64) float64 {
	r := float64(totalRecords)
	minutes := (r/extractionPerMinute + r/anonymizationPerMinute +
		r/validationPerMinute + r/loadingPerMinute) * overheadFactor
	return math.Round(minutes/60*10) / 10
}

// SizeCategory buckets a district by record count
func SizeCategory(totalRecords int64) string {
	switch {
	case totalRecords >= largeThreshold:
		return SizeLarge
	case totalRecords >= mediumThreshold:
		return SizeMedium
	default:
		return SizeSmall
	}
}

// SelectPilot picks the pilot set from a ranked list: the highest
// ranked district of each size category, one large, one medium, one
// small
func SelectPilot(ranked []District) []string {
	var large, medium, small string
	for _, d := range ranked {
		switch SizeCategory(d.Metrics.TotalRecords) {
		case SizeLarge:
			if large == "" {
				large = d.ID
			}
		case SizeMedium:
			if medium == "" {
				medium = d.ID
			}
		case SizeSmall:
			if small == "" {
				small = d.ID
			}
		}
		if large != "" && medium != "" && small != "" {
			break
		}
	}

	var pilot []string
	for _, id := range []string{large, medium, small} {
		if id != "" {
			pilot = append(pilot, id)
		}
	}
	return pilot
}

// Analyze filters, scores, ranks, and selects pilots. topN caps the
// recommended list; zero means the default of 15.
func Analyze(districts []District, criteria Criteria, topN int) *Analysis {
	if topN <= 0 {
		topN = 15
	}

	var candidates []District
	for _, d := range districts {
		m := d.Metrics
		completeness := m.DataCompletenessPct
		if completeness == 0 {
			completeness = 100
		}
		if m.Students < criteria.MinStudents ||
			m.Schools < criteria.MinSchools ||
			m.TotalRecords < criteria.MinTotalRecords ||
			m.TotalRecords > criteria.MaxTotalRecords ||
			completeness < criteria.MinCompletenessPct {
			continue
		}

		d.PriorityScore = PriorityScore(d)
		d.EstimatedHours = EstimateHours(m.TotalRecords)
		d.SizeCategory = SizeCategory(m.TotalRecords)
		candidates = append(candidates, d)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PriorityScore > candidates[j].PriorityScore
	})
	for i := range candidates {
		candidates[i].Priority = i + 1
	}

	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	pilot := SelectPilot(candidates)
	pilotSet := make(map[string]bool, len(pilot))
	for _, id := range pilot {
		pilotSet[id] = true
	}

	summary := Summary{
		DistrictsBySize:  map[string]int{SizeLarge: 0, SizeMedium: 0, SizeSmall: 0},
		PilotRecommended: pilot,
	}
	for i := range candidates {
		candidates[i].RecommendedForPilot = pilotSet[candidates[i].ID]
		m := candidates[i].Metrics
		summary.TotalStudents += m.Students
		summary.TotalStaff += m.Staff
		summary.TotalSchools += m.Schools
		summary.TotalRecords += m.TotalRecords
		summary.EstimatedTotalHours += candidates[i].EstimatedHours
		summary.DistrictsBySize[candidates[i].SizeCategory]++
	}

	return &Analysis{
		Success:              true,
		GeneratedAt:          time.Now().UTC(),
		TotalAnalyzed:        len(districts),
		RecommendedDistricts: len(candidates),
		Criteria:             criteria,
		Districts:            candidates,
		Summary:              summary,
	}
}
