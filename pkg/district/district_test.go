package district

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id string, records, students, schools int64) District {
	return District{
		ID:   id,
		Name: "District " + id,
		Metrics: Metrics{
			Students:            students,
			Schools:             schools,
			TotalRecords:        records,
			DataCompletenessPct: 95,
		},
	}
}

func TestPriorityScoreWeighting(t *testing.T) {
	d := District{
		BusinessPriority: 80,
		Metrics: Metrics{
			TotalRecords:        500_000, // size score 50
			RecentUpdates30d:    5_000,   // activity score 50
			DataCompletenessPct: 90,
		},
	}
	// 50*0.4 + 50*0.3 + 90*0.2 + 80*0.1 = 61
	assert.InDelta(t, 61.0, PriorityScore(d), 0.001)
}

func TestPriorityScoreCapsAtHundred(t *testing.T) {
	d := District{
		Metrics: Metrics{
			TotalRecords:        5_000_000,
			RecentUpdates30d:    100_000,
			DataCompletenessPct: 100,
		},
	}
	// 100*0.4 + 100*0.3 + 100*0.2 + 50*0.1 = 95
	assert.InDelta(t, 95.0, PriorityScore(d), 0.001)
}

func TestEstimateHours(t *testing.T) {
	// 600k records: 12 + 6 + 3 + 20 minutes, *1.1 overhead = 45.1min
	assert.InDelta(t, 0.8, EstimateHours(600_000), 0.001)
	assert.Equal(t, 0.0, EstimateHours(0))
}

func TestSizeCategory(t *testing.T) {
	assert.Equal(t, SizeLarge, SizeCategory(700_000))
	assert.Equal(t, SizeMedium, SizeCategory(300_000))
	assert.Equal(t, SizeSmall, SizeCategory(299_999))
}

func TestSelectPilotOnePerSize(t *testing.T) {
	ranked := []District{
		candidate("d-big-1", 900_000, 50_000, 80),
		candidate("d-big-2", 800_000, 45_000, 70),
		candidate("d-mid", 400_000, 20_000, 30),
		candidate("d-small", 100_000, 8_000, 12),
	}
	assert.Equal(t, []string{"d-big-1", "d-mid", "d-small"}, SelectPilot(ranked))
}

func TestAnalyzeFiltersAndRanks(t *testing.T) {
	districts := []District{
		candidate("d-1", 900_000, 50_000, 80),
		candidate("d-2", 400_000, 20_000, 30),
		candidate("d-tiny", 10_000, 500, 2),       // below minimums
		candidate("d-huge", 3_000_000, 90_000, 200), // above maximum
	}

	analysis := Analyze(districts, DefaultCriteria(), 0)

	assert.True(t, analysis.Success)
	assert.Equal(t, 4, analysis.TotalAnalyzed)
	assert.Equal(t, 2, analysis.RecommendedDistricts)
	require.Len(t, analysis.Districts, 2)
	assert.Equal(t, "d-1", analysis.Districts[0].ID)
	assert.Equal(t, 1, analysis.Districts[0].Priority)
	assert.Equal(t, 2, analysis.Districts[1].Priority)
	assert.True(t, analysis.Districts[0].PriorityScore > analysis.Districts[1].PriorityScore)

	assert.Equal(t, int64(70_000), analysis.Summary.TotalStudents)
	assert.Equal(t, 1, analysis.Summary.DistrictsBySize[SizeLarge])
	assert.Equal(t, []string{"d-1", "d-2"}, analysis.Summary.PilotRecommended)
	assert.True(t, analysis.Districts[0].RecommendedForPilot)
}

func TestAnalyzeTopN(t *testing.T) {
	var districts []District
	for _, id := range []string{"a", "b", "c"} {
		districts = append(districts, candidate(id, 400_000, 20_000, 30))
	}

	analysis := Analyze(districts, DefaultCriteria(), 2)
	assert.Len(t, analysis.Districts, 2)
}
