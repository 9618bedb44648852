package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidscout/bidscout/internal/models"
)

func TestDetermineEligibility(t *testing.T) {
	operatingRanks := []string{"D"}

	tests := []struct {
		name         string
		reqs         []models.QualificationRequirement
		wantEligible bool
	}{
		{
			name: "Rank A requirement is ineligible",
			reqs: []models.QualificationRequirement{
				{Level: "A", Category: CategoryUnified, Confidence: 1.0},
			},
			wantEligible: false,
		},
		{
			name: "Rank B requirement is ineligible",
			reqs: []models.QualificationRequirement{
				{Level: "B", Category: CategoryUnified, Confidence: 1.0},
			},
			wantEligible: false,
		},
		{
			name: "Rank C requirement is ineligible",
			reqs: []models.QualificationRequirement{
				{Level: "C", Category: CategoryUnified, Confidence: 1.0},
			},
			wantEligible: false,
		},
		{
			name: "Rank D requirement is eligible",
			reqs: []models.QualificationRequirement{
				{Level: "D", Category: CategoryUnified, Confidence: 1.0},
			},
			wantEligible: true,
		},
		{
			name: "Lowercase rank still matches",
			reqs: []models.QualificationRequirement{
				{Level: "d", Category: CategoryUnified, Confidence: 1.0},
			},
			wantEligible: true,
		},
		{
			name:         "No requirement is eligible",
			reqs:         nil,
			wantEligible: true,
		},
		{
			name: "Unknown rank resolves toward eligible",
			reqs: []models.QualificationRequirement{
				{Level: LevelUnknown, Category: CategoryUnified, Confidence: 0.9},
			},
			wantEligible: true,
		},
		{
			name: "No rank specified is eligible",
			reqs: []models.QualificationRequirement{
				{Level: "", Category: CategoryNoneNeeded, Confidence: 1.0},
			},
			wantEligible: true,
		},
		{
			name: "Mixed: one held and one not held is ineligible",
			reqs: []models.QualificationRequirement{
				{Level: "D", Category: CategoryUnified, Confidence: 1.0},
				{Level: "B", Category: CategoryLocal, Confidence: 0.85},
			},
			wantEligible: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eligible, details := DetermineEligibility(tt.reqs, operatingRanks, 1.0)
			assert.Equal(t, tt.wantEligible, eligible)
			require.NotNil(t, details)
			assert.NotEmpty(t, details.Reasons)
			assert.GreaterOrEqual(t, details.Confidence, 0.0)
			assert.LessOrEqual(t, details.Confidence, 1.0)
		})
	}
}

func TestDetermineEligibility_Confidence(t *testing.T) {
	reqs := []models.QualificationRequirement{
		{Level: "A", Category: CategoryUnified, Confidence: 1.0},
	}

	_, fullDetails := DetermineEligibility(reqs, []string{"D"}, 1.0)
	_, partialDetails := DetermineEligibility(reqs, []string{"D"}, 0.5)

	// A verdict over a partially failed extraction is weaker
	assert.Greater(t, fullDetails.Confidence, partialDetails.Confidence)
}

func TestDetermineEligibility_IneligibleGetsRecommendation(t *testing.T) {
	reqs := []models.QualificationRequirement{
		{Level: "A", Category: CategoryUnified, Confidence: 1.0},
	}
	eligible, details := DetermineEligibility(reqs, []string{"D"}, 1.0)
	assert.False(t, eligible)
	assert.NotEmpty(t, details.Recommendations)
}

func TestEligibilityReason(t *testing.T) {
	assert.Equal(t, "応札可能", EligibilityReason(true, nil))
	assert.Equal(t, "応札不可", EligibilityReason(false, &models.EligibilityDetails{}))

	details := &models.EligibilityDetails{Reasons: []string{"first", "second"}}
	assert.Equal(t, "first", EligibilityReason(false, details))
}
