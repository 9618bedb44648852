package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidscout/bidscout/internal/models"
)

func TestParseQualification(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		wantLevel      string
		wantCategory   string
		wantConfidence float64
	}{
		{
			name:           "Unified qualification with rank",
			raw:            "全省庁統一資格のA等級に格付けされている者",
			wantLevel:      "A",
			wantCategory:   CategoryUnified,
			wantConfidence: 1.0,
		},
		{
			name:           "Unified qualification rank D",
			raw:            "全省庁統一資格 D等級",
			wantLevel:      "D",
			wantCategory:   CategoryUnified,
			wantConfidence: 1.0,
		},
		{
			name:           "Full-width rank letter",
			raw:            "全省庁統一資格のＢ等級",
			wantLevel:      "B",
			wantCategory:   CategoryUnified,
			wantConfidence: 1.0,
		},
		{
			name:           "Rank suffix form",
			raw:            "全省庁統一資格においてランクC以上であること",
			wantLevel:      "C",
			wantCategory:   CategoryUnified,
			wantConfidence: 1.0,
		},
		{
			name:           "Unified without rank specified",
			raw:            "全省庁統一資格を有すること（等級を問わない）",
			wantLevel:      "",
			wantCategory:   CategoryUnified,
			wantConfidence: 0.95,
		},
		{
			name:           "Unified rank unreadable",
			raw:            "全省庁統一資格の所定の等級に格付けされていること",
			wantLevel:      LevelUnknown,
			wantCategory:   CategoryUnified,
			wantConfidence: 0.9,
		},
		{
			name:           "Local government qualification with rank",
			raw:            "東京都の競争入札参加資格においてA等級を有する者",
			wantLevel:      "A",
			wantCategory:   CategoryLocal,
			wantConfidence: 0.85,
		},
		{
			name:           "Local government qualification without rank",
			raw:            "地方公共団体の入札参加資格を有すること",
			wantLevel:      LevelUnknown,
			wantCategory:   CategoryLocal,
			wantConfidence: 0.8,
		},
		{
			name:           "No qualification needed",
			raw:            "入札参加資格は不要",
			wantLevel:      "",
			wantCategory:   CategoryNoneNeeded,
			wantConfidence: 1.0,
		},
		{
			name:           "Unclassifiable qualification text",
			raw:            "当機構の定める資格を有すると認められる者",
			wantLevel:      LevelUnknown,
			wantCategory:   CategoryUnknown,
			wantConfidence: 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs := ParseQualification(tt.raw)
			require.Len(t, reqs, 1)
			assert.Equal(t, tt.wantLevel, reqs[0].Level)
			assert.Equal(t, tt.wantCategory, reqs[0].Category)
			assert.InDelta(t, tt.wantConfidence, reqs[0].Confidence, 0.001)
			assert.NotEmpty(t, reqs[0].OriginalText)
		})
	}
}

func TestParseQualification_Empty(t *testing.T) {
	assert.Nil(t, ParseQualification(""))
	assert.Nil(t, ParseQualification("   \n  "))
}

func TestParseQualification_MultipleClauses(t *testing.T) {
	raw := "全省庁統一資格のB等級に格付けされている者。\n東京都の入札参加資格を有すること"
	reqs := ParseQualification(raw)
	require.Len(t, reqs, 2)
	assert.Equal(t, "B", reqs[0].Level)
	assert.Equal(t, CategoryUnified, reqs[0].Category)
	assert.Equal(t, CategoryLocal, reqs[1].Category)
}

func TestSummarizeQualification(t *testing.T) {
	tests := []struct {
		name string
		reqs []models.QualificationRequirement
		want string
	}{
		{
			name: "Most restrictive rank wins",
			reqs: []models.QualificationRequirement{
				{Level: "C"},
				{Level: "A"},
			},
			want: "A",
		},
		{
			name: "None needed",
			reqs: []models.QualificationRequirement{
				{Level: "", Category: CategoryNoneNeeded},
			},
			want: CategoryNoneNeeded,
		},
		{
			name: "Unknown only",
			reqs: []models.QualificationRequirement{
				{Level: LevelUnknown, Category: CategoryUnknown},
			},
			want: LevelUnknown,
		},
		{
			name: "Empty",
			reqs: nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SummarizeQualification(tt.reqs))
		})
	}
}
