package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     *float64
		wantUnit string
	}{
		{
			name:     "Plain yen amount",
			raw:      "1,000,000円",
			want:     floatPtr(1000000),
			wantUnit: "円",
		},
		{
			name:     "Full-width digits and separators",
			raw:      "１，０００，０００円",
			want:     floatPtr(1000000),
			wantUnit: "円",
		},
		{
			name:     "Man unit multiplier",
			raw:      "1,000万円",
			want:     floatPtr(10000000),
			wantUnit: "円",
		},
		{
			name:     "Sen unit multiplier",
			raw:      "500千円",
			want:     floatPtr(500000),
			wantUnit: "円",
		},
		{
			name:     "Undisclosed price",
			raw:      "非公表",
			want:     nil,
			wantUnit: "",
		},
		{
			name:     "Range keeps lower bound",
			raw:      "100万円～200万円",
			want:     floatPtr(1000000),
			wantUnit: "円",
		},
		{
			name:     "Empty string",
			raw:      "",
			want:     nil,
			wantUnit: "",
		},
		{
			name:     "Decimal with man",
			raw:      "1.5万円",
			want:     floatPtr(15000),
			wantUnit: "円",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unit := NormalizePrice(tt.raw)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.InDelta(t, *tt.want, *got, 0.01)
			}
			assert.Equal(t, tt.wantUnit, unit)
		})
	}
}

func TestParseJapaneseDate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *time.Time
	}{
		{
			name: "Kanji date",
			raw:  "2026年3月15日",
			want: datePtr(2026, 3, 15),
		},
		{
			name: "Slash date",
			raw:  "2026/03/15",
			want: datePtr(2026, 3, 15),
		},
		{
			name: "ISO date",
			raw:  "2026-03-15",
			want: datePtr(2026, 3, 15),
		},
		{
			name: "Full-width digits",
			raw:  "２０２６年３月１５日",
			want: datePtr(2026, 3, 15),
		},
		{
			name: "Date embedded in text",
			raw:  "開札は2026年3月15日 10時00分に行う",
			want: datePtr(2026, 3, 15),
		},
		{
			name: "Invalid month rejected",
			raw:  "2026年13月15日",
			want: nil,
		},
		{
			name: "No date present",
			raw:  "別途通知する",
			want: nil,
		},
		{
			name: "Empty string",
			raw:  "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseJapaneseDate(tt.raw)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.True(t, tt.want.Equal(*got), "want %v got %v", tt.want, got)
			}
		})
	}
}

func TestExtractPrefecture(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "Tokyo", text: "東京都財務局", want: "東京都"},
		{name: "Hokkaido", text: "北海道庁", want: "北海道"},
		{name: "Fu", text: "大阪府住宅供給公社", want: "大阪府"},
		{name: "Ken", text: "神奈川県横浜市", want: "神奈川県"},
		{name: "Embedded", text: "独立行政法人 〇〇機構 群馬県支部", want: "群馬県"},
		{name: "None", text: "防衛装備庁", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPrefecture(tt.text))
		})
	}
}

func TestFoldWidth(t *testing.T) {
	assert.Equal(t, "ABC123", FoldWidth("ＡＢＣ１２３"))
}

func floatPtr(f float64) *float64 { return &f }

func datePtr(year, month, day int) *time.Time {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}
