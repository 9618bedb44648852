package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
)

func TestBuildFileName(t *testing.T) {
	tests := []struct {
		name   string
		index  int
		doc    string
		rawURL string
		want   string
	}{
		{
			name:   "Index prefix and extension from URL",
			index:  0,
			doc:    "入札説明書",
			rawURL: "https://portal.example.jp/files/setsumei.pdf",
			want:   "00_入札説明書.pdf",
		},
		{
			name:   "Name already carries extension",
			index:  3,
			doc:    "仕様書.pdf",
			rawURL: "https://portal.example.jp/download?id=9",
			want:   "03_仕様書.pdf",
		},
		{
			name:   "Unsafe characters sanitized",
			index:  1,
			doc:    "様式1/別紙:提出用",
			rawURL: "https://portal.example.jp/files/form.xlsx",
			want:   "01_様式1_別紙_提出用.xlsx",
		},
		{
			name:   "Empty name falls back",
			index:  2,
			doc:    "",
			rawURL: "https://portal.example.jp/files/doc.pdf",
			want:   "02_document.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildFileName(tt.index, tt.doc, tt.rawURL))
		})
	}
}

func TestBuildFileName_CapsLength(t *testing.T) {
	long := strings.Repeat("あ", 300)
	got := buildFileName(0, long+".pdf", "https://portal.example.jp/f.pdf")
	assert.LessOrEqual(t, len(got), 200)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}

func TestIsExternalURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "Portal URL", url: "https://portal.example.jp/files/a.pdf", want: false},
		{name: "Tokyo e-procurement", url: "https://www.e-procurement.metro.tokyo.lg.jp/doc.pdf", want: true},
		{name: "Gunma system", url: "https://portal.e-gunma.lg.jp/file", want: true},
		{name: "Kanagawa system", url: "https://bid.e-kanagawa.jp/doc", want: true},
		{name: "Any lg.jp subdomain", url: "https://chotatsu.pref.aichi.lg.jp/doc.pdf", want: true},
		{name: "Malformed URL", url: "::::", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isExternalURL(tt.url))
		})
	}
}

func TestMatchesDocumentKeyword(t *testing.T) {
	assert.True(t, matchesDocumentKeyword("入札説明書（PDF）"))
	assert.True(t, matchesDocumentKeyword("別紙様式ダウンロード"))
	assert.False(t, matchesDocumentKeyword("ログイン"))
}

func TestHasDocumentExtension(t *testing.T) {
	assert.True(t, hasDocumentExtension("/files/spec.pdf"))
	assert.True(t, hasDocumentExtension("/files/form.XLSX"))
	assert.True(t, hasDocumentExtension("/files/spec.pdf?token=abc"))
	assert.False(t, hasDocumentExtension("/projects/view/123"))
}

func TestResolveFromLinks(t *testing.T) {
	html := `
<html><body>
<a href="/files/setsumei.pdf">入札説明書</a>
<a href="/files/shiyousho.pdf">仕様書</a>
<a href="/files/setsumei.pdf">入札説明書</a>
<a href="/projects/search">検索に戻る</a>
<a href="https://chotatsu.pref.gunma.lg.jp/doc">電子入札システムの資料</a>
</body></html>`

	portal := &common.PortalConfig{BaseURL: "https://portal.example.jp"}
	svc := &DocumentService{portal: portal, logger: arbor.NewLogger()}

	refs, err := svc.resolveFromLinks(html, "https://portal.example.jp/projects/view/1")
	require.NoError(t, err)
	require.Len(t, refs, 3)

	assert.Equal(t, "入札説明書", refs[0].Name)
	assert.Equal(t, "https://portal.example.jp/files/setsumei.pdf", refs[0].URL)
	assert.Equal(t, 0, refs[0].Index)
	assert.Equal(t, "仕様書", refs[1].Name)
	assert.Equal(t, "https://chotatsu.pref.gunma.lg.jp/doc", refs[2].URL)
	assert.True(t, isExternalURL(refs[2].URL))
}
