// -----------------------------------------------------------------------
// Text Processor - converts downloaded case documents into LLM-ready text
// Handles PDF, HTML, and plain text with Japanese encoding detection
// -----------------------------------------------------------------------

package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/models"
)

// truncationMarker is appended when the concatenated text exceeds the
// input budget
const truncationMarker = "\n[... 以降省略 ...]"

// oleHeader identifies legacy OLE compound documents (.doc, .xls).
// pdfcpu cannot read these and no pure-Go extractor in the stack can.
var oleHeader = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

// priorityKeywords mark eligibility-relevant documents that must survive
// truncation; they sort ahead of everything else
var priorityKeywords = []string{"仕様書", "入札説明", "資格"}

// Processor implements the TextProcessor interface
type Processor struct {
	kv        interfaces.KeyValueStorage
	cfg       *common.PipelineConfig
	converter *md.Converter
	logger    arbor.ILogger
	tempDir   string
}

// Compile-time interface assertion
var _ interfaces.TextProcessor = (*Processor)(nil)

// NewProcessor creates a new text processor
func NewProcessor(kv interfaces.KeyValueStorage, cfg *common.PipelineConfig, logger arbor.ILogger) *Processor {
	tempDir := filepath.Join(os.TempDir(), "bidscout-extract")
	os.MkdirAll(tempDir, 0755)

	return &Processor{
		kv:        kv,
		cfg:       cfg,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
		tempDir:   tempDir,
	}
}

// ExtractText pulls text from one stored document, dispatching on content
// sniffing rather than the declared MIME type, which the portal gets wrong
// often enough to matter.
func (p *Processor) ExtractText(ctx context.Context, doc *models.CaseDocument) (string, error) {
	if doc.Status != models.DocumentDownloaded || doc.StorageKey == "" {
		return "", fmt.Errorf("document %s is not downloaded", doc.FileName)
	}

	content, err := p.loadContent(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("failed to load document %s: %w", doc.FileName, err)
	}

	switch {
	case bytes.HasPrefix(content, []byte("%PDF")):
		return p.extractPDF(content)
	case bytes.HasPrefix(content, oleHeader):
		return "", fmt.Errorf("legacy OLE document %s is not supported", doc.FileName)
	case looksLikeHTML(content):
		return p.extractHTML(content)
	default:
		return decodeJapaneseText(content)
	}
}

// Concatenate merges per-case documents into one bounded blob in portal
// order. Documents that could not be extracted are skipped with a warning.
// Only when the result exceeds the rune budget are eligibility-relevant
// documents moved to the front so they survive the cut.
func (p *Processor) Concatenate(ctx context.Context, docs []*models.CaseDocument) (string, error) {
	type section struct {
		name string
		text string
	}

	var sections []section
	for _, doc := range docs {
		if doc.Status != models.DocumentDownloaded {
			continue
		}
		text, err := p.ExtractText(ctx, doc)
		if err != nil {
			p.logger.Warn().
				Str("case_id", doc.CaseID).
				Str("file", doc.FileName).
				Err(err).
				Msg("Skipping unextractable document")
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sections = append(sections, section{name: doc.Name, text: text})
	}

	if len(sections) == 0 {
		return "", nil
	}

	build := func(secs []section) string {
		var b strings.Builder
		for i, sec := range secs {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString("=== ")
			b.WriteString(sec.name)
			b.WriteString(" ===\n")
			b.WriteString(sec.text)
		}
		return b.String()
	}

	text := build(sections)
	if p.cfg.MaxInputRunes <= 0 || utf8.RuneCountInString(text) <= p.cfg.MaxInputRunes {
		return text, nil
	}

	sort.SliceStable(sections, func(i, j int) bool {
		return documentPriority(sections[i].name) < documentPriority(sections[j].name)
	})
	return truncateRunes(build(sections), p.cfg.MaxInputRunes), nil
}

// documentPriority ranks eligibility-relevant documents ahead of the rest
func documentPriority(name string) int {
	for i, kw := range priorityKeywords {
		if strings.Contains(name, kw) {
			return i
		}
	}
	return len(priorityKeywords)
}

// truncateRunes caps the text at maxRunes, appending the truncation marker
func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + truncationMarker
}

// loadContent retrieves and decodes a stored document
func (p *Processor) loadContent(ctx context.Context, storageKey string) ([]byte, error) {
	stored, err := p.kv.Get(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	decoded, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		// Raw bytes stored as string
		return []byte(stored), nil
	}
	return decoded, nil
}

// extractPDF writes the content to a temp file and pulls page text with
// pdfcpu. Pages that yield no text are silently empty; scanned PDFs with
// no text layer produce an empty result, not an error.
func (p *Processor) extractPDF(content []byte) (string, error) {
	tempFile := filepath.Join(p.tempDir, fmt.Sprintf("extract_%d.pdf", os.Getpid()))
	if err := os.WriteFile(tempFile, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	defer os.Remove(tempFile)

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(p.tempDir, fmt.Sprintf("pages_%d", os.Getpid()))
	os.MkdirAll(outDir, 0755)
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(data)
		} else if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(data)
		}
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text := strings.TrimSpace(pageTexts[pageNum])
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	return b.String(), nil
}

// extractHTML strips navigation chrome and converts the body to markdown
func (p *Processor) extractHTML(content []byte) (string, error) {
	decoded, err := decodeJapaneseText(content)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(decoded))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, nav, header, footer").Remove()

	html, err := doc.Find("body").Html()
	if err != nil || html == "" {
		html = decoded
	}

	markdown, err := p.converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML: %w", err)
	}
	return markdown, nil
}

// looksLikeHTML sniffs for an HTML document
func looksLikeHTML(content []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(content))
	if len(head) > 256 {
		head = head[:256]
	}
	return bytes.Contains(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<!doctype html")) ||
		bytes.Contains(head, []byte("<body"))
}

// decodeJapaneseText returns the content as UTF-8, trying the common
// Japanese encodings in order when it is not already valid UTF-8
func decodeJapaneseText(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}

	decoders := []transform.Transformer{
		japanese.ShiftJIS.NewDecoder(),
		japanese.EUCJP.NewDecoder(),
		japanese.ISO2022JP.NewDecoder(),
	}
	for _, dec := range decoders {
		decoded, _, err := transform.Bytes(dec, content)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded), nil
		}
	}

	return "", fmt.Errorf("content is not valid UTF-8 or a known Japanese encoding")
}
