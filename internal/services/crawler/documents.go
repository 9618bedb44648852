// -----------------------------------------------------------------------
// Document Resolver & Downloader - discovers per-case documents on the
// detail page, downloads them idempotently, and maintains the manifest
// -----------------------------------------------------------------------

package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/models"
	"github.com/bidscout/bidscout/internal/services/auth"
)

// documentKeywords match anchor text for attachment links when the page's
// embedded state carries no file list
var documentKeywords = []string{
	"仕様書", "入札説明書", "入札説明", "様式", "公告", "図面", "仕様", "資料",
}

// externalHosts are government sub-systems that require their own auth.
// Documents there are flagged, not downloaded.
var externalHosts = []string{
	"tokyo.lg.jp", "e-gunma.lg.jp", "e-kanagawa.jp",
}

// detailFieldLabels maps the detail page's TH labels onto case fields
const (
	labelOrganization     = "機関"
	labelPrefecture       = "都道府県"
	labelAnnouncement     = "公示日"
	labelBidding          = "入札日"
	labelDocumentDeadline = "資料等提出日"
	labelBriefing         = "説明会日"
	labelAwardAnnounce    = "落札結果公示日"
	labelAwardDate        = "落札日"
	labelQualification    = "入札資格"
	labelOverview         = "概要"
	labelRemarks          = "備考"
	labelPlannedPrice     = "予定価格"
	labelAwardPrice       = "落札価格"
	labelWinner           = "落札会社"
)

// DocumentService implements the DocumentResolver interface
type DocumentService struct {
	portal    *common.PortalConfig
	cfg       *common.CrawlerConfig
	authSvc   *auth.Service
	fetcher   *PageFetcher
	manifests interfaces.ManifestStorage
	kv        interfaces.KeyValueStorage
	retry     *RetryPolicy
	logger    arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.DocumentResolver = (*DocumentService)(nil)

// NewDocumentService creates a new document resolver/downloader
func NewDocumentService(
	portal *common.PortalConfig,
	cfg *common.CrawlerConfig,
	authSvc *auth.Service,
	fetcher *PageFetcher,
	manifests interfaces.ManifestStorage,
	kv interfaces.KeyValueStorage,
	logger arbor.ILogger,
) *DocumentService {
	return &DocumentService{
		portal:    portal,
		cfg:       cfg,
		authSvc:   authSvc,
		fetcher:   fetcher,
		manifests: manifests,
		kv:        kv,
		retry:     NewDownloadPolicy(cfg.MaxRetries),
		logger:    logger,
	}
}

// nuxtFile mirrors the bidFiles entries in the detail page's embedded
// state object
type nuxtFile struct {
	FileName        string `json:"fileName"`
	FileDownloadURL string `json:"fileDownloadUrl"`
	FileMimeType    string `json:"fileMimeType"`
}

// bidFilesExpression pulls the attachment list out of window.__NUXT__.
// The portal is a Nuxt SPA; the rendered DOM lags the state object.
const bidFilesExpression = `JSON.stringify((function() {
	try {
		var st = window.__NUXT__ && window.__NUXT__.state;
		if (st && st.project && st.project.bidFiles) { return st.project.bidFiles; }
		return [];
	} catch (e) { return []; }
})())`

// Resolve discovers the documents attached to a case detail page. The
// embedded state object is authoritative; anchor scanning is the fallback
// for server-rendered pages.
func (s *DocumentService) Resolve(ctx context.Context, sess interfaces.Session, detailURL string) ([]models.DocumentRef, error) {
	html, err := s.fetcher.FetchPage(ctx, sess, detailURL)
	if err != nil {
		return nil, err
	}

	refs := s.resolveFromState(ctx, sess)
	if len(refs) == 0 {
		refs, err = s.resolveFromLinks(html, detailURL)
		if err != nil {
			return nil, ParseError(detailURL, err)
		}
	}

	s.logger.Debug().
		Str("detail_url", detailURL).
		Int("documents", len(refs)).
		Msg("Resolved case documents")

	return refs, nil
}

// resolveFromState reads the bidFiles list from the page's state object
func (s *DocumentService) resolveFromState(ctx context.Context, sess interfaces.Session) []models.DocumentRef {
	var raw string
	if err := s.fetcher.Evaluate(ctx, sess, bidFilesExpression, &raw); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to evaluate embedded state, falling back to link scan")
		return nil
	}

	var files []nuxtFile
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return nil
	}

	refs := make([]models.DocumentRef, 0, len(files))
	for i, f := range files {
		if f.FileDownloadURL == "" {
			continue
		}
		refs = append(refs, models.DocumentRef{
			Name:     f.FileName,
			MimeType: f.FileMimeType,
			URL:      absoluteURL(s.portal.BaseURL, f.FileDownloadURL),
			Index:    i,
		})
	}
	return refs
}

// resolveFromLinks scans detail-page anchors whose text names a document
func (s *DocumentService) resolveFromLinks(html, detailURL string) ([]models.DocumentRef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var refs []models.DocumentRef
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		text := strings.TrimSpace(sel.Text())
		if href == "" || text == "" {
			return
		}

		if !matchesDocumentKeyword(text) && !hasDocumentExtension(href) {
			return
		}

		abs := absoluteURL(s.portal.BaseURL, href)
		if seen[abs] {
			return
		}
		seen[abs] = true

		refs = append(refs, models.DocumentRef{
			Name:  text,
			URL:   abs,
			Index: len(refs),
		})
	})

	return refs, nil
}

func matchesDocumentKeyword(text string) bool {
	for _, kw := range documentKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func hasDocumentExtension(href string) bool {
	lower := strings.ToLower(href)
	for _, ext := range []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".zip"} {
		if strings.HasSuffix(lower, ext) || strings.Contains(lower, ext+"?") {
			return true
		}
	}
	return false
}

// FetchDetail extracts the case's descriptive fields from its detail page
func (s *DocumentService) FetchDetail(ctx context.Context, sess interfaces.Session, summary models.CaseSummary) (*models.BiddingCase, error) {
	html, err := s.fetcher.FetchPage(ctx, sess, summary.DetailURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, ParseError(summary.DetailURL, err)
	}

	bc := &models.BiddingCase{
		CaseID:          summary.CaseID,
		Name:            summary.Name,
		Organization:    summary.Organization,
		URL:             summary.DetailURL,
		SearchCondition: summary.SearchCondition,
	}

	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		bc.Name = title
	}

	// The detail page lays facts out as label/value rows
	fields := make(map[string]string)
	doc.Find("th").Each(func(_ int, th *goquery.Selection) {
		label := strings.TrimSpace(th.Text())
		value := strings.TrimSpace(th.Next().Text())
		if label != "" && value != "" {
			fields[label] = value
		}
	})
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		label := strings.TrimSpace(dt.Text())
		value := strings.TrimSpace(dt.Next().Text())
		if label != "" && value != "" {
			fields[label] = value
		}
	})

	lookup := func(label string) string {
		for k, v := range fields {
			if strings.Contains(k, label) {
				return v
			}
		}
		return ""
	}

	if org := lookup(labelOrganization); org != "" {
		bc.Organization = org
	}
	bc.Prefecture = lookup(labelPrefecture)
	if bc.Prefecture == "" {
		bc.Prefecture = common.ExtractPrefecture(bc.Organization + " " + bc.Name)
	}
	bc.Overview = lookup(labelOverview)
	bc.Remarks = lookup(labelRemarks)
	bc.QualificationRaw = lookup(labelQualification)
	bc.WinningCompany = lookup(labelWinner)

	bc.AnnouncementDate = common.ParseJapaneseDate(lookup(labelAnnouncement))
	bc.BiddingDate = common.ParseJapaneseDate(lookup(labelBidding))
	bc.DocumentDeadline = common.ParseJapaneseDate(lookup(labelDocumentDeadline))
	bc.BriefingDate = common.ParseJapaneseDate(lookup(labelBriefing))
	bc.AwardAnnouncement = common.ParseJapaneseDate(lookup(labelAwardAnnounce))
	bc.AwardDate = common.ParseJapaneseDate(lookup(labelAwardDate))

	if raw := lookup(labelPlannedPrice); raw != "" {
		normalized, unit := common.NormalizePrice(raw)
		bc.PlannedPrice = models.PriceInfo{Raw: raw, Normalized: normalized, Unit: unit}
	}
	if raw := lookup(labelAwardPrice); raw != "" {
		normalized, unit := common.NormalizePrice(raw)
		bc.AwardPrice = models.PriceInfo{Raw: raw, Normalized: normalized, Unit: unit}
	}

	return bc, nil
}

// Download fetches one document into storage, recording the manifest entry.
// Already-downloaded documents are skipped with zero network fetches;
// external-system documents are flagged; failures are recorded per
// document and never abort the case.
func (s *DocumentService) Download(ctx context.Context, sess interfaces.Session, caseID string, ref models.DocumentRef) models.DownloadResult {
	entry := &models.CaseDocument{
		CaseID:    caseID,
		SourceURL: ref.URL,
		Name:      ref.Name,
		FileName:  buildFileName(ref.Index, ref.Name, ref.URL),
		MimeType:  ref.MimeType,
		Index:     ref.Index,
	}

	if isExternalURL(ref.URL) {
		entry.Status = models.DocumentExternal
		s.saveManifestEntry(ctx, entry)
		s.logger.Debug().Str("case_id", caseID).Str("url", ref.URL).Msg("Flagged external-system document")
		return models.DownloadResult{Status: models.DocumentExternal}
	}

	// Idempotence: an entry already downloaded with content present is
	// skipped without touching the network
	if existing, err := s.manifests.GetDocument(ctx, caseID, ref.URL); err == nil &&
		existing.Status == models.DocumentDownloaded && existing.StorageKey != "" {
		if ok, err := s.kv.Exists(ctx, existing.StorageKey); err == nil && ok {
			s.logger.Debug().Str("case_id", caseID).Str("file", existing.FileName).Msg("Document already present, skipping")
			return models.DownloadResult{Status: models.DocumentSkipped}
		}
	}

	content, err := s.fetch(ctx, sess, ref.URL)
	if err != nil {
		entry.Status = models.DocumentFailed
		entry.Error = err.Error()
		s.saveManifestEntry(ctx, entry)
		s.logger.Warn().Str("case_id", caseID).Str("url", ref.URL).Err(err).Msg("Document download failed")
		return models.DownloadResult{Status: models.DocumentFailed, Error: err.Error()}
	}

	sum := sha256.Sum256(content)
	// Content keys follow the manifest identity so a reordered attachment
	// list overwrites in place instead of orphaning blobs
	urlSum := sha256.Sum256([]byte(ref.URL))
	storageKey := fmt.Sprintf("doc:%s:%x", caseID, urlSum[:8])

	if err := s.kv.Set(ctx, storageKey, base64.StdEncoding.EncodeToString(content)); err != nil {
		entry.Status = models.DocumentFailed
		entry.Error = err.Error()
		s.saveManifestEntry(ctx, entry)
		return models.DownloadResult{Status: models.DocumentFailed, Error: err.Error()}
	}

	entry.Status = models.DocumentDownloaded
	entry.StorageKey = storageKey
	entry.SHA256 = hex.EncodeToString(sum[:])
	entry.Size = int64(len(content))
	s.saveManifestEntry(ctx, entry)

	s.logger.Debug().
		Str("case_id", caseID).
		Str("file", entry.FileName).
		Int64("size", entry.Size).
		Msg("Downloaded document")

	return models.DownloadResult{Status: models.DocumentDownloaded}
}

// fetch performs the HTTP download with the browser session's cookies
func (s *DocumentService) fetch(ctx context.Context, sess interfaces.Session, rawURL string) ([]byte, error) {
	cookies, err := s.authSvc.Cookies(sess)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: s.cfg.DownloadTimeout}

	var content []byte
	_, err = s.retry.ExecuteWithRetry(ctx, s.logger, func() (int, error) {
		if err := s.fetcherRateWait(ctx, rawURL); err != nil {
			return 0, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return 0, err
		}
		req.Header.Set("User-Agent", s.portal.UserAgent)
		for _, c := range cookies {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}

		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		content, err = io.ReadAll(resp.Body)
		return resp.StatusCode, err
	})
	if err != nil {
		return nil, err
	}

	return content, nil
}

func (s *DocumentService) fetcherRateWait(ctx context.Context, rawURL string) error {
	return s.fetcher.rateLimiter.Wait(ctx, rawURL)
}

// saveManifestEntry records the outcome; manifest write failures are
// logged, the download result stands
func (s *DocumentService) saveManifestEntry(ctx context.Context, entry *models.CaseDocument) {
	if err := s.manifests.SaveDocument(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("case_id", entry.CaseID).Msg("Failed to save manifest entry")
	}
}

// isExternalURL reports whether a document lives on a separate government
// system requiring its own authentication
func isExternalURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Host
	for _, ext := range externalHosts {
		if host == ext || strings.HasSuffix(host, "."+ext) {
			return true
		}
	}
	// Prefecture sub-systems share the lg.jp domain
	return strings.HasSuffix(host, ".lg.jp")
}

// buildFileName produces the local name: two-digit index prefix plus the
// sanitized document name, capped at 200 characters
func buildFileName(index int, name, rawURL string) string {
	base := sanitizeFileName(name)
	if base == "" {
		base = "document"
	}

	ext := path.Ext(base)
	if ext == "" {
		if u, err := url.Parse(rawURL); err == nil {
			ext = path.Ext(u.Path)
		}
		base += ext
	}

	fileName := fmt.Sprintf("%02d_%s", index, base)
	if len(fileName) > 200 {
		stem := strings.TrimSuffix(fileName, ext)
		runes := []rune(stem)
		for len(string(runes))+len(ext) > 200 {
			runes = runes[:len(runes)-1]
		}
		fileName = string(runes) + ext
	}
	return fileName
}

// sanitizeFileName strips characters unsafe for filesystems
func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", "\n", "", "\r", "",
	)
	return strings.TrimSpace(replacer.Replace(name))
}
