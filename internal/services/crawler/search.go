// -----------------------------------------------------------------------
// Search & Pagination Crawler - issues portal searches, walks listing
// pages, and yields per-case summary rows in portal order
// -----------------------------------------------------------------------

package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/models"
)

// SearchService implements the SearchCrawler interface with chromedp
type SearchService struct {
	portal  *common.PortalConfig
	cfg     *common.CrawlerConfig
	fetcher Fetcher
	logger  arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.SearchCrawler = (*SearchService)(nil)

// NewSearchService creates a new search crawler
func NewSearchService(portal *common.PortalConfig, cfg *common.CrawlerConfig, fetcher Fetcher, logger arbor.ILogger) *SearchService {
	return &SearchService{
		portal:  portal,
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Search walks the listing pages for one search condition, yielding each
// row to fn in portal order. Pagination stops when no next page exists or
// the safety cap is hit (a warning, not an error). A session expiry mid
// crawl refreshes and resumes from the current page; page numbering on the
// portal is stable within a crawl window.
func (s *SearchService) Search(ctx context.Context, sess interfaces.Session, condition string, fn func(models.CaseSummary) error) error {
	err := s.paginate(ctx, sess, condition, fn)
	if errors.Is(err, ErrMaxPagesReached) {
		s.logger.Warn().
			Str("condition", condition).
			Int("max_pages", s.cfg.MaxPages).
			Msg("Pagination cap reached, stopping crawl for this condition")
		return nil
	}
	return err
}

// paginate walks the listing pages, yielding deduplicated rows to fn
func (s *SearchService) paginate(ctx context.Context, sess interfaces.Session, condition string, fn func(models.CaseSummary) error) error {
	seen := make(map[string]bool)

	for page := 1; ; page++ {
		if page > s.cfg.MaxPages {
			return ErrMaxPagesReached
		}

		pageURL := s.listingURL(condition, page)

		html, err := s.fetcher.FetchPage(ctx, sess, pageURL)
		if err != nil {
			return fmt.Errorf("failed to fetch listing page %d for %q: %w", page, condition, err)
		}

		summaries, hasNext, err := s.parseListing(html, condition, page)
		if err != nil {
			return ParseError(pageURL, err)
		}

		for _, summary := range summaries {
			// The portal occasionally repeats rows across page boundaries
			if seen[summary.CaseID] {
				continue
			}
			seen[summary.CaseID] = true

			if err := fn(summary); err != nil {
				return err
			}
		}

		s.logger.Debug().
			Str("condition", condition).
			Int("page", page).
			Int("rows", len(summaries)).
			Bool("has_next", hasNext).
			Msg("Processed listing page")

		if !hasNext || len(summaries) == 0 {
			return nil
		}
	}
}

// listingURL builds the search URL for one condition and page
func (s *SearchService) listingURL(condition string, page int) string {
	q := url.Values{}
	q.Set("keyword", condition)
	if page > 1 {
		q.Set("page", fmt.Sprintf("%d", page))
	}
	return s.portal.BaseURL + "/projects/search?" + q.Encode()
}

// parseListing extracts case rows and next-page presence from listing HTML
func (s *SearchService) parseListing(html, condition string, page int) ([]models.CaseSummary, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false, err
	}

	var summaries []models.CaseSummary
	doc.Find(`a[href*="/projects/view/"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}

		caseID := caseIDFromURL(href)
		if caseID == "" {
			return
		}

		name := strings.TrimSpace(sel.Text())
		if name == "" {
			return
		}

		// Organization sits in a sibling cell on listing rows
		org := strings.TrimSpace(sel.Closest("tr").Find("td.organization, .org-name").First().Text())

		summaries = append(summaries, models.CaseSummary{
			CaseID:          caseID,
			Name:            name,
			Organization:    org,
			DetailURL:       absoluteURL(s.portal.BaseURL, href),
			SearchCondition: condition,
			Page:            page,
		})
	})

	hasNext := doc.Find(`a[rel="next"]`).Length() > 0 ||
		doc.Find(`a:contains("次へ")`).Length() > 0

	return summaries, hasNext, nil
}

// caseIDFromURL pulls the portal case identifier out of a detail link
func caseIDFromURL(href string) string {
	const marker = "/projects/view/"
	idx := strings.Index(href, marker)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimPrefix(href[idx:], marker)
	if cut := strings.IndexAny(rest, "?#/"); cut >= 0 {
		rest = rest[:cut]
	}
	return rest
}

// absoluteURL resolves a portal-relative href against the base URL
func absoluteURL(baseURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
