package crawler

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/services/auth"
)

// Fetcher loads rendered portal pages within an authenticated session
type Fetcher interface {
	FetchPage(ctx context.Context, sess interfaces.Session, pageURL string) (string, error)
}

// SessionKeeper is the slice of the auth service the fetcher needs to
// detect and recover from session expiry
type SessionKeeper interface {
	IsLoginURL(rawURL string) bool
	Refresh(ctx context.Context, sess interfaces.Session) error
}

// Compile-time interface assertions
var (
	_ Fetcher       = (*PageFetcher)(nil)
	_ SessionKeeper = (*auth.Service)(nil)
)

// PageFetcher centralizes browser navigation: rate limiting, transient
// retry, and session-expiry recovery. Both the search crawler and the
// document resolver fetch pages through it.
type PageFetcher struct {
	cfg         *common.CrawlerConfig
	authSvc     SessionKeeper
	rateLimiter *RateLimiter
	retry       *RetryPolicy
	logger      arbor.ILogger
	navigate    func(ctx context.Context, sess interfaces.Session, pageURL string) (html, currentURL string, err error)
}

// NewPageFetcher creates a page fetcher sharing one rate limiter
func NewPageFetcher(cfg *common.CrawlerConfig, authSvc SessionKeeper, rateLimiter *RateLimiter, logger arbor.ILogger) *PageFetcher {
	f := &PageFetcher{
		cfg:         cfg,
		authSvc:     authSvc,
		rateLimiter: rateLimiter,
		retry:       NewNavigationPolicy(cfg.MaxRetries),
		logger:      logger,
	}
	f.navigate = f.chromeNavigate
	return f
}

// FetchPage loads a portal page and returns its rendered HTML. One session
// refresh per page is allowed; a second bounce to the login page surfaces
// ErrSessionExpired.
func (f *PageFetcher) FetchPage(ctx context.Context, sess interfaces.Session, pageURL string) (string, error) {
	for refreshAttempts := 0; ; {
		html, currentURL, err := f.navigate(ctx, sess, pageURL)
		if err != nil {
			return "", err
		}

		if !f.authSvc.IsLoginURL(currentURL) {
			return html, nil
		}

		if refreshAttempts >= 1 {
			return "", auth.ErrSessionExpired
		}
		refreshAttempts++

		f.logger.Info().Str("page_url", pageURL).Msg("Session expired mid-crawl, refreshing")
		if err := f.authSvc.Refresh(ctx, sess); err != nil {
			return "", err
		}
	}
}

// Evaluate runs a JavaScript expression on the current page. Used for
// pulling the detail page's embedded state object.
func (f *PageFetcher) Evaluate(ctx context.Context, sess interfaces.Session, expression string, result interface{}) error {
	evalCtx, cancel := context.WithTimeout(sess.Context(), f.cfg.NavigationTimeout)
	defer cancel()
	return chromedp.Run(evalCtx, chromedp.Evaluate(expression, result))
}

// chromeNavigate fetches one page through the browser with transient-error
// retry
func (f *PageFetcher) chromeNavigate(ctx context.Context, sess interfaces.Session, pageURL string) (html string, currentURL string, err error) {
	_, err = f.retry.ExecuteWithRetry(ctx, f.logger, func() (int, error) {
		if err := f.rateLimiter.Wait(ctx, pageURL); err != nil {
			return 0, err
		}

		navCtx, cancel := context.WithTimeout(sess.Context(), f.cfg.NavigationTimeout)
		defer cancel()

		return 0, chromedp.Run(navCtx,
			chromedp.Navigate(pageURL),
			chromedp.Sleep(500*time.Millisecond),
			chromedp.Location(&currentURL),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
	})
	return html, currentURL, err
}
