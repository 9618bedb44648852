// -----------------------------------------------------------------------
// Session Manager - authenticated browser session lifecycle for the
// bidding portal: cookie warm-start, form login, expiry probe, refresh
// -----------------------------------------------------------------------

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
)

const cookieStorageKey = "portal:cookies"

// Session is one authenticated browser context. Not safe for concurrent
// use; each run acquires its own.
type Session struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// Context returns the chromedp context all navigation runs against
func (s *Session) Context() context.Context {
	return s.browserCtx
}

// Compile-time interface assertion
var _ interfaces.Session = (*Session)(nil)

// Service implements the AuthService interface with chromedp
type Service struct {
	portal  *common.PortalConfig
	crawler *common.CrawlerConfig
	kv      interfaces.KeyValueStorage
	logger  arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.AuthService = (*Service)(nil)

// NewService creates a new session manager
func NewService(portal *common.PortalConfig, crawler *common.CrawlerConfig, kv interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		portal:  portal,
		crawler: crawler,
		kv:      kv,
		logger:  logger,
	}
}

// Acquire establishes an authenticated session. Persisted cookies are tried
// first as a warm start; they are untrusted, so a failed probe falls back
// to a full form login with retries.
func (s *Service) Acquire(ctx context.Context) (interfaces.Session, error) {
	sess, err := s.newBrowserSession(ctx)
	if err != nil {
		return nil, err
	}

	if s.restoreCookies(sess) && s.IsValid(ctx, sess) {
		s.logger.Info().Msg("Portal session restored from persisted cookies")
		return sess, nil
	}

	if err := s.loginWithRetries(ctx, sess); err != nil {
		s.Release(sess)
		return nil, err
	}

	s.persistCookies(sess)
	return sess, nil
}

// IsValid probes the authenticated home page. The portal redirects expired
// sessions to the login page, so the final URL is the expiry signal.
func (s *Service) IsValid(ctx context.Context, sess interfaces.Session) bool {
	bs, ok := sess.(*Session)
	if !ok {
		return false
	}

	probeCtx, cancel := context.WithTimeout(bs.browserCtx, s.crawler.NavigationTimeout)
	defer cancel()

	var currentURL string
	err := chromedp.Run(probeCtx,
		chromedp.Navigate(s.portal.BaseURL+s.portal.HomePath),
		chromedp.Location(&currentURL),
	)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Session probe navigation failed")
		return false
	}

	return strings.Contains(currentURL, s.portal.HomePath)
}

// Refresh re-authenticates in place. Callers re-probe after refresh.
func (s *Service) Refresh(ctx context.Context, sess interfaces.Session) error {
	bs, ok := sess.(*Session)
	if !ok {
		return fmt.Errorf("unexpected session type %T", sess)
	}

	s.logger.Info().Msg("Refreshing portal session")
	if err := s.loginWithRetries(ctx, bs); err != nil {
		return err
	}

	s.persistCookies(bs)
	return nil
}

// Release tears down the session's browser context
func (s *Service) Release(sess interfaces.Session) {
	bs, ok := sess.(*Session)
	if !ok {
		return
	}
	if bs.browserCancel != nil {
		bs.browserCancel()
	}
	if bs.allocCancel != nil {
		bs.allocCancel()
	}
}

// newBrowserSession starts a Chrome instance and verifies it responds
func (s *Service) newBrowserSession(ctx context.Context) (*Session, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.portal.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(s.portal.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Startup probe: a browser that cannot reach about:blank is dead
	probeCtx, cancel := context.WithTimeout(browserCtx, 15*time.Second)
	defer cancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Session{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// loginWithRetries performs the form login with exponential backoff
func (s *Service) loginWithRetries(ctx context.Context, sess *Session) error {
	retries := s.crawler.LoginRetries
	if retries <= 0 {
		retries = 3
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 2 * time.Second
			s.logger.Warn().
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying portal login")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if lastErr = s.login(sess); lastErr == nil {
			s.logger.Info().Msg("Portal login succeeded")
			return nil
		}
	}

	s.captureDebugArtifacts(sess, "login_failed")
	return fmt.Errorf("%w: %v", ErrAuthentication, lastErr)
}

// login fills the portal's email/password form and checks the landing URL
func (s *Service) login(sess *Session) error {
	loginCtx, cancel := context.WithTimeout(sess.browserCtx, s.crawler.NavigationTimeout)
	defer cancel()

	var currentURL string
	err := chromedp.Run(loginCtx,
		chromedp.Navigate(s.portal.BaseURL+s.portal.LoginPath),
		chromedp.WaitVisible(`#email`, chromedp.ByID),
		chromedp.SendKeys(`#email`, s.portal.Email, chromedp.ByID),
		chromedp.SendKeys(`#password`, s.portal.Password, chromedp.ByID),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&currentURL),
	)
	if err != nil {
		return fmt.Errorf("login flow failed: %w", err)
	}

	// Success is a redirect to the authenticated home page
	if !strings.Contains(currentURL, s.portal.HomePath) {
		return fmt.Errorf("login rejected, landed on %s", currentURL)
	}

	return nil
}

// persistedCookie is the subset of cookie state worth warm-starting from
type persistedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
}

// persistCookies saves the browser's cookies for warm-start across runs.
// Failures are logged and swallowed: cookies are an optimization.
func (s *Service) persistCookies(sess *Session) {
	var cookies []*network.Cookie
	err := chromedp.Run(sess.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read browser cookies")
		return
	}

	persisted := make([]persistedCookie, 0, len(cookies))
	for _, c := range cookies {
		persisted = append(persisted, persistedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}

	data, err := json.Marshal(persisted)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to marshal cookies")
		return
	}

	if err := s.kv.Set(context.Background(), cookieStorageKey, string(data)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist cookies")
		return
	}

	s.logger.Debug().Int("count", len(persisted)).Msg("Persisted session cookies")
}

// restoreCookies loads persisted cookies into the browser. Returns false
// when there is nothing to restore; validity is the caller's probe to make.
func (s *Service) restoreCookies(sess *Session) bool {
	data, err := s.kv.Get(context.Background(), cookieStorageKey)
	if err != nil {
		return false
	}

	var persisted []persistedCookie
	if err := json.Unmarshal([]byte(data), &persisted); err != nil {
		s.logger.Warn().Err(err).Msg("Discarding unreadable persisted cookies")
		_ = s.kv.Delete(context.Background(), cookieStorageKey)
		return false
	}
	if len(persisted) == 0 {
		return false
	}

	err = chromedp.Run(sess.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range persisted {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithExpires(&expires).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to restore cookies into browser")
		return false
	}

	s.logger.Debug().Int("count", len(persisted)).Msg("Restored session cookies")
	return true
}

// Cookies returns the current browser cookies for handing to an HTTP
// client (document downloads bypass the browser).
func (s *Service) Cookies(sess interfaces.Session) ([]*network.Cookie, error) {
	bs, ok := sess.(*Session)
	if !ok {
		return nil, fmt.Errorf("unexpected session type %T", sess)
	}

	var cookies []*network.Cookie
	err := chromedp.Run(bs.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read browser cookies: %w", err)
	}
	return cookies, nil
}

// IsLoginURL reports whether a URL is the portal's login page, the signal
// that a session expired mid-crawl.
func (s *Service) IsLoginURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, s.portal.LoginPath)
}

// captureDebugArtifacts writes a screenshot and HTML snapshot for offline
// inspection. Advisory only; never affects control flow.
func (s *Service) captureDebugArtifacts(sess *Session, label string) {
	if !s.portal.DebugCapture {
		return
	}

	if err := os.MkdirAll(s.portal.DebugDir, 0755); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to create debug directory")
		return
	}

	stamp := time.Now().Format("20060102_150405")
	captureCtx, cancel := context.WithTimeout(sess.browserCtx, 10*time.Second)
	defer cancel()

	var screenshot []byte
	var html string
	err := chromedp.Run(captureCtx,
		chromedp.CaptureScreenshot(&screenshot),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to capture debug artifacts")
		return
	}

	pngPath := filepath.Join(s.portal.DebugDir, fmt.Sprintf("%s_%s.png", label, stamp))
	htmlPath := filepath.Join(s.portal.DebugDir, fmt.Sprintf("%s_%s.html", label, stamp))

	if err := os.WriteFile(pngPath, screenshot, 0644); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write debug screenshot")
	}
	if err := os.WriteFile(htmlPath, []byte(html), 0644); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write debug HTML snapshot")
	}

	s.logger.Info().Str("screenshot", pngPath).Msg("Captured debug artifacts")
}
