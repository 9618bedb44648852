package crawler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/services/auth"
)

type stubSession struct{}

func (stubSession) Context() context.Context { return context.Background() }

// fakeKeeper tracks session refreshes; the portal bounces expired sessions
// to /users/login
type fakeKeeper struct {
	refreshes int
}

func (k *fakeKeeper) IsLoginURL(rawURL string) bool {
	return strings.Contains(rawURL, "/users/login")
}

func (k *fakeKeeper) Refresh(ctx context.Context, sess interfaces.Session) error {
	k.refreshes++
	return nil
}

func newTestFetcher(keeper SessionKeeper) *PageFetcher {
	cfg := &common.CrawlerConfig{
		MaxRetries:        1,
		NavigationTimeout: 5 * time.Second,
	}
	return NewPageFetcher(cfg, keeper, NewRateLimiter(0, 0), arbor.NewLogger())
}

func TestFetchPage_RefreshesExpiredSessionOnce(t *testing.T) {
	keeper := &fakeKeeper{}
	f := newTestFetcher(keeper)

	// First load bounces to the login page; after the refresh the page
	// renders normally
	calls := 0
	f.navigate = func(ctx context.Context, sess interfaces.Session, pageURL string) (string, string, error) {
		calls++
		if calls == 1 {
			return "", "https://www.njss.info/users/login", nil
		}
		return "<html><body>本文</body></html>", pageURL, nil
	}

	html, err := f.FetchPage(context.Background(), stubSession{}, "https://www.njss.info/projects/search?page=2")
	require.NoError(t, err)
	assert.Contains(t, html, "本文")
	assert.Equal(t, 1, keeper.refreshes)
	assert.Equal(t, 2, calls)
}

func TestFetchPage_SecondBounceSurfacesExpiry(t *testing.T) {
	keeper := &fakeKeeper{}
	f := newTestFetcher(keeper)

	f.navigate = func(ctx context.Context, sess interfaces.Session, pageURL string) (string, string, error) {
		return "", "https://www.njss.info/users/login", nil
	}

	_, err := f.FetchPage(context.Background(), stubSession{}, "https://www.njss.info/projects/search")
	require.ErrorIs(t, err, auth.ErrSessionExpired)
	assert.Equal(t, 1, keeper.refreshes)
}
