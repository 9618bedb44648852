package interfaces

import (
	"context"

	"github.com/bidscout/bidscout/internal/models"
)

// AuthService manages the authenticated portal session lifecycle.
// Sessions are not safe for concurrent use; each run acquires its own.
type AuthService interface {
	// Acquire establishes an authenticated session, reusing persisted
	// cookies when they still validate and falling back to a full login.
	Acquire(ctx context.Context) (Session, error)

	// IsValid probes a known authenticated-only page to detect expiry.
	IsValid(ctx context.Context, sess Session) bool

	// Refresh re-authenticates in place. Callers re-probe after refresh.
	Refresh(ctx context.Context, sess Session) error

	// Release tears down the session's browser context.
	Release(sess Session)
}

// Session is an authenticated browser context scoped to one run.
type Session interface {
	// Context returns the chromedp context all navigation runs against.
	Context() context.Context
}

// SearchCrawler issues portal searches and paginates listings.
type SearchCrawler interface {
	// Search yields each listing row to fn in portal order. It follows
	// next-page links up to the configured cap, retries transient errors,
	// and resumes from the current page after a session refresh. A non-nil
	// error from fn stops the search.
	Search(ctx context.Context, sess Session, condition string, fn func(models.CaseSummary) error) error
}

// DocumentResolver discovers and fetches a case's attached documents.
type DocumentResolver interface {
	// Resolve parses the case detail page for attached documents.
	Resolve(ctx context.Context, sess Session, detailURL string) ([]models.DocumentRef, error)

	// FetchDetail extracts the case's descriptive fields from its detail page.
	FetchDetail(ctx context.Context, sess Session, summary models.CaseSummary) (*models.BiddingCase, error)

	// Download fetches one document into storage. Already-present documents
	// are skipped without a network fetch; failures are recorded, not raised.
	Download(ctx context.Context, sess Session, caseID string, ref models.DocumentRef) models.DownloadResult
}

// TextProcessor converts downloaded documents into LLM-ready text.
type TextProcessor interface {
	// ExtractText pulls text from one stored document by format.
	ExtractText(ctx context.Context, doc *models.CaseDocument) (string, error)

	// Concatenate merges per-case documents into one bounded text blob with
	// per-document section markers, prioritizing eligibility-relevant
	// documents when truncation is needed.
	Concatenate(ctx context.Context, docs []*models.CaseDocument) (string, error)
}

// ExtractionPipeline drives the staged LLM extraction for one case.
type ExtractionPipeline interface {
	// Extract runs all stages against the concatenated text, returning the
	// partial result even when stages fail. The returned error is non-nil
	// only when no stage could run at all.
	Extract(ctx context.Context, bc *models.BiddingCase, text string, files []string) (*models.ExtractionResult, error)
}

// EmbeddingService computes and persists case vectors.
type EmbeddingService interface {
	// UpdateEmbeddings recomputes the three case vectors when the source
	// text changed since the stored hash; otherwise it is a no-op.
	UpdateEmbeddings(ctx context.Context, bc *models.BiddingCase) error
}

// Orchestrator runs the full pipeline for a set of search conditions.
type Orchestrator interface {
	Run(ctx context.Context, conditions []string) (*models.RunSummary, error)
}
