package interfaces

import (
	"context"
	"time"

	"github.com/bidscout/bidscout/internal/models"
)

// EligibleQuery parameterizes the eligibility search surface consumed by
// the external API layer.
type EligibleQuery struct {
	Text       string     // Free-text match over the case search text
	Prefecture string     // Exact prefecture filter, empty = all
	From       *time.Time // Bidding date lower bound, inclusive
	To         *time.Time // Bidding date upper bound, inclusive
	Limit      int        // 0 = no limit
}

// CaseStorage - interface for bidding case persistence
type CaseStorage interface {
	// UpsertCase inserts when CaseID is unseen, otherwise merges: non-empty
	// incoming fields overwrite, absent fields never null existing values.
	// Returns true when a new row was created.
	UpsertCase(ctx context.Context, bc *models.BiddingCase) (created bool, err error)

	GetCase(ctx context.Context, caseID string) (*models.BiddingCase, error)
	GetCaseByID(ctx context.Context, id string) (*models.BiddingCase, error)
	DeleteCase(ctx context.Context, caseID string) error
	CountCases(ctx context.Context) (int, error)
	ListCases(ctx context.Context, limit, offset int) ([]*models.BiddingCase, error)

	// SearchEligible returns eligible cases filtered by free text, prefecture,
	// and bidding date range, ordered by bidding date ascending with nulls last.
	SearchEligible(ctx context.Context, q EligibleQuery) ([]*models.BiddingCase, error)

	// FullTextSearch matches against the maintained search text field.
	FullTextSearch(ctx context.Context, query string, limit int) ([]*models.BiddingCase, error)
}

// EmbeddingStorage - interface for case embedding persistence
type EmbeddingStorage interface {
	SaveEmbedding(ctx context.Context, emb *models.CaseEmbedding) error
	GetEmbedding(ctx context.Context, caseID string) (*models.CaseEmbedding, error)
	DeleteEmbedding(ctx context.Context, caseID string) error

	// SimilarCases returns case IDs ranked by cosine similarity of the
	// combined vector against the query vector.
	SimilarCases(ctx context.Context, vector []float32, limit int) ([]string, error)
}

// ManifestStorage - interface for per-case document manifests
type ManifestStorage interface {
	SaveDocument(ctx context.Context, doc *models.CaseDocument) error
	GetDocument(ctx context.Context, caseID string, sourceURL string) (*models.CaseDocument, error)
	GetManifest(ctx context.Context, caseID string) ([]*models.CaseDocument, error)
	GetManifestStats(ctx context.Context, caseID string) (*models.ManifestStats, error)
	DeleteManifest(ctx context.Context, caseID string) error
}

// JobLogStorage - interface for pipeline run logs
type JobLogStorage interface {
	AppendLog(ctx context.Context, log *models.JobExecutionLog) error
	UpdateLog(ctx context.Context, log *models.JobExecutionLog) error
	GetLog(ctx context.Context, id string) (*models.JobExecutionLog, error)
	ListLogs(ctx context.Context, jobName string, limit int) ([]*models.JobExecutionLog, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	CaseStorage() CaseStorage
	EmbeddingStorage() EmbeddingStorage
	ManifestStorage() ManifestStorage
	JobLogStorage() JobLogStorage
	KVStorage() KeyValueStorage
	Close() error
}
