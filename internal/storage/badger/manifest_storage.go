package badger

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/models"
)

// ManifestStorage implements per-case document manifest persistence
type ManifestStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.ManifestStorage = (*ManifestStorage)(nil)

// NewManifestStorage creates a new manifest storage instance
func NewManifestStorage(db *BadgerDB, logger arbor.ILogger) *ManifestStorage {
	return &ManifestStorage{db: db, logger: logger}
}

// SaveDocument stores or updates one manifest entry. The identity of a
// document is its (case, source URL) pair; Index is display order only and
// may shift between crawls without duplicating entries.
func (s *ManifestStorage) SaveDocument(ctx context.Context, doc *models.CaseDocument) error {
	if doc.ID == "" {
		sum := sha256.Sum256([]byte(doc.SourceURL))
		doc.ID = fmt.Sprintf("%s:%x", doc.CaseID, sum[:8])
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	return s.db.Store().Upsert(doc.ID, doc)
}

// GetDocument looks up a manifest entry by its (case, source URL) identity
func (s *ManifestStorage) GetDocument(ctx context.Context, caseID string, sourceURL string) (*models.CaseDocument, error) {
	var docs []*models.CaseDocument
	err := s.db.Store().Find(&docs, badgerhold.Where("CaseID").Eq(caseID).Index("CaseID"))
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.SourceURL == sourceURL {
			return doc, nil
		}
	}
	return nil, badgerhold.ErrNotFound
}

// GetManifest returns all manifest entries for a case ordered by the
// portal's original index
func (s *ManifestStorage) GetManifest(ctx context.Context, caseID string) ([]*models.CaseDocument, error) {
	var docs []*models.CaseDocument
	err := s.db.Store().Find(&docs, badgerhold.Where("CaseID").Eq(caseID).Index("CaseID"))
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Index < docs[j].Index })
	return docs, nil
}

// GetManifestStats summarizes download completeness for a case
func (s *ManifestStorage) GetManifestStats(ctx context.Context, caseID string) (*models.ManifestStats, error) {
	docs, err := s.GetManifest(ctx, caseID)
	if err != nil {
		return nil, err
	}

	stats := &models.ManifestStats{Total: len(docs)}
	for _, doc := range docs {
		switch doc.Status {
		case models.DocumentDownloaded:
			stats.Downloaded++
		case models.DocumentSkipped:
			stats.Skipped++
		case models.DocumentFailed:
			stats.Failed++
		case models.DocumentExternal:
			stats.External++
		}
	}
	return stats, nil
}

// DeleteManifest removes all manifest entries for a case
func (s *ManifestStorage) DeleteManifest(ctx context.Context, caseID string) error {
	return s.db.Store().DeleteMatching(&models.CaseDocument{}, badgerhold.Where("CaseID").Eq(caseID))
}
