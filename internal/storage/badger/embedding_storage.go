package badger

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/models"
)

// EmbeddingStorage implements case embedding persistence and brute-force
// cosine similarity search over the stored vectors.
type EmbeddingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.EmbeddingStorage = (*EmbeddingStorage)(nil)

// NewEmbeddingStorage creates a new embedding storage instance
func NewEmbeddingStorage(db *BadgerDB, logger arbor.ILogger) *EmbeddingStorage {
	return &EmbeddingStorage{db: db, logger: logger}
}

// SaveEmbedding stores or replaces the embedding row for a case
func (s *EmbeddingStorage) SaveEmbedding(ctx context.Context, emb *models.CaseEmbedding) error {
	emb.UpdatedAt = time.Now().UTC()
	return s.db.Store().Upsert(emb.CaseID, emb)
}

// GetEmbedding retrieves the embedding row for a case
func (s *EmbeddingStorage) GetEmbedding(ctx context.Context, caseID string) (*models.CaseEmbedding, error) {
	var emb models.CaseEmbedding
	if err := s.db.Store().Get(caseID, &emb); err != nil {
		return nil, err
	}
	return &emb, nil
}

// DeleteEmbedding removes the embedding row for a case
func (s *EmbeddingStorage) DeleteEmbedding(ctx context.Context, caseID string) error {
	return s.db.Store().Delete(caseID, &models.CaseEmbedding{})
}

// SimilarCases ranks stored combined vectors by cosine similarity against
// the query vector. The corpus is small enough that a linear scan beats
// maintaining an index.
func (s *EmbeddingStorage) SimilarCases(ctx context.Context, vector []float32, limit int) ([]string, error) {
	var all []*models.CaseEmbedding
	if err := s.db.Store().Find(&all, badgerhold.Where("CaseID").Ne("")); err != nil {
		return nil, err
	}

	type scored struct {
		caseID string
		score  float64
	}

	results := make([]scored, 0, len(all))
	for _, emb := range all {
		score := cosineSimilarity(vector, emb.CombinedVector)
		if math.IsNaN(score) {
			continue
		}
		results = append(results, scored{caseID: emb.CaseID, score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.caseID
	}
	return ids, nil
}

// cosineSimilarity returns NaN for mismatched or zero vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
