package badger

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/models"
)

func saveEmbedding(t *testing.T, s *EmbeddingStorage, caseID string, combined []float32) {
	t.Helper()
	require.NoError(t, s.SaveEmbedding(context.Background(), &models.CaseEmbedding{
		CaseID:         caseID,
		CombinedVector: combined,
		Model:          "gemini-embedding-001",
		Dimensions:     len(combined),
		SourceHash:     "hash-" + caseID,
		UpdatedAt:      time.Now().UTC(),
	}))
}

func TestEmbeddingStorage_UpsertByCaseID(t *testing.T) {
	ctx := context.Background()
	s := NewEmbeddingStorage(newTestDB(t), arbor.NewLogger())

	saveEmbedding(t, s, "12345", []float32{1, 0, 0})
	saveEmbedding(t, s, "12345", []float32{0, 1, 0})

	got, err := s.GetEmbedding(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, got.CombinedVector)
}

func TestEmbeddingStorage_SimilarCases(t *testing.T) {
	ctx := context.Background()
	s := NewEmbeddingStorage(newTestDB(t), arbor.NewLogger())

	saveEmbedding(t, s, "exact", []float32{1, 0, 0})
	saveEmbedding(t, s, "close", []float32{0.9, 0.1, 0})
	saveEmbedding(t, s, "orthogonal", []float32{0, 0, 1})

	ids, err := s.SimilarCases(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "exact", ids[0])
	assert.Equal(t, "close", ids[1])
}

func TestEmbeddingStorage_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewEmbeddingStorage(newTestDB(t), arbor.NewLogger())

	saveEmbedding(t, s, "gone", []float32{1, 0, 0})
	require.NoError(t, s.DeleteEmbedding(ctx, "gone"))

	_, err := s.GetEmbedding(ctx, "gone")
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 0.001)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.001)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 0.001)

	// Mismatched or zero vectors are not comparable
	assert.True(t, math.IsNaN(cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})))
	assert.True(t, math.IsNaN(cosineSimilarity([]float32{0, 0}, []float32{1, 0})))
}
