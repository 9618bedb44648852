// -----------------------------------------------------------------------
// Embedding Service - maintains the three per-case vectors, recomputing
// only when the source text actually changed
// -----------------------------------------------------------------------

package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/models"
	"github.com/bidscout/bidscout/internal/services/llm"
)

// Service implements the EmbeddingService interface
type Service struct {
	factory *llm.ProviderFactory
	cfg     *common.EmbeddingConfig
	storage interfaces.EmbeddingStorage
	logger  arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.EmbeddingService = (*Service)(nil)

// NewService creates a new embedding service
func NewService(factory *llm.ProviderFactory, cfg *common.EmbeddingConfig, storage interfaces.EmbeddingStorage, logger arbor.ILogger) *Service {
	return &Service{
		factory: factory,
		cfg:     cfg,
		storage: storage,
		logger:  logger,
	}
}

// UpdateEmbeddings recomputes the case's name, overview, and combined
// vectors when the source text changed since the stored hash. Unchanged
// cases cost nothing.
func (s *Service) UpdateEmbeddings(ctx context.Context, bc *models.BiddingCase) error {
	nameText := strings.TrimSpace(bc.Name)
	overviewText := strings.TrimSpace(bc.Overview)
	combinedText := combinedSource(bc)

	if nameText == "" && overviewText == "" {
		s.logger.Debug().Str("case_id", bc.CaseID).Msg("No text to embed, skipping")
		return nil
	}

	sourceHash := hashSource(nameText, overviewText, combinedText)

	existing, err := s.storage.GetEmbedding(ctx, bc.CaseID)
	if err == nil && existing.SourceHash == sourceHash && existing.Model == s.cfg.Model {
		s.logger.Debug().Str("case_id", bc.CaseID).Msg("Embedding source unchanged, skipping")
		return nil
	}

	vectors, err := s.factory.EmbedTexts(ctx, s.cfg.Model, s.cfg.Dimensions, []string{nameText, overviewText, combinedText})
	if err != nil {
		return fmt.Errorf("failed to embed case %s: %w", bc.CaseID, err)
	}
	if len(vectors) != 3 {
		return fmt.Errorf("expected 3 vectors for case %s, got %d", bc.CaseID, len(vectors))
	}

	embedding := &models.CaseEmbedding{
		CaseID:         bc.CaseID,
		NameVector:     vectors[0],
		OverviewVector: vectors[1],
		CombinedVector: vectors[2],
		Model:          s.cfg.Model,
		Dimensions:     s.cfg.Dimensions,
		SourceHash:     sourceHash,
		UpdatedAt:      time.Now().UTC(),
	}

	if err := s.storage.SaveEmbedding(ctx, embedding); err != nil {
		return fmt.Errorf("failed to save embedding for case %s: %w", bc.CaseID, err)
	}

	s.logger.Debug().
		Str("case_id", bc.CaseID).
		Str("model", s.cfg.Model).
		Int("dimensions", s.cfg.Dimensions).
		Msg("Updated case embeddings")

	return nil
}

// combinedSource builds the combined embedding input from the case's
// descriptive fields
func combinedSource(bc *models.BiddingCase) string {
	parts := make([]string, 0, 4)
	for _, s := range []string{bc.Name, bc.Organization, bc.Overview, bc.QualificationRaw} {
		s = strings.TrimSpace(s)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// hashSource fingerprints the embedding inputs so unchanged cases skip
// the API round trip
func hashSource(texts ...string) string {
	h := sha256.New()
	for _, t := range texts {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
