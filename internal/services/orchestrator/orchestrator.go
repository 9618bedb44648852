// -----------------------------------------------------------------------
// Pipeline Orchestrator - drives one full crawl-and-extract run:
// search, detail crawl, document download, extraction, embeddings
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/models"
)

// JobName identifies pipeline runs in the execution log
const JobName = "crawl_extract"

// Service implements the Orchestrator interface
type Service struct {
	cfg        *common.PipelineConfig
	auth       interfaces.AuthService
	search     interfaces.SearchCrawler
	resolver   interfaces.DocumentResolver
	processor  interfaces.TextProcessor
	pipeline   interfaces.ExtractionPipeline
	embeddings interfaces.EmbeddingService
	storage    interfaces.StorageManager
	logger     arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.Orchestrator = (*Service)(nil)

// NewService creates a new orchestrator
func NewService(
	cfg *common.PipelineConfig,
	auth interfaces.AuthService,
	search interfaces.SearchCrawler,
	resolver interfaces.DocumentResolver,
	processor interfaces.TextProcessor,
	pipeline interfaces.ExtractionPipeline,
	embeddings interfaces.EmbeddingService,
	storage interfaces.StorageManager,
	logger arbor.ILogger,
) *Service {
	return &Service{
		cfg:        cfg,
		auth:       auth,
		search:     search,
		resolver:   resolver,
		processor:  processor,
		pipeline:   pipeline,
		embeddings: embeddings,
		storage:    storage,
		logger:     logger,
	}
}

// Run executes one full pipeline pass over the given search conditions.
// Every run appends exactly one execution log that transitions from
// running to a terminal status once. The run deadline is checked between
// cases; an in-flight case always finishes, then the run logs "timeout".
func (s *Service) Run(ctx context.Context, conditions []string) (*models.RunSummary, error) {
	start := time.Now()
	deadline := start.Add(s.cfg.RunTimeout)

	runLog := &models.JobExecutionLog{
		ID:        common.NewRunID(),
		JobName:   JobName,
		Status:    models.RunStatusRunning,
		StartedAt: start.UTC(),
		Metadata: map[string]interface{}{
			"search_conditions": conditions,
		},
	}
	// Logging failures never fail the run
	if err := s.storage.JobLogStorage().AppendLog(ctx, runLog); err != nil {
		s.logger.Warn().Str("run_id", runLog.ID).Err(err).Msg("Failed to append run log, continuing")
	}

	summary := &models.RunSummary{Status: models.RunStatusSuccess}
	runErr := s.execute(ctx, conditions, deadline, summary)

	summary.Duration = time.Since(start)
	if runErr != nil && summary.Status == models.RunStatusSuccess {
		summary.Status = models.RunStatusFailed
	}

	s.finalizeLog(runLog, summary, runErr)

	s.logger.Info().
		Str("run_id", runLog.ID).
		Str("status", summary.Status).
		Int("processed", summary.Processed).
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Pipeline run finished")

	return summary, runErr
}

// execute performs the run body; summary counters accumulate as it goes
func (s *Service) execute(ctx context.Context, conditions []string, deadline time.Time, summary *models.RunSummary) error {
	sess, err := s.auth.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire portal session: %w", err)
	}
	defer s.auth.Release(sess)

	for _, condition := range conditions {
		if time.Now().After(deadline) {
			summary.Status = models.RunStatusTimeout
			s.logger.Warn().Str("condition", condition).Msg("Run deadline reached before condition, stopping")
			return nil
		}

		// Collect the full listing first; processing a case navigates the
		// browser away from the listing pages.
		var summaries []models.CaseSummary
		err := s.search.Search(ctx, sess, condition, func(cs models.CaseSummary) error {
			summaries = append(summaries, cs)
			return nil
		})
		if err != nil {
			// A condition whose listing never renders costs only that
			// condition; the rest of the batch still runs.
			summary.FailedConditions = append(summary.FailedConditions, condition)
			s.logger.Error().Str("condition", condition).Err(err).Msg("Search failed, skipping condition")
			continue
		}

		s.logger.Info().
			Str("condition", condition).
			Int("cases", len(summaries)).
			Msg("Search condition crawled")

		for _, cs := range summaries {
			if time.Now().After(deadline) {
				summary.Status = models.RunStatusTimeout
				s.logger.Warn().
					Int("remaining", len(summaries)).
					Msg("Run deadline reached, finishing without remaining cases")
				return nil
			}

			summary.Processed++
			created, err := s.processCase(ctx, sess, cs)
			if err != nil {
				summary.Failed++
				s.logger.Error().Str("case_id", cs.CaseID).Err(err).Msg("Case processing failed")
				// A store that cannot take the first write is unreachable and
				// run-fatal; a later write failure costs only that case.
				if isPersistenceError(err) && summary.Added+summary.Updated == 0 {
					return err
				}
				continue
			}
			if created {
				summary.Added++
			} else {
				summary.Updated++
			}
		}
	}

	if len(conditions) > 0 && len(summary.FailedConditions) == len(conditions) {
		return fmt.Errorf("every search condition failed")
	}

	return nil
}

// persistenceError marks storage write failures that survived a retry.
// The run aborts only when nothing has been written yet.
type persistenceError struct{ err error }

func (e *persistenceError) Error() string { return e.err.Error() }
func (e *persistenceError) Unwrap() error { return e.err }

func isPersistenceError(err error) bool {
	_, ok := err.(*persistenceError)
	return ok
}

// processCase runs the per-case pipeline: detail crawl, document download,
// text extraction, LLM stages, persistence, embeddings. A panic in any
// step fails the case, never the run.
func (s *Service) processCase(ctx context.Context, sess interfaces.Session, cs models.CaseSummary) (created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			created = false
			err = fmt.Errorf("panic processing case %s: %v", cs.CaseID, r)
		}
	}()

	bc, err := s.resolver.FetchDetail(ctx, sess, cs)
	if err != nil {
		return false, fmt.Errorf("detail crawl failed: %w", err)
	}

	refs, err := s.resolver.Resolve(ctx, sess, cs.DetailURL)
	if err != nil {
		s.logger.Warn().Str("case_id", cs.CaseID).Err(err).Msg("Document resolution failed, continuing without documents")
	}
	for _, ref := range refs {
		s.resolver.Download(ctx, sess, cs.CaseID, ref)
	}

	docs, err := s.storage.ManifestStorage().GetManifest(ctx, cs.CaseID)
	if err != nil {
		s.logger.Warn().Str("case_id", cs.CaseID).Err(err).Msg("Manifest read failed, extracting without documents")
	}

	text, err := s.processor.Concatenate(ctx, docs)
	if err != nil {
		s.logger.Warn().Str("case_id", cs.CaseID).Err(err).Msg("Document concatenation failed")
	}

	var files []string
	for _, doc := range docs {
		if doc.Status == models.DocumentDownloaded {
			files = append(files, doc.FileName)
		}
	}

	if _, err := s.pipeline.Extract(ctx, bc, text, files); err != nil {
		// Partial or failed extraction still persists; the stage states
		// carry the failure detail
		s.logger.Warn().Str("case_id", cs.CaseID).Err(err).Msg("Extraction produced no usable stages")
	}

	created, err = s.storage.CaseStorage().UpsertCase(ctx, bc)
	if err != nil {
		s.logger.Warn().Str("case_id", cs.CaseID).Err(err).Msg("Case write failed, retrying once")
		created, err = s.storage.CaseStorage().UpsertCase(ctx, bc)
	}
	if err != nil {
		return false, &persistenceError{err: fmt.Errorf("failed to persist case %s: %w", cs.CaseID, err)}
	}

	if err := s.embeddings.UpdateEmbeddings(ctx, bc); err != nil {
		s.logger.Warn().Str("case_id", cs.CaseID).Err(err).Msg("Embedding update failed")
	}

	return created, nil
}

// finalizeLog transitions the run log to its terminal state exactly once
func (s *Service) finalizeLog(runLog *models.JobExecutionLog, summary *models.RunSummary, runErr error) {
	completed := time.Now().UTC()
	runLog.Status = summary.Status
	runLog.CompletedAt = &completed
	runLog.Processed = summary.Processed
	runLog.Added = summary.Added
	runLog.Updated = summary.Updated
	runLog.Failed = summary.Failed
	runLog.DurationSeconds = summary.Duration.Seconds()
	if runErr != nil {
		runLog.ErrorMessage = runErr.Error()
	}
	if len(summary.FailedConditions) > 0 {
		if runLog.Metadata == nil {
			runLog.Metadata = make(map[string]interface{})
		}
		runLog.Metadata["failed_conditions"] = summary.FailedConditions
	}

	// Finalization must not inherit a cancelled run context
	logCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.storage.JobLogStorage().UpdateLog(logCtx, runLog); err != nil {
		s.logger.Error().Str("run_id", runLog.ID).Err(err).Msg("Failed to finalize run log")
	}
}
