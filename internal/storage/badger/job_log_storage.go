package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/models"
)

// JobLogStorage implements append-only pipeline run logs for Badger
type JobLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.JobLogStorage = (*JobLogStorage)(nil)

// NewJobLogStorage creates a new JobLogStorage instance
func NewJobLogStorage(db *BadgerDB, logger arbor.ILogger) *JobLogStorage {
	return &JobLogStorage{
		db:     db,
		logger: logger,
	}
}

// AppendLog inserts a new run log row. Fails if the ID already exists.
func (s *JobLogStorage) AppendLog(ctx context.Context, log *models.JobExecutionLog) error {
	if log.ID == "" {
		return fmt.Errorf("job log is missing its run ID")
	}
	if err := s.db.Store().Insert(log.ID, log); err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}
	return nil
}

// UpdateLog transitions an existing log to a terminal status. Terminal
// rows are immutable.
func (s *JobLogStorage) UpdateLog(ctx context.Context, log *models.JobExecutionLog) error {
	existing, err := s.GetLog(ctx, log.ID)
	if err != nil {
		return err
	}
	if existing.Status != models.RunStatusRunning {
		return fmt.Errorf("job log %s is already terminal (%s)", log.ID, existing.Status)
	}
	if err := s.db.Store().Update(log.ID, log); err != nil {
		return fmt.Errorf("failed to update job log: %w", err)
	}
	return nil
}

// GetLog retrieves a run log by its ID
func (s *JobLogStorage) GetLog(ctx context.Context, id string) (*models.JobExecutionLog, error) {
	var log models.JobExecutionLog
	if err := s.db.Store().Get(id, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

// ListLogs returns recent run logs for a job name, newest first
func (s *JobLogStorage) ListLogs(ctx context.Context, jobName string, limit int) ([]*models.JobExecutionLog, error) {
	query := badgerhold.Where("JobName").Eq(jobName).Index("JobName").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var logs []*models.JobExecutionLog
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, err
	}
	return logs, nil
}
