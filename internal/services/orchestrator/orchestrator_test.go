package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/models"
	badgerstore "github.com/bidscout/bidscout/internal/storage/badger"
)

type fakeSession struct{}

func (fakeSession) Context() context.Context { return context.Background() }

type fakeAuth struct {
	acquired int
	released int
}

func (a *fakeAuth) Acquire(ctx context.Context) (interfaces.Session, error) {
	a.acquired++
	return fakeSession{}, nil
}
func (a *fakeAuth) IsValid(ctx context.Context, sess interfaces.Session) bool { return true }
func (a *fakeAuth) Refresh(ctx context.Context, sess interfaces.Session) error {
	return nil
}
func (a *fakeAuth) Release(sess interfaces.Session) { a.released++ }

type fakeSearch struct {
	cases         []models.CaseSummary
	err           error
	failCondition string // when set, err fires only for this condition
}

func (s *fakeSearch) Search(ctx context.Context, sess interfaces.Session, condition string, fn func(models.CaseSummary) error) error {
	if s.err != nil && (s.failCondition == "" || s.failCondition == condition) {
		return s.err
	}
	for _, cs := range s.cases {
		cs.SearchCondition = condition
		if err := fn(cs); err != nil {
			return err
		}
	}
	return nil
}

type fakeResolver struct {
	failCaseID string
}

func (r *fakeResolver) FetchDetail(ctx context.Context, sess interfaces.Session, cs models.CaseSummary) (*models.BiddingCase, error) {
	if cs.CaseID == r.failCaseID {
		return nil, errors.New("detail page did not load")
	}
	return &models.BiddingCase{
		CaseID:       cs.CaseID,
		Name:         cs.Name,
		Organization: cs.Organization,
		URL:          cs.DetailURL,
	}, nil
}

func (r *fakeResolver) Resolve(ctx context.Context, sess interfaces.Session, detailURL string) ([]models.DocumentRef, error) {
	return nil, nil
}

func (r *fakeResolver) Download(ctx context.Context, sess interfaces.Session, caseID string, ref models.DocumentRef) models.DownloadResult {
	return models.DownloadResult{Status: models.DocumentDownloaded}
}

type fakeProcessor struct{}

func (fakeProcessor) ExtractText(ctx context.Context, doc *models.CaseDocument) (string, error) {
	return "", nil
}
func (fakeProcessor) Concatenate(ctx context.Context, docs []*models.CaseDocument) (string, error) {
	return "", nil
}

type fakePipeline struct {
	calls int
}

func (p *fakePipeline) Extract(ctx context.Context, bc *models.BiddingCase, text string, files []string) (*models.ExtractionResult, error) {
	p.calls++
	return models.NewExtractionResult("test-model"), nil
}

type fakeEmbeddings struct {
	calls int
}

func (e *fakeEmbeddings) UpdateEmbeddings(ctx context.Context, bc *models.BiddingCase) error {
	e.calls++
	return nil
}

// flakyStorage wraps a real manager but refuses case writes, either for
// every case or for one specific CaseID.
type flakyStorage struct {
	interfaces.StorageManager
	failID string // empty means fail everything
}

type flakyCaseStorage struct {
	interfaces.CaseStorage
	failID string
}

func (s flakyStorage) CaseStorage() interfaces.CaseStorage {
	return flakyCaseStorage{CaseStorage: s.StorageManager.CaseStorage(), failID: s.failID}
}

func (s flakyCaseStorage) UpsertCase(ctx context.Context, bc *models.BiddingCase) (bool, error) {
	if s.failID == "" || bc.CaseID == s.failID {
		return false, errors.New("disk full")
	}
	return s.CaseStorage.UpsertCase(ctx, bc)
}

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	storage, err := badgerstore.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func newTestOrchestrator(t *testing.T, storage interfaces.StorageManager, search *fakeSearch, resolver *fakeResolver, timeout time.Duration) (*Service, *fakeAuth, *fakePipeline, *fakeEmbeddings) {
	auth := &fakeAuth{}
	pipeline := &fakePipeline{}
	embeddings := &fakeEmbeddings{}
	svc := NewService(
		&common.PipelineConfig{RunTimeout: timeout},
		auth,
		search,
		resolver,
		fakeProcessor{},
		pipeline,
		embeddings,
		storage,
		arbor.NewLogger(),
	)
	return svc, auth, pipeline, embeddings
}

func listingOf(ids ...string) []models.CaseSummary {
	out := make([]models.CaseSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.CaseSummary{
			CaseID:    id,
			Name:      "業務 " + id,
			DetailURL: "https://www.njss.info/offers/view/" + id,
		})
	}
	return out
}

func TestRun_AddsThenUpdates(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	search := &fakeSearch{cases: listingOf("1", "2")}
	svc, auth, pipeline, embeddings := newTestOrchestrator(t, storage, search, &fakeResolver{}, time.Hour)

	summary, err := svc.Run(ctx, []string{"警備"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, summary.Status)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, pipeline.calls)
	assert.Equal(t, 2, embeddings.calls)
	assert.Equal(t, 1, auth.acquired)
	assert.Equal(t, 1, auth.released)

	// Second run over the same listing updates instead of adding
	summary, err = svc.Run(ctx, []string{"警備"})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Added)
	assert.Equal(t, 2, summary.Updated)

	count, err := storage.CaseStorage().CountCases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRun_WritesTerminalLog(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	search := &fakeSearch{cases: listingOf("1")}
	svc, _, _, _ := newTestOrchestrator(t, storage, search, &fakeResolver{}, time.Hour)

	_, err := svc.Run(ctx, []string{"警備"})
	require.NoError(t, err)

	logs, err := storage.JobLogStorage().ListLogs(ctx, JobName, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.RunStatusSuccess, logs[0].Status)
	assert.Equal(t, 1, logs[0].Processed)
	require.NotNil(t, logs[0].CompletedAt)
}

func TestRun_FailedCaseDoesNotAbortRun(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	search := &fakeSearch{cases: listingOf("1", "2", "3")}
	svc, _, _, _ := newTestOrchestrator(t, storage, search, &fakeResolver{failCaseID: "2"}, time.Hour)

	summary, err := svc.Run(ctx, []string{"警備"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, summary.Status)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, 1, summary.Failed)
}

func TestRun_UnreachableStoreAbortsRun(t *testing.T) {
	ctx := context.Background()
	storage := flakyStorage{StorageManager: newTestStorage(t)}
	search := &fakeSearch{cases: listingOf("1", "2", "3")}
	svc, _, _, _ := newTestOrchestrator(t, storage, search, &fakeResolver{}, time.Hour)

	summary, err := svc.Run(ctx, []string{"警備"})
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, summary.Status)
	// Nothing was ever written, so the run stops at the first failure
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
}

func TestRun_LateWriteFailureFailsCaseOnly(t *testing.T) {
	ctx := context.Background()
	storage := flakyStorage{StorageManager: newTestStorage(t), failID: "2"}
	search := &fakeSearch{cases: listingOf("1", "2", "3")}
	svc, _, _, _ := newTestOrchestrator(t, storage, search, &fakeResolver{}, time.Hour)

	summary, err := svc.Run(ctx, []string{"警備"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, summary.Status)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, 1, summary.Failed)
}

func TestRun_DeadlineLogsTimeout(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	search := &fakeSearch{cases: listingOf("1")}
	svc, _, _, _ := newTestOrchestrator(t, storage, search, &fakeResolver{}, -time.Second)

	summary, err := svc.Run(ctx, []string{"警備"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusTimeout, summary.Status)
	assert.Equal(t, 0, summary.Processed)

	logs, err := storage.JobLogStorage().ListLogs(ctx, JobName, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.RunStatusTimeout, logs[0].Status)
}

func TestRun_SearchFailureSkipsCondition(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	search := &fakeSearch{
		cases:         listingOf("1", "2"),
		err:           errors.New("listing did not render"),
		failCondition: "警備",
	}
	svc, _, _, _ := newTestOrchestrator(t, storage, search, &fakeResolver{}, time.Hour)

	summary, err := svc.Run(ctx, []string{"警備", "清掃"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, summary.Status)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, []string{"警備"}, summary.FailedConditions)

	// The run log records which conditions never produced a listing
	logs, err := storage.JobLogStorage().ListLogs(ctx, JobName, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.RunStatusSuccess, logs[0].Status)
	require.Contains(t, logs[0].Metadata, "failed_conditions")
}

func TestRun_AllConditionsFailedFailsRun(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	search := &fakeSearch{err: errors.New("listing did not render")}
	svc, _, _, _ := newTestOrchestrator(t, storage, search, &fakeResolver{}, time.Hour)

	summary, err := svc.Run(ctx, []string{"警備"})
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, summary.Status)
	assert.Equal(t, 0, summary.Processed)
}
