package badger

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/models"
)

// CaseStorage implements case persistence with upsert-by-CaseID semantics
type CaseStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.CaseStorage = (*CaseStorage)(nil)

// NewCaseStorage creates a new case storage instance
func NewCaseStorage(db *BadgerDB, logger arbor.ILogger) *CaseStorage {
	return &CaseStorage{db: db, logger: logger}
}

// UpsertCase inserts a new case or merges into the existing row keyed by
// CaseID. Incoming empty/nil fields never overwrite stored values, so a
// partial re-crawl cannot null out earlier data. Returns true on insert.
func (s *CaseStorage) UpsertCase(ctx context.Context, bc *models.BiddingCase) (bool, error) {
	if bc.CaseID == "" {
		return false, fmt.Errorf("case is missing its portal case_id")
	}

	// Portal data quality check, logged but stored as-is
	if bc.BiddingDate != nil && bc.AnnouncementDate != nil && bc.BiddingDate.Before(*bc.AnnouncementDate) {
		s.logger.Warn().
			Str("case_id", bc.CaseID).
			Str("bidding_date", bc.BiddingDate.Format(time.RFC3339)).
			Str("announcement_date", bc.AnnouncementDate.Format(time.RFC3339)).
			Msg("Bidding date precedes announcement date")
	}

	now := time.Now().UTC()

	existing, err := s.GetCase(ctx, bc.CaseID)
	if err != nil && err != badgerhold.ErrNotFound {
		return false, fmt.Errorf("failed to look up case %s: %w", bc.CaseID, err)
	}

	if existing == nil {
		if bc.ID == "" {
			bc.ID = common.NewCaseID()
		}
		bc.CreatedAt = now
		bc.UpdatedAt = now
		bc.SearchText = bc.BuildSearchText()

		if err := s.db.Store().Upsert(bc.ID, bc); err != nil {
			return false, fmt.Errorf("failed to insert case %s: %w", bc.CaseID, err)
		}

		s.logger.Debug().Str("case_id", bc.CaseID).Str("id", bc.ID).Msg("Inserted new case")
		return true, nil
	}

	merged := mergeCase(existing, bc)
	merged.UpdatedAt = now
	merged.SearchText = merged.BuildSearchText()

	if err := s.db.Store().Upsert(merged.ID, merged); err != nil {
		return false, fmt.Errorf("failed to update case %s: %w", bc.CaseID, err)
	}

	// Reflect the stored record back to the caller
	*bc = *merged

	s.logger.Debug().Str("case_id", merged.CaseID).Msg("Updated existing case")
	return false, nil
}

// mergeCase overlays incoming non-empty fields onto the stored case.
func mergeCase(existing, in *models.BiddingCase) *models.BiddingCase {
	out := *existing

	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setTime := func(dst **time.Time, v *time.Time) {
		if v != nil {
			*dst = v
		}
	}
	setPrice := func(dst *models.PriceInfo, v models.PriceInfo) {
		if v.Raw != "" {
			*dst = v
		}
	}

	setStr(&out.Name, in.Name)
	setStr(&out.Organization, in.Organization)
	setStr(&out.Prefecture, in.Prefecture)
	setStr(&out.Overview, in.Overview)
	setStr(&out.Remarks, in.Remarks)
	setStr(&out.URL, in.URL)

	setTime(&out.AnnouncementDate, in.AnnouncementDate)
	setTime(&out.BiddingDate, in.BiddingDate)
	setTime(&out.DocumentDeadline, in.DocumentDeadline)
	setTime(&out.BriefingDate, in.BriefingDate)
	setTime(&out.AwardAnnouncement, in.AwardAnnouncement)
	setTime(&out.AwardDate, in.AwardDate)

	setStr(&out.QualificationRaw, in.QualificationRaw)
	if len(in.QualificationParsed) > 0 {
		out.QualificationParsed = in.QualificationParsed
	}
	setStr(&out.QualificationSummary, in.QualificationSummary)

	setPrice(&out.PlannedPrice, in.PlannedPrice)
	setPrice(&out.AwardPrice, in.AwardPrice)
	setPrice(&out.MainPrice, in.MainPrice)

	setStr(&out.WinningCompany, in.WinningCompany)
	setStr(&out.WinningReason, in.WinningReason)
	setStr(&out.WinningScore, in.WinningScore)
	setStr(&out.AwardRemarks, in.AwardRemarks)
	if in.UnsuccessfulBid {
		out.UnsuccessfulBid = true
	}

	if in.IsEligibleToBid != nil {
		out.IsEligibleToBid = in.IsEligibleToBid
	}
	setStr(&out.EligibilityReason, in.EligibilityReason)
	if in.EligibilityDetails != nil {
		out.EligibilityDetails = in.EligibilityDetails
	}

	if in.Extracted != nil {
		out.Extracted = in.Extracted
	}

	setStr(&out.SearchCondition, in.SearchCondition)

	return &out
}

// GetCase retrieves a case by its portal case_id
func (s *CaseStorage) GetCase(ctx context.Context, caseID string) (*models.BiddingCase, error) {
	var cases []*models.BiddingCase
	err := s.db.Store().Find(&cases, badgerhold.Where("CaseID").Eq(caseID))
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, badgerhold.ErrNotFound
	}
	return cases[0], nil
}

// GetCaseByID retrieves a case by its internal ID
func (s *CaseStorage) GetCaseByID(ctx context.Context, id string) (*models.BiddingCase, error) {
	var bc models.BiddingCase
	if err := s.db.Store().Get(id, &bc); err != nil {
		return nil, err
	}
	return &bc, nil
}

// DeleteCase removes a case by its portal case_id
func (s *CaseStorage) DeleteCase(ctx context.Context, caseID string) error {
	bc, err := s.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	return s.db.Store().Delete(bc.ID, &models.BiddingCase{})
}

// CountCases returns the total number of stored cases
func (s *CaseStorage) CountCases(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.BiddingCase{}, nil)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// ListCases returns cases ordered by update time descending
func (s *CaseStorage) ListCases(ctx context.Context, limit, offset int) ([]*models.BiddingCase, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("UpdatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}

	var cases []*models.BiddingCase
	if err := s.db.Store().Find(&cases, query); err != nil {
		return nil, err
	}
	return cases, nil
}

// FullTextSearch matches the query case-insensitively against the
// maintained SearchText field.
func (s *CaseStorage) FullTextSearch(ctx context.Context, query string, limit int) ([]*models.BiddingCase, error) {
	if query == "" {
		return nil, nil
	}

	regex, err := regexp.Compile("(?i)" + regexp.QuoteMeta(query))
	if err != nil {
		return nil, fmt.Errorf("failed to compile search regex: %w", err)
	}

	q := badgerhold.Where("SearchText").RegExp(regex)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var cases []*models.BiddingCase
	if err := s.db.Store().Find(&cases, q); err != nil {
		return nil, err
	}
	return cases, nil
}

// SearchEligible returns eligible cases filtered by free text, prefecture,
// and bidding date range, ordered by bidding date ascending with nulls last.
func (s *CaseStorage) SearchEligible(ctx context.Context, q interfaces.EligibleQuery) ([]*models.BiddingCase, error) {
	query := badgerhold.Where("IsEligibleToBid").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
		bc, ok := ra.Record().(*models.BiddingCase)
		if !ok {
			return false, nil
		}
		if bc.IsEligibleToBid == nil || !*bc.IsEligibleToBid {
			return false, nil
		}
		if q.Prefecture != "" && bc.Prefecture != q.Prefecture {
			return false, nil
		}
		if q.From != nil && (bc.BiddingDate == nil || bc.BiddingDate.Before(*q.From)) {
			return false, nil
		}
		if q.To != nil && bc.BiddingDate != nil && bc.BiddingDate.After(*q.To) {
			return false, nil
		}
		return true, nil
	})

	var cases []*models.BiddingCase
	if err := s.db.Store().Find(&cases, query); err != nil {
		return nil, err
	}

	if q.Text != "" {
		regex, err := regexp.Compile("(?i)" + regexp.QuoteMeta(q.Text))
		if err != nil {
			return nil, fmt.Errorf("failed to compile search regex: %w", err)
		}
		filtered := cases[:0]
		for _, bc := range cases {
			if regex.MatchString(bc.SearchText) {
				filtered = append(filtered, bc)
			}
		}
		cases = filtered
	}

	// Bidding date ascending, cases without a date last
	sort.SliceStable(cases, func(i, j int) bool {
		di, dj := cases[i].BiddingDate, cases[j].BiddingDate
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.Before(*dj)
		}
	})

	if q.Limit > 0 && len(cases) > q.Limit {
		cases = cases[:q.Limit]
	}

	return cases, nil
}
