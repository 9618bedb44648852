package models

import (
	"strings"
	"time"
)

// BiddingCase represents one procurement opportunity crawled from the portal.
// CaseID is the portal-assigned identity and the dedup key; re-crawls update
// in place and never create a second row for the same CaseID.
type BiddingCase struct {
	// Identity
	ID     string `json:"id" badgerhold:"unique"`      // case_<uuid>, internal
	CaseID string `json:"case_id" badgerhold:"unique"` // Portal-assigned, immutable

	// Descriptive
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Prefecture   string `json:"prefecture" badgerhold:"index"`
	Overview     string `json:"overview"`
	Remarks      string `json:"remarks"`
	URL          string `json:"url"` // Source listing detail page

	// Schedule
	AnnouncementDate  *time.Time `json:"announcement_date,omitempty"`
	BiddingDate       *time.Time `json:"bidding_date,omitempty"`
	DocumentDeadline  *time.Time `json:"document_deadline,omitempty"`
	BriefingDate      *time.Time `json:"briefing_date,omitempty"`
	AwardAnnouncement *time.Time `json:"award_announcement_date,omitempty"`
	AwardDate         *time.Time `json:"award_date,omitempty"`

	// Qualification
	QualificationRaw     string                     `json:"qualification_raw"`
	QualificationParsed  []QualificationRequirement `json:"qualification_parsed,omitempty"`
	QualificationSummary string                     `json:"qualification_summary"` // Primary required rank

	// Pricing
	PlannedPrice PriceInfo `json:"planned_price"`
	AwardPrice   PriceInfo `json:"award_price"`
	MainPrice    PriceInfo `json:"main_price"`

	// Award outcome
	WinningCompany  string `json:"winning_company,omitempty"`
	WinningReason   string `json:"winning_reason,omitempty"`
	WinningScore    string `json:"winning_score,omitempty"`
	AwardRemarks    string `json:"award_remarks,omitempty"`
	UnsuccessfulBid bool   `json:"unsuccessful_bid"`

	// Eligibility verdict. Nil means pending (not yet determined).
	IsEligibleToBid    *bool               `json:"is_eligible_to_bid,omitempty"`
	EligibilityReason  string              `json:"eligibility_reason,omitempty"`
	EligibilityDetails *EligibilityDetails `json:"eligibility_details,omitempty"`

	// Staged LLM extraction payload
	Extracted *ExtractionResult `json:"extracted,omitempty"`

	// Audit
	SearchCondition string `json:"search_condition"` // The query that discovered this case
	SearchText      string `json:"search_text"`      // Recomputed on every write, drives full-text search

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QualificationRequirement is one parsed qualification clause from the raw
// qualification text. Level is the normalized rank (A, B, C, D), empty when
// no rank is required, or "unknown" when the clause could not be parsed.
type QualificationRequirement struct {
	Level        string  `json:"level"`
	Category     string  `json:"category"` // e.g. "全省庁統一資格", "地方公共団体", "資格不要"
	OriginalText string  `json:"original_text"`
	Confidence   float64 `json:"confidence"` // Parser confidence in [0,1]
}

// PriceInfo carries a price as crawled plus its normalized form.
// Normalized stays nil when Raw could not be parsed (e.g. 非公表);
// Raw is always preserved verbatim.
type PriceInfo struct {
	Raw        string   `json:"raw,omitempty"`
	Normalized *float64 `json:"normalized,omitempty"`
	Unit       string   `json:"unit,omitempty"` // e.g. "円"
}

// EligibilityDetails is the structured reasoning behind an eligibility verdict.
type EligibilityDetails struct {
	Reasons         []string `json:"reasons"`
	Recommendations []string `json:"recommendations"`
	Confidence      float64  `json:"confidence"` // In [0,1]
}

// CaseSummary is the per-row result extracted from a search listing page.
// The crawler yields these; the detail crawl fills in the full BiddingCase.
type CaseSummary struct {
	CaseID          string `json:"case_id"`
	Name            string `json:"name"`
	Organization    string `json:"organization"`
	DetailURL       string `json:"detail_url"`
	SearchCondition string `json:"search_condition"`
	Page            int    `json:"page"` // Listing page the row came from
}

// BuildSearchText assembles the full-text search field from the case's
// descriptive fields. Called on every upsert.
func (c *BiddingCase) BuildSearchText() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{c.Name, c.Overview, c.Organization, c.QualificationRaw} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
