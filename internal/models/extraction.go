package models

import "time"

// Extraction stage names, in pipeline order. Each stage is one focused
// model call producing a schema-validated slice of the result.
const (
	StageImportantDates            = "important_dates"
	StageQualificationRequirements = "qualification_requirements"
	StageBusinessContent           = "business_content"
	StageFinancialInfo             = "financial_info"
	StageSubmissionRequirements    = "submission_requirements"
	StageEvaluationCriteria        = "evaluation_criteria"
	StageContactInfo               = "contact_info"
	StageSpecialConditions         = "special_conditions"
	StageRiskAnalysis              = "risk_analysis"
	StageBidFeasibility            = "bid_feasibility"
)

// ExtractionStatus tracks a case's progress through the staged pipeline.
type ExtractionStatus string

const (
	ExtractionPending                = ExtractionStatus("pending")
	ExtractionDatesExtracted         = ExtractionStatus("dates_extracted")
	ExtractionQualificationsComplete = ExtractionStatus("qualifications_extracted")
	ExtractionRiskAnalyzed           = ExtractionStatus("risk_analyzed")
	ExtractionEligibilityDetermined  = ExtractionStatus("eligibility_determined")
	ExtractionDone                   = ExtractionStatus("done")
	ExtractionFailed                 = ExtractionStatus("failed")
)

// Importance levels used across stage outputs.
const (
	ImportanceLow    = "低"
	ImportanceMedium = "中"
	ImportanceHigh   = "高"
)

// StageStateStatus is the outcome of a single stage for a case.
type StageStateStatus string

const (
	StagePending = StageStateStatus("pending")
	StageDone    = StageStateStatus("done")
	StageFailed  = StageStateStatus("failed")
)

// StageState records the per-stage outcome so partial extraction is
// preserved when later stages fail.
type StageState struct {
	Status StageStateStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
}

// ExtractionResult is the full staged extraction payload stored on a case.
// Any section may be nil when its stage failed; consumers render absent
// fields as absent, never as fabricated defaults.
type ExtractionResult struct {
	Status ExtractionStatus `json:"status"`

	ImportantDates            *ImportantDates         `json:"important_dates,omitempty"`
	QualificationRequirements *QualificationSection   `json:"qualification_requirements,omitempty"`
	BusinessContent           *BusinessContent        `json:"business_content,omitempty"`
	FinancialInfo             *FinancialInfo          `json:"financial_info,omitempty"`
	SubmissionRequirements    *SubmissionRequirements `json:"submission_requirements,omitempty"`
	EvaluationCriteria        *EvaluationCriteria     `json:"evaluation_criteria,omitempty"`
	ContactInfo               *ContactInfo            `json:"contact_info,omitempty"`
	SpecialConditions         *SpecialConditions      `json:"special_conditions,omitempty"`
	RiskAnalysis              *RiskAnalysis           `json:"risk_analysis,omitempty"`
	BidFeasibility            *BidFeasibility         `json:"bid_feasibility,omitempty"`

	StageStates map[string]StageState `json:"stage_states"`
	Metadata    ExtractionMetadata    `json:"extraction_metadata"`
}

// ExtractionMetadata records provenance for an extraction run.
type ExtractionMetadata struct {
	ProcessedFiles []string  `json:"processed_files"`
	Model          string    `json:"model"`
	Timestamp      time.Time `json:"timestamp"`
}

// ImportantDates holds schedule facts extracted from the documents.
// Dates are ISO strings as returned by the model; normalization to
// time.Time happens when they are written onto the case.
type ImportantDates struct {
	AnnouncementDate  string `json:"announcement_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	BriefingDate      string `json:"briefing_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DocumentDeadline  string `json:"document_deadline,omitempty" validate:"omitempty,datetime=2006-01-02"`
	BiddingDate       string `json:"bidding_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	AwardAnnouncement string `json:"award_announcement_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ContractDate      string `json:"contract_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes             string `json:"notes,omitempty"`
}

// QualificationSection is the model's reading of qualification requirements,
// cross-checked against the deterministic regex parser.
type QualificationSection struct {
	RequiredRank     string   `json:"required_rank,omitempty"`
	Category         string   `json:"category,omitempty"`
	RegionRestricted bool     `json:"region_restricted"`
	Regions          []string `json:"regions,omitempty"`
	OtherConditions  []string `json:"other_conditions,omitempty"`
	OriginalText     string   `json:"original_text,omitempty"`
}

// BusinessContent describes what the procurement is actually buying.
type BusinessContent struct {
	Summary          string   `json:"summary,omitempty"`
	BusinessCategory string   `json:"business_category,omitempty"` // B01-B99 code when identifiable
	WorkItems        []string `json:"work_items,omitempty"`
	DeliveryLocation string   `json:"delivery_location,omitempty"`
	ContractPeriod   string   `json:"contract_period,omitempty"`
}

// FinancialInfo carries prices as strings; normalization is separate.
type FinancialInfo struct {
	PlannedPrice    string `json:"planned_price,omitempty"`
	MinimumPrice    string `json:"minimum_price,omitempty"`
	PaymentTerms    string `json:"payment_terms,omitempty"`
	DepositRequired bool   `json:"deposit_required"`
	DepositDetails  string `json:"deposit_details,omitempty"`
}

// SubmissionRequirements lists what a bidder must submit and how.
type SubmissionRequirements struct {
	Documents        []string `json:"documents,omitempty"`
	SubmissionMethod string   `json:"submission_method,omitempty"`
	SubmissionPlace  string   `json:"submission_place,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// EvaluationCriteria describes how bids are scored.
type EvaluationCriteria struct {
	Method       string   `json:"method,omitempty"` // e.g. 最低価格落札方式, 総合評価落札方式
	PriceWeight  string   `json:"price_weight,omitempty"`
	TechCriteria []string `json:"technical_criteria,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// ContactInfo is the procurement office contact block.
type ContactInfo struct {
	Department string `json:"department,omitempty"`
	Person     string `json:"person,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Address    string `json:"address,omitempty"`
}

// SpecialConditions flags unusual contract terms.
type SpecialConditions struct {
	Conditions []SpecialCondition `json:"conditions,omitempty"`
}

// SpecialCondition is one flagged term with its importance.
type SpecialCondition struct {
	Description string `json:"description"`
	Importance  string `json:"importance" validate:"omitempty,oneof=低 中 高"`
}

// RiskAnalysis is the model's risk assessment of bidding on the case.
type RiskAnalysis struct {
	Risks       []RiskItem `json:"risks,omitempty"`
	OverallRisk string     `json:"overall_risk,omitempty" validate:"omitempty,oneof=低 中 高"`
	Summary     string     `json:"summary,omitempty"`
}

// RiskItem is one identified risk.
type RiskItem struct {
	Description string `json:"description"`
	Severity    string `json:"severity" validate:"omitempty,oneof=低 中 高"`
	Mitigation  string `json:"mitigation,omitempty"`
}

// BidFeasibility is the model's overall go/no-go assessment, advisory to
// the deterministic eligibility rule.
type BidFeasibility struct {
	Feasible        *bool    `json:"feasible,omitempty"`
	Confidence      float64  `json:"confidence" validate:"gte=0,lte=1"`
	Reasons         []string `json:"reasons,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// NewExtractionResult returns a result with every stage pending.
func NewExtractionResult(model string) *ExtractionResult {
	states := make(map[string]StageState, len(StageNames))
	for _, name := range StageNames {
		states[name] = StageState{Status: StagePending}
	}
	return &ExtractionResult{
		Status:      ExtractionPending,
		StageStates: states,
		Metadata: ExtractionMetadata{
			Model:     model,
			Timestamp: time.Now().UTC(),
		},
	}
}

// StageNames lists all stages in pipeline order.
var StageNames = []string{
	StageImportantDates,
	StageQualificationRequirements,
	StageBusinessContent,
	StageFinancialInfo,
	StageSubmissionRequirements,
	StageEvaluationCriteria,
	StageContactInfo,
	StageSpecialConditions,
	StageRiskAnalysis,
	StageBidFeasibility,
}

// FailedStageCount returns how many stages ended in failure.
func (r *ExtractionResult) FailedStageCount() int {
	count := 0
	for _, state := range r.StageStates {
		if state.Status == StageFailed {
			count++
		}
	}
	return count
}

// SuccessRatio returns the fraction of stages that completed, used when
// composing eligibility confidence.
func (r *ExtractionResult) SuccessRatio() float64 {
	if len(r.StageStates) == 0 {
		return 0
	}
	done := 0
	for _, state := range r.StageStates {
		if state.Status == StageDone {
			done++
		}
	}
	return float64(done) / float64(len(r.StageStates))
}
