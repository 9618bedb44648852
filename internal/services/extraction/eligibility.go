// -----------------------------------------------------------------------
// Eligibility Rule - deterministic go/no-go verdict from parsed
// qualification requirements and the ranks the operating firm holds
// -----------------------------------------------------------------------

package extraction

import (
	"fmt"
	"strings"

	"github.com/bidscout/bidscout/internal/models"
)

// DetermineEligibility applies the eligibility rule: a case demanding a
// rank the firm does not hold is ineligible; no requirement, a held rank,
// or an unparseable requirement leaves the case eligible. Unknown clauses
// are resolved toward eligible so a human reviews them instead of the
// system silently discarding winnable cases.
func DetermineEligibility(reqs []models.QualificationRequirement, operatingRanks []string, successRatio float64) (bool, *models.EligibilityDetails) {
	held := make(map[string]bool, len(operatingRanks))
	for _, r := range operatingRanks {
		held[strings.ToUpper(strings.TrimSpace(r))] = true
	}

	details := &models.EligibilityDetails{}
	eligible := true
	minConfidence := 1.0

	if len(reqs) == 0 {
		details.Reasons = append(details.Reasons, "入札資格の記載がないため応札可能と判定")
		details.Confidence = composeConfidence(1.0, successRatio)
		return true, details
	}

	for _, req := range reqs {
		level := strings.ToUpper(req.Level)

		switch {
		case level == "":
			details.Reasons = append(details.Reasons,
				fmt.Sprintf("%s: 等級指定なし", req.Category))
		case level == strings.ToUpper(LevelUnknown):
			details.Reasons = append(details.Reasons,
				fmt.Sprintf("%s: 等級を判定できず、応札可能側に倒す", req.Category))
			details.Recommendations = append(details.Recommendations,
				fmt.Sprintf("資格要件の原文を確認: %s", req.OriginalText))
		case held[level]:
			details.Reasons = append(details.Reasons,
				fmt.Sprintf("%s: %s等級は保有資格に含まれる", req.Category, level))
		default:
			eligible = false
			details.Reasons = append(details.Reasons,
				fmt.Sprintf("%s: %s等級が必要、保有資格外", req.Category, level))
		}

		if req.Confidence < minConfidence {
			minConfidence = req.Confidence
		}
	}

	if !eligible {
		details.Recommendations = append(details.Recommendations,
			"上位等級の資格取得を検討するか、本案件を見送る")
	}

	details.Confidence = composeConfidence(minConfidence, successRatio)
	return eligible, details
}

// composeConfidence blends the parser's confidence with the extraction
// pipeline's success ratio. A verdict over a partially failed extraction
// is weaker than the same verdict over a complete one.
func composeConfidence(parseConfidence, successRatio float64) float64 {
	if successRatio <= 0 {
		return parseConfidence
	}
	return (parseConfidence + successRatio) / 2
}

// EligibilityReason renders the one-line verdict summary stored on the case
func EligibilityReason(eligible bool, details *models.EligibilityDetails) string {
	if details == nil || len(details.Reasons) == 0 {
		if eligible {
			return "応札可能"
		}
		return "応札不可"
	}
	return details.Reasons[0]
}
