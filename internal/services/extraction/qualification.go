// -----------------------------------------------------------------------
// Qualification Parser - deterministic parsing of 入札資格 text into
// normalized rank requirements, independent of the LLM stages
// -----------------------------------------------------------------------

package extraction

import (
	"regexp"
	"strings"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/models"
)

// Qualification categories
const (
	CategoryUnified    = "全省庁統一資格"
	CategoryLocal      = "地方公共団体"
	CategoryMinistry   = "省庁個別資格"
	CategoryNoneNeeded = "資格不要"
	CategoryUnknown    = "不明"
)

// LevelUnknown marks a clause whose rank could not be determined
const LevelUnknown = "unknown"

var (
	// A等級, Bランク, ランクA, A級 and full-width variants (folded first)
	rankRe = regexp.MustCompile(`([ABCD])\s*(?:等級|ランク|級)|(?:等級|ランク)\s*([ABCD])`)

	unifiedRe    = regexp.MustCompile(`全省庁統一資格|統一資格`)
	localRe      = regexp.MustCompile(`地方公共団体|都道府県|市町村|[都道府県市町村]の(?:競争)?入札参加資格`)
	ministryRe   = regexp.MustCompile(`(?:省|庁|機構|独立行政法人)の?(?:競争参加|入札参加)資格`)
	noRankRe     = regexp.MustCompile(`ランク(?:無し|なし)|等級を?問わ|等級不問`)
	noneNeededRe = regexp.MustCompile(`資格不要|資格は不要|資格を要しない`)
)

// ParseQualification breaks raw qualification text into normalized
// requirements with per-clause confidence. An empty slice means the text
// named no requirement at all.
func ParseQualification(raw string) []models.QualificationRequirement {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var reqs []models.QualificationRequirement
	for _, clause := range splitClauses(raw) {
		req := parseClause(clause)
		if req != nil {
			reqs = append(reqs, *req)
		}
	}
	return reqs
}

// splitClauses breaks the qualification block into independently
// parseable clauses
func splitClauses(raw string) []string {
	folded := common.FoldWidth(raw)
	parts := regexp.MustCompile(`[\n。;]+`).Split(folded, -1)

	var clauses []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			clauses = append(clauses, p)
		}
	}
	return clauses
}

// parseClause classifies one clause. Confidence reflects how directly the
// text states the requirement, not how restrictive it is.
func parseClause(clause string) *models.QualificationRequirement {
	if noneNeededRe.MatchString(clause) {
		return &models.QualificationRequirement{
			Level:        "",
			Category:     CategoryNoneNeeded,
			OriginalText: clause,
			Confidence:   1.0,
		}
	}

	rank := extractRank(clause)

	if unifiedRe.MatchString(clause) {
		switch {
		case rank != "":
			return &models.QualificationRequirement{
				Level:        rank,
				Category:     CategoryUnified,
				OriginalText: clause,
				Confidence:   1.0,
			}
		case noRankRe.MatchString(clause):
			return &models.QualificationRequirement{
				Level:        "",
				Category:     CategoryUnified,
				OriginalText: clause,
				Confidence:   0.95,
			}
		default:
			return &models.QualificationRequirement{
				Level:        LevelUnknown,
				Category:     CategoryUnified,
				OriginalText: clause,
				Confidence:   0.9,
			}
		}
	}

	if localRe.MatchString(clause) {
		level := rank
		confidence := 0.85
		if level == "" {
			level = LevelUnknown
			confidence = 0.8
		}
		return &models.QualificationRequirement{
			Level:        level,
			Category:     CategoryLocal,
			OriginalText: clause,
			Confidence:   confidence,
		}
	}

	if ministryRe.MatchString(clause) {
		level := rank
		if level == "" {
			level = LevelUnknown
		}
		return &models.QualificationRequirement{
			Level:        level,
			Category:     CategoryMinistry,
			OriginalText: clause,
			Confidence:   0.7,
		}
	}

	// A bare rank mention with no named scheme still binds
	if rank != "" {
		return &models.QualificationRequirement{
			Level:        rank,
			Category:     CategoryUnknown,
			OriginalText: clause,
			Confidence:   0.6,
		}
	}

	// Only surface unclassifiable clauses that look like requirements
	if strings.Contains(clause, "資格") {
		return &models.QualificationRequirement{
			Level:        LevelUnknown,
			Category:     CategoryUnknown,
			OriginalText: clause,
			Confidence:   0.1,
		}
	}

	return nil
}

// extractRank pulls the A-D rank letter out of a folded clause
func extractRank(clause string) string {
	m := rankRe.FindStringSubmatch(clause)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// SummarizeQualification returns the primary required rank for display:
// the most restrictive rank found, or the category when no rank applies.
func SummarizeQualification(reqs []models.QualificationRequirement) string {
	best := ""
	for _, req := range reqs {
		if req.Level == "" || req.Level == LevelUnknown {
			continue
		}
		if best == "" || req.Level < best {
			best = req.Level
		}
	}
	if best != "" {
		return best
	}
	for _, req := range reqs {
		if req.Category == CategoryNoneNeeded {
			return CategoryNoneNeeded
		}
	}
	if len(reqs) > 0 {
		return LevelUnknown
	}
	return ""
}
