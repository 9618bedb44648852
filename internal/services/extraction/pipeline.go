// -----------------------------------------------------------------------
// Extraction Pipeline - staged LLM extraction over concatenated case
// documents with per-stage state, schema validation, and one re-prompt
// -----------------------------------------------------------------------

package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
	"github.com/bidscout/bidscout/internal/models"
	"github.com/bidscout/bidscout/internal/services/llm"
)

const systemInstruction = "あなたは日本の官公庁入札案件を分析する調達アナリストです。" +
	"与えられた入札関連文書のみを根拠に回答し、文書にない情報を推測で補わないでください。" +
	"回答は指定された JSON スキーマに厳密に従ってください。"

const defaultStageTimeout = 5 * time.Minute

// ContentGenerator is the slice of the LLM provider the pipeline calls
type ContentGenerator interface {
	GenerateContent(ctx context.Context, request *llm.ContentRequest) (*llm.ContentResponse, error)
}

// Compile-time interface assertion
var _ ContentGenerator = (*llm.ProviderFactory)(nil)

// Service implements the ExtractionPipeline interface
type Service struct {
	factory     ContentGenerator
	pipelineCfg *common.PipelineConfig
	llmCfg      *common.LLMConfig
	geminiCfg   *common.GeminiConfig
	claudeCfg   *common.ClaudeConfig
	validate    *validator.Validate
	logger      arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.ExtractionPipeline = (*Service)(nil)

// NewService creates a new extraction pipeline
func NewService(
	factory ContentGenerator,
	pipelineCfg *common.PipelineConfig,
	llmCfg *common.LLMConfig,
	geminiCfg *common.GeminiConfig,
	claudeCfg *common.ClaudeConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		factory:     factory,
		pipelineCfg: pipelineCfg,
		llmCfg:      llmCfg,
		geminiCfg:   geminiCfg,
		claudeCfg:   claudeCfg,
		validate:    validator.New(),
		logger:      logger,
	}
}

// Extract runs all stages against the concatenated document text. Stage
// failures are absorbed into the per-stage state so partial results
// survive; the returned error is non-nil only when no stage ran at all.
func (s *Service) Extract(ctx context.Context, bc *models.BiddingCase, text string, files []string) (*models.ExtractionResult, error) {
	model := s.defaultModel()
	result := models.NewExtractionResult(model)
	result.Metadata.ProcessedFiles = files

	if strings.TrimSpace(text) == "" {
		result.Status = models.ExtractionFailed
		return result, fmt.Errorf("no document text to extract for case %s", bc.CaseID)
	}

	succeeded := 0
	for _, stage := range stageDefs {
		if err := ctx.Err(); err != nil {
			s.markRemainingFailed(result, "run cancelled")
			break
		}

		if err := s.runStage(ctx, stage, bc, text, result); err != nil {
			result.StageStates[stage.Name] = models.StageState{
				Status: models.StageFailed,
				Error:  err.Error(),
			}
			s.logger.Warn().
				Str("case_id", bc.CaseID).
				Str("stage", stage.Name).
				Err(err).
				Msg("Extraction stage failed")
		} else {
			result.StageStates[stage.Name] = models.StageState{Status: models.StageDone}
			succeeded++
		}

		advanceStatus(result, stage.Name)
	}

	if succeeded == 0 {
		result.Status = models.ExtractionFailed
		return result, fmt.Errorf("all extraction stages failed for case %s", bc.CaseID)
	}

	s.applyToCase(bc, result)
	result.Status = models.ExtractionEligibilityDetermined

	if result.FailedStageCount() == 0 {
		result.Status = models.ExtractionDone
	}
	bc.Extracted = result

	s.logger.Info().
		Str("case_id", bc.CaseID).
		Int("stages_done", succeeded).
		Int("stages_failed", result.FailedStageCount()).
		Msg("Extraction completed")

	return result, nil
}

// runStage performs one model call with schema validation. A validation
// failure earns exactly one re-prompt carrying the validator's complaint;
// a second failure fails the stage.
func (s *Service) runStage(ctx context.Context, stage stageDef, bc *models.BiddingCase, text string, result *models.ExtractionResult) error {
	prompt := s.buildPrompt(stage, bc, text)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			prompt = prompt + "\n\n前回の出力は次の理由で不正でした。修正して再出力してください: " + lastErr.Error()
		}

		stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout())
		resp, err := s.factory.GenerateContent(stageCtx, &llm.ContentRequest{
			Prompt:            prompt,
			MaxRetries:        s.pipelineCfg.StageRetries,
			SystemInstruction: systemInstruction,
			OutputSchema:      stage.Schema,
		})
		cancel()
		if err != nil {
			return err
		}

		payload := stripCodeFence(resp.Text)
		if err := stage.Apply(s.validate, payload, result); err != nil {
			lastErr = err
			s.logger.Debug().
				Str("case_id", bc.CaseID).
				Str("stage", stage.Name).
				Err(err).
				Msg("Stage output rejected, re-prompting")
			continue
		}
		return nil
	}

	return lastErr
}

// buildPrompt assembles the stage prompt: instruction, explicit schema for
// providers without native structured output, case context, then the text
func (s *Service) buildPrompt(stage stageDef, bc *models.BiddingCase, text string) string {
	var b strings.Builder
	b.WriteString(stage.Instruction)
	b.WriteString("\n\n")

	if schemaJSON, err := json.Marshal(stage.Schema); err == nil {
		b.WriteString("出力は次の JSON スキーマに従ってください:\n")
		b.Write(schemaJSON)
		b.WriteString("\n\n")
	}

	b.WriteString("案件名: ")
	b.WriteString(bc.Name)
	if bc.Organization != "" {
		b.WriteString("\n発注機関: ")
		b.WriteString(bc.Organization)
	}
	b.WriteString("\n\n--- 入札関連文書 ---\n")
	b.WriteString(text)
	return b.String()
}

// advanceStatus moves the pipeline status forward at its checkpoints.
// Status only advances, never regresses, so a failed later stage leaves
// the checkpoint reached intact.
func advanceStatus(result *models.ExtractionResult, stageName string) {
	state := result.StageStates[stageName]
	if state.Status != models.StageDone {
		return
	}
	switch stageName {
	case models.StageImportantDates:
		result.Status = models.ExtractionDatesExtracted
	case models.StageQualificationRequirements:
		result.Status = models.ExtractionQualificationsComplete
	case models.StageRiskAnalysis:
		result.Status = models.ExtractionRiskAnalyzed
	}
}

// applyToCase writes extraction output onto the case: dates and prices
// fill gaps the detail crawl left, then the deterministic qualification
// parse and eligibility rule produce the verdict. Crawled values win over
// extracted ones.
func (s *Service) applyToCase(bc *models.BiddingCase, result *models.ExtractionResult) {
	if dates := result.ImportantDates; dates != nil {
		setDate(&bc.AnnouncementDate, dates.AnnouncementDate)
		setDate(&bc.BriefingDate, dates.BriefingDate)
		setDate(&bc.DocumentDeadline, dates.DocumentDeadline)
		setDate(&bc.BiddingDate, dates.BiddingDate)
		setDate(&bc.AwardAnnouncement, dates.AwardAnnouncement)
	}

	if fin := result.FinancialInfo; fin != nil && fin.PlannedPrice != "" && bc.PlannedPrice.Raw == "" {
		normalized, unit := common.NormalizePrice(fin.PlannedPrice)
		bc.PlannedPrice = models.PriceInfo{Raw: fin.PlannedPrice, Normalized: normalized, Unit: unit}
	}
	if bc.MainPrice.Raw == "" {
		bc.MainPrice = bc.PlannedPrice
	}

	if qual := result.QualificationRequirements; qual != nil && bc.QualificationRaw == "" {
		bc.QualificationRaw = qual.OriginalText
	}

	reqs := ParseQualification(bc.QualificationRaw)
	bc.QualificationParsed = reqs
	bc.QualificationSummary = SummarizeQualification(reqs)

	eligible, details := DetermineEligibility(reqs, s.pipelineCfg.OperatingRanks, result.SuccessRatio())
	bc.IsEligibleToBid = &eligible
	bc.EligibilityDetails = details
	bc.EligibilityReason = EligibilityReason(eligible, details)
}

// setDate fills a nil case date from an extracted ISO string
func setDate(target **time.Time, iso string) {
	if *target != nil || iso == "" {
		return
	}
	if parsed := common.ParseJapaneseDate(iso); parsed != nil {
		*target = parsed
	}
}

// markRemainingFailed fails every still-pending stage with the given reason
func (s *Service) markRemainingFailed(result *models.ExtractionResult, reason string) {
	for name, state := range result.StageStates {
		if state.Status == models.StagePending {
			result.StageStates[name] = models.StageState{
				Status: models.StageFailed,
				Error:  reason,
			}
		}
	}
}

// defaultModel resolves the model for the configured default provider
func (s *Service) defaultModel() string {
	if common.LLMProvider(s.llmCfg.DefaultProvider) == common.LLMProviderClaude {
		return s.claudeCfg.Model
	}
	return s.geminiCfg.Model
}

// stageTimeout parses the configured provider timeout
func (s *Service) stageTimeout() time.Duration {
	raw := s.geminiCfg.Timeout
	if common.LLMProvider(s.llmCfg.DefaultProvider) == common.LLMProviderClaude {
		raw = s.claudeCfg.Timeout
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return defaultStageTimeout
}

// stripCodeFence removes a markdown code fence wrapper from a model answer
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
