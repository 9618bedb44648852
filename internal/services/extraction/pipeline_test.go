package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/models"
	"github.com/bidscout/bidscout/internal/services/llm"
)

// scriptedGenerator answers every stage with a minimal valid payload.
// Prompts containing failOn get an invalid answer instead; a non-nil err
// fails every call outright.
type scriptedGenerator struct {
	requests []*llm.ContentRequest
	failOn   string
	err      error
}

func (g *scriptedGenerator) GenerateContent(_ context.Context, req *llm.ContentRequest) (*llm.ContentResponse, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	if g.failOn != "" && strings.Contains(req.Prompt, g.failOn) {
		return &llm.ContentResponse{Text: `{"overall_risk":"極"}`}, nil
	}
	return &llm.ContentResponse{Text: "{}"}, nil
}

func newTestPipeline(gen ContentGenerator) *Service {
	return NewService(
		gen,
		&common.PipelineConfig{StageRetries: 3, OperatingRanks: []string{"D"}},
		&common.LLMConfig{DefaultProvider: common.LLMProviderGemini},
		&common.GeminiConfig{Model: "gemini-2.5-flash", Timeout: "2m"},
		&common.ClaudeConfig{},
		arbor.NewLogger(),
	)
}

func TestExtract_FailedStageKeepsPartialResult(t *testing.T) {
	gen := &scriptedGenerator{failOn: "リスクを分析"}
	p := newTestPipeline(gen)

	bc := &models.BiddingCase{CaseID: "12345", Name: "庁舎警備業務"}
	result, err := p.Extract(context.Background(), bc, "入札説明書の本文", nil)
	require.NoError(t, err)

	// One invalid answer earns a re-prompt; a second fails only that stage
	assert.Equal(t, models.StageFailed, result.StageStates[models.StageRiskAnalysis].Status)
	assert.Equal(t, models.StageDone, result.StageStates[models.StageImportantDates].Status)
	assert.Equal(t, 1, result.FailedStageCount())
	assert.Len(t, gen.requests, len(models.StageNames)+1)

	// The case still gets its verdict, at reduced confidence
	assert.Equal(t, models.ExtractionEligibilityDetermined, result.Status)
	assert.InDelta(t, 0.9, result.SuccessRatio(), 0.001)
	require.NotNil(t, bc.IsEligibleToBid)
	assert.Same(t, result, bc.Extracted)
}

func TestExtract_AllStagesFailedIsAnError(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("provider unreachable")}
	p := newTestPipeline(gen)

	bc := &models.BiddingCase{CaseID: "12345", Name: "庁舎警備業務"}
	result, err := p.Extract(context.Background(), bc, "入札説明書の本文", nil)
	require.Error(t, err)
	assert.Equal(t, models.ExtractionFailed, result.Status)
}

func TestExtract_PassesConfiguredRetryBudget(t *testing.T) {
	gen := &scriptedGenerator{}
	p := newTestPipeline(gen)

	bc := &models.BiddingCase{CaseID: "12345", Name: "庁舎警備業務"}
	_, err := p.Extract(context.Background(), bc, "入札説明書の本文", nil)
	require.NoError(t, err)

	require.NotEmpty(t, gen.requests)
	for _, req := range gen.requests {
		assert.Equal(t, 3, req.MaxRetries)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "Plain JSON", in: `{"a":1}`, want: `{"a":1}`},
		{name: "JSON fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "Bare fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "Surrounding whitespace", in: "  {\"a\":1}  ", want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFence(tt.in))
		})
	}
}

func TestStageDefs_CoverAllStages(t *testing.T) {
	require.Len(t, stageDefs, len(models.StageNames))
	for i, stage := range stageDefs {
		assert.Equal(t, models.StageNames[i], stage.Name)
		assert.NotEmpty(t, stage.Instruction)
		assert.NotEmpty(t, stage.Schema)
		assert.NotNil(t, stage.Apply)
	}
}

func TestStageApply_ImportantDates(t *testing.T) {
	v := validator.New()
	result := models.NewExtractionResult("test-model")

	payload := `{"bidding_date":"2026-03-15","announcement_date":"2026-02-01","notes":"電子入札"}`
	err := stageDefs[0].Apply(v, payload, result)
	require.NoError(t, err)
	require.NotNil(t, result.ImportantDates)
	assert.Equal(t, "2026-03-15", result.ImportantDates.BiddingDate)
	assert.Equal(t, "電子入札", result.ImportantDates.Notes)
}

func TestStageApply_ImportantDates_RejectsBadDate(t *testing.T) {
	v := validator.New()
	result := models.NewExtractionResult("test-model")

	payload := `{"bidding_date":"2026年3月15日"}`
	err := stageDefs[0].Apply(v, payload, result)
	assert.Error(t, err)
	assert.Nil(t, result.ImportantDates)
}

func TestStageApply_RejectsInvalidJSON(t *testing.T) {
	v := validator.New()
	result := models.NewExtractionResult("test-model")

	err := stageDefs[0].Apply(v, "not json at all", result)
	assert.Error(t, err)
}

func TestStageApply_RiskAnalysis_RejectsBadSeverity(t *testing.T) {
	v := validator.New()
	result := models.NewExtractionResult("test-model")

	payload := `{"risks":[{"description":"短納期","severity":"extreme"}],"overall_risk":"高"}`
	var riskStage *stageDef
	for i := range stageDefs {
		if stageDefs[i].Name == models.StageRiskAnalysis {
			riskStage = &stageDefs[i]
		}
	}
	require.NotNil(t, riskStage)

	err := riskStage.Apply(v, payload, result)
	assert.Error(t, err)

	payload = `{"risks":[{"description":"短納期","severity":"高"}],"overall_risk":"高","summary":"納期に注意"}`
	err = riskStage.Apply(v, payload, result)
	require.NoError(t, err)
	assert.Equal(t, "高", result.RiskAnalysis.OverallRisk)
}

func TestAdvanceStatus(t *testing.T) {
	result := models.NewExtractionResult("test-model")
	assert.Equal(t, models.ExtractionPending, result.Status)

	result.StageStates[models.StageImportantDates] = models.StageState{Status: models.StageDone}
	advanceStatus(result, models.StageImportantDates)
	assert.Equal(t, models.ExtractionDatesExtracted, result.Status)

	result.StageStates[models.StageQualificationRequirements] = models.StageState{Status: models.StageDone}
	advanceStatus(result, models.StageQualificationRequirements)
	assert.Equal(t, models.ExtractionQualificationsComplete, result.Status)

	// A failed stage never advances the status
	result.StageStates[models.StageRiskAnalysis] = models.StageState{Status: models.StageFailed}
	advanceStatus(result, models.StageRiskAnalysis)
	assert.Equal(t, models.ExtractionQualificationsComplete, result.Status)
}

func TestExtractionResult_SuccessRatio(t *testing.T) {
	result := models.NewExtractionResult("test-model")
	assert.Equal(t, 0.0, result.SuccessRatio())

	for _, name := range models.StageNames {
		result.StageStates[name] = models.StageState{Status: models.StageDone}
	}
	assert.Equal(t, 1.0, result.SuccessRatio())

	result.StageStates[models.StageRiskAnalysis] = models.StageState{Status: models.StageFailed}
	assert.InDelta(t, 0.9, result.SuccessRatio(), 0.001)
	assert.Equal(t, 1, result.FailedStageCount())
}
