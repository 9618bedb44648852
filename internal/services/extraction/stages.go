package extraction

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/bidscout/bidscout/internal/models"
)

// stageDef describes one extraction stage: the focused instruction sent to
// the model, the JSON schema its answer must satisfy, and how the decoded
// answer lands on the result.
type stageDef struct {
	Name        string
	Instruction string
	Schema      map[string]interface{}
	Apply       func(v *validator.Validate, payload string, result *models.ExtractionResult) error
}

// decodeSection unmarshals and validates one stage payload
func decodeSection[T any](v *validator.Validate, payload string) (*T, error) {
	var section T
	if err := json.Unmarshal([]byte(payload), &section); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := v.Struct(&section); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	return &section, nil
}

// Schema map helpers. Gemini receives these as its response schema;
// Claude receives them rendered into the prompt.
func schemaObject(props map[string]interface{}, required ...string) map[string]interface{} {
	m := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		m["required"] = required
	}
	return m
}

func schemaString(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func schemaBool(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": desc}
}

func schemaNumber(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": desc}
}

func schemaStringArray(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "array", "description": desc, "items": map[string]interface{}{"type": "string"}}
}

func schemaEnum(desc string, values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc, "enum": values}
}

// stageDefs lists all stages in pipeline order
var stageDefs = []stageDef{
	{
		Name: models.StageImportantDates,
		Instruction: "入札案件の文書から重要な日程を抽出してください。" +
			"日付は必ず YYYY-MM-DD 形式で出力し、文書に記載がない項目は省略してください。" +
			"和暦は西暦に変換してください。",
		Schema: schemaObject(map[string]interface{}{
			"announcement_date":       schemaString("公示日 (YYYY-MM-DD)"),
			"briefing_date":           schemaString("説明会日 (YYYY-MM-DD)"),
			"document_deadline":       schemaString("資料等提出期限 (YYYY-MM-DD)"),
			"bidding_date":            schemaString("入札日 (YYYY-MM-DD)"),
			"award_announcement_date": schemaString("落札結果公示日 (YYYY-MM-DD)"),
			"contract_date":           schemaString("契約締結日 (YYYY-MM-DD)"),
			"notes":                   schemaString("日程に関する補足"),
		}),
		Apply: func(v *validator.Validate, payload string, result *models.ExtractionResult) error {
			section, err := decodeSection[models.ImportantDates](v, payload)
			if err != nil {
				return err
			}
			result.ImportantDates = section
			return nil
		},
	},
	{
		Name: models.StageQualificationRequirements,
		Instruction: "入札参加資格の要件を抽出してください。" +
			"全省庁統一資格の等級 (A/B/C/D)、地域要件、その他の条件を区別し、" +
			"資格要件の原文を original_text にそのまま含めてください。",
		Schema: schemaObject(map[string]interface{}{
			"required_rank":     schemaEnum("必要等級", "A", "B", "C", "D", "不要", "不明"),
			"category":          schemaString("資格区分 (全省庁統一資格、地方公共団体など)"),
			"region_restricted": schemaBool("地域要件の有無"),
			"regions":           schemaStringArray("対象地域"),
			"other_conditions":  schemaStringArray("その他の参加条件"),
			"original_text":     schemaString("資格要件の原文"),
		}),
		Apply: func(v *validator.Validate, payload string, result *models.ExtractionResult) error {
			section, err := decodeSection[models.QualificationSection](v, payload)
			if err != nil {
				return err
			}
			result.QualificationRequirements = section
			return nil
		},
	},
	{
		Name: models.StageBusinessContent,
		Instruction: "案件の業務内容を抽出してください。" +
			"業務の要約、作業項目、納入場所、契約期間を整理してください。",
		Schema: schemaObject(map[string]interface{}{
			"summary":           schemaString("業務内容の要約"),
			"business_category": schemaString("業務分類コード (B01-B99)、判別できる場合のみ"),
			"work_items":        schemaStringArray("作業項目"),
			"delivery_location": schemaString("納入・履行場所"),
			"contract_period":   schemaString("契約期間"),
		}),
		Apply: func(v *validator.Validate, payload string, result *models.ExtractionResult) error {
			section, err := decodeSection[models.BusinessContent](v, payload)
			if err != nil {
				return err
			}
			result.BusinessContent = section
			return nil
		},
	},
	{
		Name: models.StageFinancialInfo,
		Instruction: "価格・支払に関する情報を抽出してください。" +
			"金額は文書の表記のまま出力してください (例: 1,000万円)。非公表の場合はその旨を記載してください。",
		Schema: schemaObject(map[string]interface{}{
			"planned_price":    schemaString("予定価格 (表記のまま)"),
			"minimum_price":    schemaString("最低制限価格 (表記のまま)"),
			"payment_terms":    schemaString("支払条件"),
			"deposit_required": schemaBool("入札保証金の要否"),
			"deposit_details":  schemaString("保証金の詳細"),
		}),
		Apply: func(v *validator.Validate, payload string, result *models.ExtractionResult) error {
			section, err := decodeSection[models.FinancialInfo](v, payload)
			if err != nil {
				return err
			}
			result.FinancialInfo = section
			return nil
		},
	},
	{
		Name: models.StageSubmissionRequirements,
		Instruction: "提出書類と提出方法を抽出してください。",
		Schema: schemaObject(map[string]interface{}{
			"documents":         schemaStringArray("提出書類の一覧"),
			"submission_method": schemaString("提出方法 (持参、郵送、電子入札など)"),
			"submission_place":  schemaString("提出場所"),
			"notes":             schemaString("提出に関する補足"),
		}),
		Apply: func(v *validator.Validate, payload string, result *models.ExtractionResult) error {
			section, err := decodeSection[models.SubmissionRequirements](v, payload)
			if err != nil {
				return err
			}
			result.SubmissionRequirements = section
			return nil
		},
	},
	{
		Name: models.StageEvaluationCriteria,
		Instruction: "落札者の決定方法と評価基準を抽出してください。",
		Schema: schemaObject(map[string]interface{}{
			"method":             schemaString("落札方式 (最低価格落札方式、総合評価落札方式など)"),
			"price_weight":       schemaString("価格点の配分"),
			"technical_criteria": schemaStringArray("技術評価項目"),
			"notes":              schemaString("評価に関する補足"),
		}),
		Apply: func(v *validator.Validate, payload string, result *models.ExtractionResult) error {
			section, err := decodeSection[models.EvaluationCriteria](v, payload)
			if err != nil {
				return err
			}
			result.EvaluationCriteria = section
			return nil
		},
	},
	{
		Name: models.StageContactInfo,
		Instruction: "担当部署・連絡先を抽出してください。",
		Schema: schemaObject(map[string]interface{}{
			"department": schemaString("担当部署"),
			"person":     schemaString("担当者名"),
			"phone":      schemaString("電話番号"),
			"email":      schemaString("メールアドレス"),
			"address":    schemaString("所在地"),
		}),
		Apply: func(v *validator.Validate, payload string, result *models.ExtractionResult) error {
			section, err := decodeSection[models.ContactInfo](v, payload)
			if err != nil {
				return err
			}
			result.ContactInfo = section
			return nil
		},
	},
	{
		Name: models.StageSpecialConditions,
		Instruction: "特記事項・特殊な契約条件を抽出し、重要度を 低/中/高 で評価してください。",
		Schema: schemaObject(map[string]interface{}{
			"conditions": map[string]interface{}{
				"type":        "array",
				"description": "特記事項の一覧",
				"items": schemaObject(map[string]interface{}{
					"description": schemaString("条件の内容"),
					"importance":  schemaEnum("重要度", "低", "中", "高"),
				}, "description"),
			},
		}),
		Apply: func(v *validator.Validate, payload string, result *models.ExtractionResult) error {
			section, err := decodeSection[models.SpecialConditions](v, payload)
			if err != nil {
				return err
			}
			result.SpecialConditions = section
			return nil
		},
	},
	{
		Name: models.StageRiskAnalysis,
		Instruction: "応札した場合のリスクを分析してください。" +
			"短納期、過大な要求仕様、実績要件、ペナルティ条項などに注目し、" +
			"各リスクの深刻度と全体リスクを 低/中/高 で評価してください。",
		Schema: schemaObject(map[string]interface{}{
			"risks": map[string]interface{}{
				"type":        "array",
				"description": "識別されたリスク",
				"items": schemaObject(map[string]interface{}{
					"description": schemaString("リスクの内容"),
					"severity":    schemaEnum("深刻度", "低", "中", "高"),
					"mitigation":  schemaString("軽減策"),
				}, "description"),
			},
			"overall_risk": schemaEnum("全体リスク", "低", "中", "高"),
			"summary":      schemaString("リスク分析の要約"),
		}),
		Apply: func(v *validator.Validate, payload string, result *models.ExtractionResult) error {
			section, err := decodeSection[models.RiskAnalysis](v, payload)
			if err != nil {
				return err
			}
			result.RiskAnalysis = section
			return nil
		},
	},
	{
		Name: models.StageBidFeasibility,
		Instruction: "これまでの分析を踏まえ、応札の実現可能性を総合評価してください。" +
			"confidence は 0 から 1 の数値で出力してください。",
		Schema: schemaObject(map[string]interface{}{
			"feasible":        schemaBool("応札可能性の総合判断"),
			"confidence":      schemaNumber("判断の確信度 (0-1)"),
			"reasons":         schemaStringArray("判断理由"),
			"recommendations": schemaStringArray("推奨アクション"),
		}, "confidence"),
		Apply: func(v *validator.Validate, payload string, result *models.ExtractionResult) error {
			section, err := decodeSection[models.BidFeasibility](v, payload)
			if err != nil {
				return err
			}
			result.BidFeasibility = section
			return nil
		},
	},
}
