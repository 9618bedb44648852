package models

import "time"

// CaseEmbedding holds the three semantic vectors for one case, 1:1 with
// BiddingCase and deleted with it. SourceHash gates recomputation: vectors
// are only regenerated when the source text materially changed.
type CaseEmbedding struct {
	CaseID string `json:"case_id" badgerhold:"unique"`

	NameVector     []float32 `json:"name_vector"`
	OverviewVector []float32 `json:"overview_vector"`
	CombinedVector []float32 `json:"combined_vector"`

	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	SourceHash string `json:"source_hash"` // sha256 of the source texts

	UpdatedAt time.Time `json:"updated_at"`
}
