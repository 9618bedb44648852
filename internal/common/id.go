package common

import (
	"github.com/google/uuid"
)

// NewCaseID generates a unique internal case record ID
// Format: case_<uuid>
func NewCaseID() string {
	return "case_" + uuid.New().String()
}

// NewRunID generates a unique pipeline run ID
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}
