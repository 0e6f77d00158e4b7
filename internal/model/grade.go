package model

import "time"

// PassThreshold is the minimum score that counts as a pass and makes the
// learner eligible for a certificate.
const PassThreshold = 50.0

// GradeResult is the authoritative outcome computed by the grading service.
type GradeResult struct {
	Score            float64 `json:"score"`
	Level            string  `json:"level"`
	CurriculumUnitID ID      `json:"curriculum_unit_id,omitempty"`
}

// Passed reports whether the score reaches the pass threshold.
func (g *GradeResult) Passed() bool {
	return g != nil && g.Score >= PassThreshold
}

// Certificate is an artifact issued for a passing grade.
type Certificate struct {
	ID               ID        `json:"id,omitempty"`
	LearnerID        string    `json:"learner_id,omitempty"`
	CurriculumUnitID ID        `json:"curriculum_unit_id"`
	URL              string    `json:"url"`
	IssuedAt         time.Time `json:"issued_at,omitempty"`
}
