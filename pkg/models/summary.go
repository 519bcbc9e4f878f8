// Package models contains domain models for intervue.
package models

// MaxScore is the upper bound of every score.
const MaxScore = 100

// Evaluation is the final verdict for a completed interview.
type Evaluation struct {
	Summary string `json:"summary"`
	Score   int    `json:"score"`
}

// AnswerEvaluation is the verdict for a single answer.
type AnswerEvaluation struct {
	Feedback string `json:"feedback"`
	Score    int    `json:"score"`
}

// ClampScore bounds a score to 0..MaxScore.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
