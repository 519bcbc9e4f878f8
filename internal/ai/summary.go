package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/intervue/internal/llm"
	"github.com/thebtf/intervue/pkg/models"
)

const (
	longAnswerChars   = 50
	longAnswerPoints  = 15
	shortAnswerPoints = 10

	fallbackLongScore  = 60
	fallbackShortScore = 40
	fallbackFeedback   = "Answer received. Unable to provide detailed feedback at this time."
)

// SummaryService scores interviews and individual answers.
type SummaryService struct {
	opts Options
}

// NewSummaryService creates a SummaryService. A nil provider always uses
// the local heuristics.
func NewSummaryService(opts Options) *SummaryService {
	return &SummaryService{opts: opts.withDefaults()}
}

// Summarize returns the final score and summary for a finished interview.
// Provider failures fall back to FallbackSummary.
func (s *SummaryService) Summarize(ctx context.Context, name string, questions []models.Question) models.Evaluation {
	if s.opts.Provider != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		content, err := s.opts.Provider.Generate(callCtx, llm.Request{
			System:      summarySystem,
			Prompt:      BuildSummaryPrompt(name, questions),
			Temperature: 0.5,
			JSON:        true,
		})
		if err == nil {
			var (
				score int
				text  string
			)
			score, text, err = parseScored(content, "summary")
			if err == nil {
				return models.Evaluation{Score: score, Summary: text}
			}
		}
		log.Warn().Err(err).Str("provider", s.opts.Provider.Name()).Msg("Summary generation failed, using local scoring")
	}

	s.opts.Metrics.FallbackUsed(ctx, "summary")
	return FallbackSummary(name, questions)
}

// EvaluateAnswer scores a single answer. Provider failures fall back to a
// length-based score.
func (s *SummaryService) EvaluateAnswer(ctx context.Context, q models.Question, answer string) models.AnswerEvaluation {
	if s.opts.Provider != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		content, err := s.opts.Provider.Generate(callCtx, llm.Request{
			System:      evaluationSystem,
			Prompt:      BuildEvaluationPrompt(q, answer),
			Temperature: 0.3,
			JSON:        true,
		})
		if err == nil {
			var (
				score    int
				feedback string
			)
			score, feedback, err = parseScored(content, "feedback")
			if err == nil {
				return models.AnswerEvaluation{Score: score, Feedback: feedback}
			}
		}
		log.Warn().Err(err).Int("questionId", q.ID).Msg("Answer evaluation failed, using local scoring")
	}

	s.opts.Metrics.FallbackUsed(ctx, "evaluation")
	return FallbackEvaluation(answer)
}

// FallbackSummary scores by answer presence and length: 15 points per
// answer longer than 50 characters, 10 per shorter non-empty answer, capped
// at 100.
func FallbackSummary(name string, questions []models.Question) models.Evaluation {
	total := 0
	for i := range questions {
		a := questions[i].AnswerText()
		switch {
		case a == "":
		case len(a) > longAnswerChars:
			total += longAnswerPoints
		default:
			total += shortAnswerPoints
		}
	}
	return models.Evaluation{
		Score: models.ClampScore(total),
		Summary: fmt.Sprintf("%s completed the interview. Answered %d out of %d questions.",
			name, countNonEmpty(questions), len(questions)),
	}
}

// FallbackEvaluation scores 60 for answers longer than 50 characters, else 40.
func FallbackEvaluation(answer string) models.AnswerEvaluation {
	score := fallbackShortScore
	if len(answer) > longAnswerChars {
		score = fallbackLongScore
	}
	return models.AnswerEvaluation{Score: score, Feedback: fallbackFeedback}
}
