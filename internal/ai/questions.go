package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/intervue/internal/llm"
	"github.com/thebtf/intervue/internal/metrics"
	"github.com/thebtf/intervue/internal/privacy"
	"github.com/thebtf/intervue/pkg/models"
)

// DefaultTimeout bounds a single language model call.
const DefaultTimeout = 30 * time.Second

// Options configures the generation services.
type Options struct {
	Provider          llm.Provider
	Bank              *Bank
	Metrics           *metrics.Metrics
	Timeout           time.Duration
	ResumeTokenBudget int
}

func (o Options) withDefaults() Options {
	if o.Bank == nil {
		o.Bank = DefaultBank()
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ResumeTokenBudget <= 0 {
		o.ResumeTokenBudget = DefaultResumeTokenBudget
	}
	return o
}

// QuestionService generates interview questions from a résumé.
type QuestionService struct {
	opts Options
}

// NewQuestionService creates a QuestionService. A nil provider always uses
// the fallback bank.
func NewQuestionService(opts Options) *QuestionService {
	return &QuestionService{opts: opts.withDefaults()}
}

// Generate returns exactly QuestionsPerInterview questions. Any provider
// failure or unusable output yields the fallback bank; errors never escape.
func (s *QuestionService) Generate(ctx context.Context, resumeText string) []models.Question {
	if s.opts.Provider == nil {
		s.opts.Metrics.FallbackUsed(ctx, "questions")
		return s.opts.Bank.Questions()
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	content, err := s.opts.Provider.Generate(callCtx, llm.Request{
		System:      questionsSystem,
		Prompt:      BuildQuestionsPrompt(privacy.Redact(resumeText), s.opts.ResumeTokenBudget),
		Temperature: 0.7,
		JSON:        true,
	})
	if err == nil {
		var questions []models.Question
		questions, err = parseQuestions(content)
		if err == nil {
			log.Debug().Str("provider", s.opts.Provider.Name()).Msg("Generated interview questions")
			return questions
		}
	}

	log.Warn().Err(err).Str("provider", s.opts.Provider.Name()).Msg("Question generation failed, using fallback bank")
	s.opts.Metrics.FallbackUsed(ctx, "questions")
	return s.opts.Bank.Questions()
}
