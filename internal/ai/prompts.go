// Package ai provides question generation, answer evaluation and interview
// summaries, backed by a language model with deterministic local fallbacks.
package ai

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/thebtf/intervue/pkg/models"
)

// DefaultResumeTokenBudget bounds the résumé text embedded in prompts.
const DefaultResumeTokenBudget = 3000

const (
	questionsSystem  = "You are a technical interviewer. Always respond with valid JSON only."
	evaluationSystem = "You are a technical interviewer evaluating answers. Be fair but thorough. Return valid JSON only."
	summarySystem    = "You are an expert technical interviewer providing candidate summaries. Return valid JSON only."
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func getCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("Tokenizer unavailable, falling back to character truncation")
			return
		}
		codec = c
	})
	return codec
}

// TruncateTokens cuts text to at most maxTokens cl100k tokens. When the
// tokenizer cannot be loaded it approximates with four bytes per token.
func TruncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	c := getCodec()
	if c == nil {
		return truncate(text, maxTokens*4)
	}
	ids, _, err := c.Encode(text)
	if err != nil || len(ids) <= maxTokens {
		return text
	}
	out, err := c.Decode(ids[:maxTokens])
	if err != nil {
		return truncate(text, maxTokens*4)
	}
	return out + "..."
}

// BuildQuestionsPrompt builds the question generation prompt.
func BuildQuestionsPrompt(resumeText string, budget int) string {
	var sb strings.Builder
	sb.WriteString("You are an expert technical interviewer for a Full Stack Developer position (React/Node.js).\n\n")
	sb.WriteString("Based on the following resume, generate exactly 6 interview questions:\n")
	for _, d := range models.Difficulties {
		sb.WriteString(fmt.Sprintf("- %d %s questions (should take ~%d seconds to answer)\n",
			models.QuestionsPerDifficulty, d, d.TimeLimit()))
	}
	sb.WriteString("\n<resume>\n")
	sb.WriteString(TruncateTokens(resumeText, budget))
	sb.WriteString("\n</resume>\n\n")
	sb.WriteString(`Return ONLY a JSON object of the form {"questions": [{"id": 1, "difficulty": "Easy", "question": "...", "timeLimit": 20}, ...]}.`)
	sb.WriteString("\nOrder the questions Easy, Easy, Medium, Medium, Hard, Hard. ")
	sb.WriteString("Questions should test practical knowledge, problem-solving, and understanding of concepts.")
	return sb.String()
}

// BuildEvaluationPrompt builds the single-answer evaluation prompt.
func BuildEvaluationPrompt(q models.Question, answer string) string {
	var sb strings.Builder
	sb.WriteString("Evaluate this interview answer:\n\n")
	sb.WriteString(fmt.Sprintf("Question (%s): %s\n", q.Difficulty, q.Question))
	sb.WriteString(fmt.Sprintf("Answer: %s\n\n", truncate(answer, 4000)))
	sb.WriteString(`Provide a score from 0-100 and brief feedback. Return JSON: {"score": <number 0-100>, "feedback": "<brief feedback>"}`)
	return sb.String()
}

// BuildSummaryPrompt builds the final summary prompt.
func BuildSummaryPrompt(name string, questions []models.Question) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generate a concise interview summary for %s.\n\n", name))
	sb.WriteString("Interview Questions and Answers:\n")
	for i, q := range questions {
		answer := q.AnswerText()
		if answer == "" {
			answer = "No answer provided"
		}
		sb.WriteString(fmt.Sprintf("Q%d (%s): %s\nA: %s\n\n", i+1, q.Difficulty, q.Question, truncate(answer, 2000)))
	}
	sb.WriteString("Provide:\n1. Overall score (0-100)\n")
	sb.WriteString("2. Brief summary (2-3 sentences) highlighting strengths and areas for improvement\n\n")
	sb.WriteString(`Return JSON: {"score": <number 0-100>, "summary": "<2-3 sentence summary>"}`)
	return sb.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Back up to a rune boundary.
	cut := maxLen
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}
