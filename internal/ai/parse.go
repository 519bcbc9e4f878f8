package ai

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/thebtf/intervue/pkg/models"
)

// ErrMalformedResponse is returned when model output cannot be used.
var ErrMalformedResponse = errors.New("malformed model response")

type rawQuestion struct {
	Difficulty string `json:"difficulty"`
	Question   string `json:"question"`
}

// stripFences removes a surrounding ``` or ```json block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseQuestions accepts a bare array or an object with a "questions" array
// and returns exactly QuestionsPerInterview questions with ids and time limits
// derived from position and difficulty.
func parseQuestions(content string) ([]models.Question, error) {
	data := []byte(stripFences(content))

	var list []rawQuestion
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	} else {
		var wrapped struct {
			Questions []rawQuestion `json:"questions"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		list = wrapped.Questions
	}

	if len(list) != models.QuestionsPerInterview {
		return nil, fmt.Errorf("%w: got %d questions", ErrMalformedResponse, len(list))
	}

	counts := make(map[models.Difficulty]int, len(models.Difficulties))
	out := make([]models.Question, len(list))
	for i, rq := range list {
		d := normalizeDifficulty(rq.Difficulty)
		text := strings.TrimSpace(rq.Question)
		if !d.Valid() || text == "" {
			return nil, fmt.Errorf("%w: question %d is incomplete", ErrMalformedResponse, i+1)
		}
		counts[d]++
		out[i] = models.NewQuestion(i+1, d, text)
	}
	for _, d := range models.Difficulties {
		if counts[d] != models.QuestionsPerDifficulty {
			return nil, fmt.Errorf("%w: %d %s questions", ErrMalformedResponse, counts[d], d)
		}
	}
	return out, nil
}

func normalizeDifficulty(s string) models.Difficulty {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return models.DifficultyEasy
	case "medium":
		return models.DifficultyMedium
	case "hard":
		return models.DifficultyHard
	}
	return models.Difficulty(s)
}

// parseScored decodes {"score": n, "<textKey>": "..."}. Scores may arrive as
// numbers or numeric strings and are clamped to 0..100.
func parseScored(content, textKey string) (int, string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(content)), &raw); err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	scoreRaw, ok := raw["score"]
	if !ok {
		return 0, "", fmt.Errorf("%w: no score", ErrMalformedResponse)
	}
	var score float64
	if err := json.Unmarshal(scoreRaw, &score); err != nil {
		var s string
		if err := json.Unmarshal(scoreRaw, &s); err != nil {
			return 0, "", fmt.Errorf("%w: score is not a number", ErrMalformedResponse)
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &score); err != nil {
			return 0, "", fmt.Errorf("%w: score is not a number", ErrMalformedResponse)
		}
	}

	var text string
	if t, ok := raw[textKey]; ok {
		if err := json.Unmarshal(t, &text); err != nil {
			return 0, "", fmt.Errorf("%w: %s is not a string", ErrMalformedResponse, textKey)
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, "", fmt.Errorf("%w: empty %s", ErrMalformedResponse, textKey)
	}
	return models.ClampScore(int(score + 0.5)), text, nil
}
