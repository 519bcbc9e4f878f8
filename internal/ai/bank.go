package ai

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/intervue/pkg/models"
)

// BankEntry is one fallback question in the YAML bank file.
type BankEntry struct {
	Difficulty models.Difficulty `yaml:"difficulty"`
	Question   string            `yaml:"question"`
}

// bankFile is the top-level YAML structure.
type bankFile struct {
	Questions []BankEntry `yaml:"questions"`
}

// Bank is the fixed question set used when generation fails.
type Bank struct {
	byDifficulty map[models.Difficulty][]string
}

var defaultEntries = []BankEntry{
	{models.DifficultyEasy, "What is React and what are its main features?"},
	{models.DifficultyEasy, "Explain the difference between let, const, and var in JavaScript."},
	{models.DifficultyMedium, "How does the virtual DOM work in React, and why is it beneficial?"},
	{models.DifficultyMedium, "Explain middleware in Express.js and give an example of when you would use it."},
	{models.DifficultyHard, "Design a REST API for a social media platform. What endpoints would you create and how would you handle authentication?"},
	{models.DifficultyHard, "How would you optimize a React application for performance? Discuss specific techniques and when to use them."},
}

// DefaultBank returns the built-in question set.
func DefaultBank() *Bank {
	b, _ := newBank(defaultEntries)
	return b
}

// LoadBank reads a YAML bank from path. A missing file yields the default
// bank. Each difficulty needs at least QuestionsPerDifficulty entries.
func LoadBank(path string) (*Bank, error) {
	if path == "" {
		return DefaultBank(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultBank(), nil
		}
		return nil, fmt.Errorf("read question bank: %w", err)
	}

	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	return newBank(f.Questions)
}

func newBank(entries []BankEntry) (*Bank, error) {
	b := &Bank{byDifficulty: make(map[models.Difficulty][]string, len(models.Difficulties))}
	for i, e := range entries {
		if !e.Difficulty.Valid() {
			return nil, fmt.Errorf("question bank entry %d: unknown difficulty %q", i+1, e.Difficulty)
		}
		if e.Question == "" {
			return nil, fmt.Errorf("question bank entry %d: empty question", i+1)
		}
		b.byDifficulty[e.Difficulty] = append(b.byDifficulty[e.Difficulty], e.Question)
	}
	for _, d := range models.Difficulties {
		if n := len(b.byDifficulty[d]); n < models.QuestionsPerDifficulty {
			return nil, fmt.Errorf("question bank has %d %s questions, need %d", n, d, models.QuestionsPerDifficulty)
		}
	}
	return b, nil
}

// Questions returns the interview set: the first QuestionsPerDifficulty
// questions of each difficulty, in Easy, Medium, Hard order.
func (b *Bank) Questions() []models.Question {
	out := make([]models.Question, 0, models.QuestionsPerInterview)
	for _, d := range models.Difficulties {
		for _, text := range b.byDifficulty[d][:models.QuestionsPerDifficulty] {
			out = append(out, models.NewQuestion(len(out)+1, d, text))
		}
	}
	return out
}
