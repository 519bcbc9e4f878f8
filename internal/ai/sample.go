package ai

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/thebtf/intervue/pkg/models"
)

// SampleMarker identifies the bundled sample résumé.
const SampleMarker = "JOHN DOE"

// sampleScoreCap bounds the demo score.
const sampleScoreCap = 85

// SampleResume is the bundled demo résumé. All contact fields are present.
var SampleResume = struct {
	Name  string
	Email string
	Phone string
	Text  string
}{
	Name:  "John Doe",
	Email: "john.doe@email.com",
	Phone: "+1 (555) 123-4567",
	Text: `JOHN DOE
john.doe@email.com
+1 (555) 123-4567

PROFESSIONAL SUMMARY
Experienced Full Stack Developer with 5+ years of expertise in building scalable web applications using React, Node.js, and modern JavaScript frameworks.

WORK EXPERIENCE

Senior Full Stack Developer | Tech Innovations Inc.
• Architected and developed 10+ React applications
• Built RESTful APIs and microservices using Node.js
• Implemented real-time features using WebSockets

TECHNICAL SKILLS
Frontend: React.js, JavaScript, TypeScript, HTML5, CSS3
Backend: Node.js, Express.js, RESTful APIs
Databases: MongoDB, PostgreSQL, MySQL`,
}

var sampleQuestionTexts = []BankEntry{
	{models.DifficultyEasy, "What is React and what are its main features?"},
	{models.DifficultyEasy, "Explain the difference between let, const, and var in JavaScript."},
	{models.DifficultyMedium, "How does the virtual DOM work in React, and why is it beneficial?"},
	{models.DifficultyMedium, "Explain middleware in Express.js and give an example of when you would use it."},
	{models.DifficultyHard, "Design a REST API for a social media platform. What endpoints would you create and how would you handle authentication?"},
	{models.DifficultyHard, "How would you optimize a React application for performance? Discuss specific techniques like code splitting, lazy loading, memoization, and when to use them."},
}

// SampleQuestions returns the demo question set.
func SampleQuestions() []models.Question {
	out := make([]models.Question, len(sampleQuestionTexts))
	for i, e := range sampleQuestionTexts {
		out[i] = models.NewQuestion(i+1, e.Difficulty, e.Question)
	}
	return out
}

// IsSampleResume reports whether text is the bundled demo résumé.
func IsSampleResume(text string) bool {
	return strings.Contains(text, SampleMarker)
}

// SampleSummary scores a demo interview by completion, capped at 85. The
// summary template is chosen by hashing the session id so the same session
// always gets the same text.
func SampleSummary(sessionID string, questions []models.Question) models.Evaluation {
	answered := countNonEmpty(questions)
	total := len(questions)

	score := 0
	if total > 0 {
		score = int(math.Round(float64(answered) / float64(total) * 100))
	}
	if score > sampleScoreCap {
		score = sampleScoreCap
	}

	templates := []string{
		fmt.Sprintf("John completed %d out of %d questions. Demonstrated solid understanding of React fundamentals and full-stack concepts. Strong potential for the role.", answered, total),
		fmt.Sprintf("Good grasp of JavaScript and React concepts. Answered questions thoughtfully with %d/%d responses provided. Shows promise for full-stack development.", answered, total),
		fmt.Sprintf("Candidate showed familiarity with modern web technologies. Completed %d/%d questions. Would benefit from more hands-on experience with advanced React patterns.", answered, total),
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return models.Evaluation{
		Score:   score,
		Summary: templates[h.Sum32()%uint32(len(templates))],
	}
}

func countNonEmpty(questions []models.Question) int {
	n := 0
	for i := range questions {
		if questions[i].AnswerText() != "" {
			n++
		}
	}
	return n
}
