package memory

import (
	"time"

	"live-quiz-client/internal/domain"
)

// DemoQuizID identifies the built-in offline quiz.
const DemoQuizID = "demo"

// DemoQuiz returns a small keyed quiz for the offline mode.
func DemoQuiz(questionSeconds int) (domain.QuizContent, []KeyedQuestion) {
	easy, medium := 1, 2
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	keyed := []KeyedQuestion{
		{
			Question: domain.Question{
				ID:        "demo-q1",
				Text:      "Which planet is known as the red planet?",
				Hint:      "It is named after a god of war.",
				Level:     domain.Level{ID: 1, Name: "easy", OrderIndex: &easy},
				Points:    1,
				CreatedAt: created,
				Choices: []domain.Choice{
					{ID: "demo-q1-a", Label: "A", Text: "Venus"},
					{ID: "demo-q1-b", Label: "B", Text: "Mars"},
					{ID: "demo-q1-c", Label: "C", Text: "Jupiter"},
					{ID: "demo-q1-d", Label: "D", Text: "Mercury"},
				},
			},
			CorrectChoiceID: "demo-q1-b",
		},
		{
			Question: domain.Question{
				ID:        "demo-q2",
				Text:      "How many bits are in a byte?",
				Hint:      "A power of two.",
				Level:     domain.Level{ID: 1, Name: "easy", OrderIndex: &easy},
				Points:    1,
				CreatedAt: created.Add(time.Minute),
				Choices: []domain.Choice{
					{ID: "demo-q2-a", Label: "A", Text: "4"},
					{ID: "demo-q2-b", Label: "B", Text: "6"},
					{ID: "demo-q2-c", Label: "C", Text: "8"},
					{ID: "demo-q2-d", Label: "D", Text: "16"},
				},
			},
			CorrectChoiceID: "demo-q2-c",
		},
		{
			Question: domain.Question{
				ID:        "demo-q3",
				Text:      "Which protocol upgrades an HTTP connection to a full-duplex channel?",
				Hint:      "Browsers expose it as a constructor.",
				Level:     domain.Level{ID: 2, Name: "medium", OrderIndex: &medium},
				Points:    2,
				CreatedAt: created,
				Choices: []domain.Choice{
					{ID: "demo-q3-a", Label: "A", Text: "WebSocket"},
					{ID: "demo-q3-b", Label: "B", Text: "FTP"},
					{ID: "demo-q3-c", Label: "C", Text: "SMTP"},
					{ID: "demo-q3-d", Label: "D", Text: "DNS"},
				},
			},
			CorrectChoiceID: "demo-q3-a",
		},
	}

	questions := make([]domain.Question, len(keyed))
	for i, kq := range keyed {
		questions[i] = kq.Question
	}
	return domain.QuizContent{
		QuizID:                  DemoQuizID,
		QuestionDurationSeconds: questionSeconds,
		Questions:               domain.OrderQuestions(questions),
	}, keyed
}
