package domain

// Requests and verdicts exchanged with the remote judge. EventID identifies one
// logical event and is sent as an idempotency key.

type AnswerRequest struct {
	EventID      string `json:"-"`
	SessionToken string `json:"session_token"`
	QuizID       string `json:"quiz_id"`
	QuestionID   string `json:"question_id"`
	ChoiceID     string `json:"choice_id"`
}

type AnswerVerdict struct {
	IsCorrect  bool `json:"is_correct"`
	TotalScore *int `json:"total_score"`
}

type TimeoutRequest struct {
	EventID      string `json:"-"`
	SessionToken string `json:"session_token"`
	QuizID       string `json:"quiz_id"`
	QuestionID   string `json:"question_id"`
}

type TimeoutVerdict struct {
	Penalty    int  `json:"penalty"`
	TotalScore *int `json:"total_score"`
}

type LifelineRequest struct {
	EventID      string `json:"-"`
	SessionToken string `json:"session_token"`
	QuizID       string `json:"quiz_id"`
	QuestionID   string `json:"question_id"`
}

type HintGrant struct {
	Hint string `json:"hint"`
}

type FiftyFiftyGrant struct {
	HideChoiceIDs []string `json:"hide_choice_ids"`
}

// Participant is the judge's view of the signed-in user.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	State    *int   `json:"state,omitempty"`
}
