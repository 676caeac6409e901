package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question ID is not part of the loaded quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrChoiceNotFound indicates a submitted choice ID is invalid.
	ErrChoiceNotFound = errors.New("choice not found")
	// ErrNoActiveQuiz is returned for commands issued while no quiz is loaded.
	ErrNoActiveQuiz = errors.New("no active quiz")

	// ErrSessionExpired means the session token is missing or stale. It is fatal
	// for the current view and must never be retried.
	ErrSessionExpired = errors.New("session expired")
	// ErrTransient marks a retryable remote failure (network, 5xx).
	ErrTransient = errors.New("temporary failure, please retry")
	// ErrRejected marks a remote refusal caused by server-side state.
	ErrRejected = errors.New("rejected by judge")
	// ErrUnparsableTime is returned when a server time reply has an unknown shape.
	ErrUnparsableTime = errors.New("unparsable server time")

	// ErrNotActive is returned when input targets a question that is not open.
	ErrNotActive = errors.New("question is not accepting input")
	// ErrAlreadyLocked is returned for a second submission on the same question.
	ErrAlreadyLocked = errors.New("question already locked")
	// ErrAlreadyAnswered is returned when a timeout is requested for an answered question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrLifelineUsed is returned when a lifeline was already spent this session.
	ErrLifelineUsed = errors.New("lifeline already used")
)
