package models

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyQuestion is returned for questions that are blank after trimming.
var ErrEmptyQuestion = errors.New("question is required")

// Question is the immutable input to the pipeline.
type Question struct {
	Text       string
	UserID     string
	ReceivedAt time.Time
}

// NewQuestion trims text and rejects it when nothing is left.
func NewQuestion(text, userID string) (Question, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return Question{}, ErrEmptyQuestion
	}
	return Question{
		Text:       t,
		UserID:     strings.TrimSpace(userID),
		ReceivedAt: time.Now(),
	}, nil
}

// Normalized lowercases the text, collapses whitespace and drops trailing
// punctuation so trivially different phrasings share a cache key.
func (q Question) Normalized() string {
	s := strings.ToLower(strings.Join(strings.Fields(q.Text), " "))
	return strings.TrimRight(s, "?!. ")
}
