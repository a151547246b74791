package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const MaxQuestionLength = 500

// questionDangerousPatterns covers prompt injection and shell/code payloads.
var questionDangerousPatterns = []*regexp.Regexp{
	// Prompt injection
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)override\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)new\s+context\s*:`),
	regexp.MustCompile(`(?i)change\s+context\s*:`),
	regexp.MustCompile(`(?i)instead\s+of\s+the\s+above`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+`),
	regexp.MustCompile(`(?i)system\s+prompt`),

	// Code execution
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)__import__\s*\(`),
	regexp.MustCompile(`(?i)os\.system`),

	// Path traversal
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`/etc/passwd`),
}

// QuestionValidator screens questions before they enter the pipeline.
type QuestionValidator struct {
	maxLength int
}

func NewQuestionValidator() *QuestionValidator {
	return &QuestionValidator{maxLength: MaxQuestionLength}
}

// ValidationResult contains validation outcome
type ValidationResult struct {
	Valid   bool
	Message string
}

// Validate checks a question for length and dangerous patterns
func (v *QuestionValidator) Validate(question string) ValidationResult {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return ValidationResult{Valid: false, Message: "question is required"}
	}

	if n := utf8.RuneCountInString(trimmed); n > v.maxLength {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("question too long: %d chars (max %d)", n, v.maxLength),
		}
	}

	for _, pattern := range questionDangerousPatterns {
		if pattern.MatchString(trimmed) {
			return ValidationResult{
				Valid:   false,
				Message: "question contains a disallowed instruction",
			}
		}
	}

	return ValidationResult{Valid: true, Message: "ok"}
}
