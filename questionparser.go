package quizstream

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// BlockSeparator separates question blocks in list-mode model output
	BlockSeparator = "<_>"
	// FieldSeparator separates the fields of a block
	FieldSeparator = "|->"
)

var ErrMalformedDetail = errors.New("malformed detail output")

// ParsedQuestion is one "<prompt>|-><difficulty>|-><type>" block as the model wrote it
type ParsedQuestion struct {
	Prompt     string
	Difficulty string
	Type       string
}

// ParseListOutput splits list-mode model output into question blocks. Blocks with an
// empty prompt are dropped; missing trailing fields are left empty.
func ParseListOutput(text string) []ParsedQuestion {
	var questions []ParsedQuestion
	for _, block := range strings.Split(text, BlockSeparator) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		fields := strings.SplitN(block, FieldSeparator, 3)
		q := ParsedQuestion{Prompt: strings.TrimSpace(fields[0])}
		if q.Prompt == "" {
			continue
		}
		if len(fields) > 1 {
			q.Difficulty = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			q.Type = strings.TrimSpace(fields[2])
		}
		questions = append(questions, q)
	}
	return questions
}

// ParseDetailOutput parses "<title>|-><description>|-><answer>|-><topic>"; exactly
// three separators are required.
func ParseDetailOutput(text string) (QuestionDetail, error) {
	text = strings.TrimSpace(text)
	if n := strings.Count(text, FieldSeparator); n != 3 {
		return QuestionDetail{}, fmt.Errorf("%w: expected 3 separators, got %d", ErrMalformedDetail, n)
	}

	fields := strings.Split(text, FieldSeparator)
	return QuestionDetail{
		Title:       strings.TrimSpace(fields[0]),
		Description: strings.TrimSpace(fields[1]),
		Answer:      strings.TrimSpace(fields[2]),
		Topic:       strings.TrimSpace(fields[3]),
	}, nil
}

// ResolveDifficulty picks the difficulty recorded for a generated question. An explicit
// request always wins; a random request takes the model's label, if it is a valid one.
func ResolveDifficulty(requested Difficulty, modelLabel string) Difficulty {
	if !requested.IsRandom() {
		return requested
	}
	if d, err := ParseDifficulty(modelLabel); err == nil {
		return d
	}
	return DifficultyRandom
}

// ResolveQuestionType applies the same rule as ResolveDifficulty to the question type
func ResolveQuestionType(requested QuestionType, modelLabel string) QuestionType {
	if !requested.IsRandom() {
		return requested
	}
	if t, err := ParseQuestionType(modelLabel); err == nil {
		return t
	}
	return TypeRandom
}
