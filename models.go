package quizstream

import (
	"fmt"
	"strings"
)

// Grade is the school year a question targets
type Grade string

const (
	GradeX   Grade = "X"
	GradeXI  Grade = "XI"
	GradeXII Grade = "XII"
)

// Difficulty is a Bloom cognitive level (C1-C6) or the random sentinel
type Difficulty string

const (
	DifficultyRandom Difficulty = "random"
	DifficultyC1     Difficulty = "c1"
	DifficultyC2     Difficulty = "c2"
	DifficultyC3     Difficulty = "c3"
	DifficultyC4     Difficulty = "c4"
	DifficultyC5     Difficulty = "c5"
	DifficultyC6     Difficulty = "c6"
)

// QuestionType is the answer format of a question
type QuestionType string

const (
	TypeRandom         QuestionType = "random"
	TypeEssay          QuestionType = "essay"
	TypeMultipleChoice QuestionType = "multipleChoice"
)

// Language selects the language prompts and questions are written in
type Language string

const (
	LangID Language = "id"
	LangEN Language = "en"
)

// GenerationRequest represents a request to generate a batch of questions
type GenerationRequest struct {
	Prompt     string       `json:"prompt"`
	Topic      string       `json:"topic"`
	Grade      Grade        `json:"grade"`
	Total      int          `json:"total"`
	Difficulty Difficulty   `json:"difficulty"`
	Type       QuestionType `json:"type"`
	Reference  string       `json:"reference,omitempty"`
	Language   Language     `json:"lang"`
}

// Chunk is a contiguous, 1-based inclusive range of question positions
type Chunk struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Size  int `json:"size"`
}

// GeneratedQuestion is the payload of a question event
type GeneratedQuestion struct {
	Prompt     string       `json:"prompt"`
	Difficulty Difficulty   `json:"difficulty"`
	Type       QuestionType `json:"type"`
	Index      int          `json:"index"`
}

// QuestionSkeleton is a question slot shown before and after its content arrives.
// LoadingIndex is the 0-based position the slot was created for; SourceIndex is the
// global index of the question that filled it, or -1 while unfilled. SourceChunk and
// SourcePosition identify the question event that filled it.
type QuestionSkeleton struct {
	Prompt         string       `json:"prompt"`
	Difficulty     Difficulty   `json:"difficulty"`
	Type           QuestionType `json:"type"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Answer         string       `json:"answer"`
	Topic          string       `json:"topic"`
	Grade          Grade        `json:"grade"`
	IsLoading      bool         `json:"isLoading"`
	LoadingIndex   int          `json:"loadingIndex"`
	SourceIndex    int          `json:"sourceIndex"`
	SourceChunk    int          `json:"sourceChunk"`
	SourcePosition int          `json:"sourcePosition"`
}

// QuestionDetail is the parsed result of a detail generation call
type QuestionDetail struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Answer      string `json:"answer"`
	Topic       string `json:"topic"`
}

// IsRandom reports whether the caller left the choice to the model
func (d Difficulty) IsRandom() bool {
	return d == "" || d == DifficultyRandom
}

// IsRandom reports whether the caller left the choice to the model
func (t QuestionType) IsRandom() bool {
	return t == "" || t == TypeRandom
}

// ParseDifficulty normalizes a difficulty label as written by users or the model
func ParseDifficulty(s string) (Difficulty, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "random", "acak":
		return DifficultyRandom, nil
	case "c1", "c2", "c3", "c4", "c5", "c6":
		return Difficulty(v), nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// ParseQuestionType normalizes a question type label as written by users or the model
func ParseQuestionType(s string) (QuestionType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(v)
	switch v {
	case "", "random", "acak":
		return TypeRandom, nil
	case "essay", "esai", "esay", "uraian":
		return TypeEssay, nil
	case "multiplechoice", "pilihanganda", "pg":
		return TypeMultipleChoice, nil
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

// ParseGrade normalizes a grade label
func ParseGrade(s string) (Grade, error) {
	switch g := Grade(strings.ToUpper(strings.TrimSpace(s))); g {
	case GradeX, GradeXI, GradeXII:
		return g, nil
	case "10":
		return GradeX, nil
	case "11":
		return GradeXI, nil
	case "12":
		return GradeXII, nil
	}
	return "", fmt.Errorf("unknown grade %q", s)
}

// ParseLanguage normalizes a language code, defaulting to Indonesian
func ParseLanguage(s string) (Language, error) {
	switch l := Language(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LangID, nil
	case LangID, LangEN:
		return l, nil
	}
	return "", fmt.Errorf("unknown language %q", s)
}

// Normalize trims the prompt and replaces enum labels with their canonical values
func (r *GenerationRequest) Normalize() error {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.Topic = strings.TrimSpace(r.Topic)

	var err error
	if r.Difficulty, err = ParseDifficulty(string(r.Difficulty)); err != nil {
		return err
	}
	if r.Type, err = ParseQuestionType(string(r.Type)); err != nil {
		return err
	}
	if r.Language, err = ParseLanguage(string(r.Language)); err != nil {
		return err
	}
	if r.Grade != "" {
		if r.Grade, err = ParseGrade(string(r.Grade)); err != nil {
			return err
		}
	}
	return nil
}
