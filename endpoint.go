package quizstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	ModeList   = "list"
	ModeDetail = "detail"

	maxRequestBody = 1 << 20
)

var (
	ErrEmptyPrompt      = errors.New("prompt is required")
	ErrUnknownMode      = errors.New("unknown mode")
	ErrTotalOutOfRange  = errors.New("total out of range")
	ErrInvalidRange     = errors.New("invalid range")
	ErrNoQuestionParsed = errors.New("model output contained no question")
)

// Range is the 1-based inclusive slice of the batch a streaming call generates
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// GenerateBody is the JSON body of POST /generate
type GenerateBody struct {
	Prompt     string       `json:"prompt"`
	Mode       string       `json:"mode"`
	Difficulty Difficulty   `json:"difficulty"`
	Reference  string       `json:"reference"`
	Type       QuestionType `json:"type"`
	Total      int          `json:"total"`
	Range      Range        `json:"range"`
	Lang       Language     `json:"lang"`
	Stream     bool         `json:"stream"`
	Topic      string       `json:"topic,omitempty"`
	Grade      Grade        `json:"grade,omitempty"`
}

// Streaming reports whether the body asks for the SSE list protocol
func (b GenerateBody) Streaming() bool {
	return b.Mode == ModeList && b.Stream
}

// Validate normalizes enum labels and checks the request before any model call
func (b *GenerateBody) Validate() error {
	b.Prompt = strings.TrimSpace(b.Prompt)
	if b.Prompt == "" {
		return ErrEmptyPrompt
	}
	if b.Mode != ModeList && b.Mode != ModeDetail {
		return fmt.Errorf("%w: %q", ErrUnknownMode, b.Mode)
	}

	var err error
	if b.Difficulty, err = ParseDifficulty(string(b.Difficulty)); err != nil {
		return err
	}
	if b.Type, err = ParseQuestionType(string(b.Type)); err != nil {
		return err
	}
	if b.Lang, err = ParseLanguage(string(b.Lang)); err != nil {
		return err
	}
	if b.Grade != "" {
		if b.Grade, err = ParseGrade(string(b.Grade)); err != nil {
			return err
		}
	}

	if b.Mode != ModeList {
		return nil
	}
	if b.Total > MaxChunkSize {
		return fmt.Errorf("%w: list mode accepts at most %d questions, got %d", ErrTotalOutOfRange, MaxChunkSize, b.Total)
	}
	if b.Total < 1 {
		return fmt.Errorf("%w: total must be at least 1", ErrTotalOutOfRange)
	}

	if !b.Stream {
		return nil
	}
	if b.Range == (Range{}) {
		b.Range = Range{Start: 1, End: b.Total}
	}
	if b.Range.Start < 1 || b.Range.End < b.Range.Start {
		return fmt.Errorf("%w: %d-%d", ErrInvalidRange, b.Range.Start, b.Range.End)
	}
	if size := b.Range.End - b.Range.Start + 1; size > MaxChunkSize {
		return fmt.Errorf("%w: range covers %d questions, at most %d allowed", ErrInvalidRange, size, MaxChunkSize)
	} else if size != b.Total {
		return fmt.Errorf("%w: range covers %d questions but total is %d", ErrInvalidRange, size, b.Total)
	}
	return nil
}

// Endpoint serves POST /generate
type Endpoint struct {
	Generator TextGenerator
	// LogDir, when set, receives one LLM transcript per request
	LogDir string
}

func NewEndpoint(generator TextGenerator, logDir string) *Endpoint {
	return &Endpoint{Generator: generator, LogDir: logDir}
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	var body GenerateBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if err := body.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	generator, logger := e.generatorFor(body)
	defer logger.Close()

	if body.Streaming() {
		e.stream(w, r.Context(), generator, logger, body)
		return
	}
	e.generateOnce(w, r.Context(), generator, body)
}

// generatorFor wraps the generator with a per-request transcript when LogDir is set.
// The returned logger may be nil.
func (e *Endpoint) generatorFor(body GenerateBody) (TextGenerator, *LLMLogger) {
	if e.LogDir == "" {
		return e.Generator, nil
	}

	logger, err := NewLLMLogger(e.LogDir, uuid.NewString(), body)
	if err != nil {
		// Continue without logging rather than failing
		log.Printf("Failed to create LLM logger: %v", err)
		return e.Generator, nil
	}
	return &LoggingGenerator{Next: e.Generator, Logger: logger, Module: "Generate/" + body.Mode}, logger
}

func (e *Endpoint) generateOnce(w http.ResponseWriter, ctx context.Context, generator TextGenerator, body GenerateBody) {
	var messages []Message
	if body.Mode == ModeDetail {
		messages = BuildDetailMessages(body)
	} else {
		messages = BuildListMessages(body, 0, body.Total)
	}

	text, err := generator.GenerateText(ctx, messages)
	if err != nil {
		log.Printf("Generation failed (mode=%s): %v", body.Mode, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": text})
}

func (e *Endpoint) stream(w http.ResponseWriter, ctx context.Context, generator TextGenerator, logger *LLMLogger, body GenerateBody) {
	flusher, _ := w.(http.Flusher)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(ev Event) bool {
		if err := WriteFrame(w, ev); err != nil {
			log.Printf("Stream aborted: %v", err)
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	start, end := body.Range.Start, body.Range.End
	total := end - start + 1
	completed := 0

	log.Printf("Streaming questions %d-%d for prompt: %s", start, end, body.Prompt)

	if !send(StatusEvent{Message: "Generating questions", Total: total, Completed: completed}) {
		return
	}

	for current := start; current <= end; current++ {
		if ctx.Err() != nil {
			log.Printf("Client disconnected at question %d", current)
			return
		}

		progress := ProgressEvent{
			Message:   fmt.Sprintf("Generating question %d of %d", current-start+1, total),
			Completed: completed,
			Total:     total,
			Current:   current,
		}
		if !send(progress) {
			return
		}

		questions, err := e.generateOne(ctx, generator, body, current)
		if err != nil {
			log.Printf("Question %d failed: %v", current, err)
			logger.LogQuestionResult(current, "failed", err.Error())
			if !send(ErrorEvent{Message: err.Error(), Completed: completed, Total: total, Current: current}) {
				return
			}
			continue
		}

		logger.LogQuestionResult(current, "generated", fmt.Sprintf("%d block(s)", len(questions)))
		for _, q := range questions {
			ev := QuestionEvent{
				Data: GeneratedQuestion{
					Prompt:     q.Prompt,
					Difficulty: ResolveDifficulty(body.Difficulty, q.Difficulty),
					Type:       ResolveQuestionType(body.Type, q.Type),
					Index:      completed,
				},
				Completed: completed + 1,
				Total:     total,
			}
			completed++
			if !send(ev) {
				return
			}
		}
	}

	send(CompleteEvent{Message: "Generation complete", Completed: completed, Total: total})
	log.Printf("Stream %d-%d complete: %d questions", start, end, completed)
}

// generateOne asks the model for exactly one question at the given position
func (e *Endpoint) generateOne(ctx context.Context, generator TextGenerator, body GenerateBody, position int) ([]ParsedQuestion, error) {
	text, err := generator.GenerateText(ctx, BuildListMessages(body, position, 1))
	if err != nil {
		return nil, err
	}

	questions := ParseListOutput(text)
	if len(questions) == 0 {
		return nil, ErrNoQuestionParsed
	}
	VerboseLog("Question %d: parsed %d block(s)", position, len(questions))
	return questions, nil
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	var body errorBody
	body.Error.Message = err.Error()
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
