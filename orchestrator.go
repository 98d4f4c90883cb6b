package quizstream

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// RunState is the lifecycle of one bulk generation run
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateCancelled RunState = "cancelled"
)

// RunError is a question-level or chunk-level failure reported during a run
type RunError struct {
	Message    string `json:"message"`
	ChunkIndex int    `json:"chunkIndex"`
	Current    int    `json:"current,omitempty"`
	ChunkLevel bool   `json:"chunkLevel"`
}

// ChunkSummary is reported after each chunk, whatever its outcome
type ChunkSummary struct {
	ChunkIndex     int   `json:"chunkIndex"`
	Chunk          Chunk `json:"chunk"`
	Completed      int   `json:"completed"`
	TotalCompleted int   `json:"totalCompleted"`
	Failed         bool  `json:"failed"`
}

// RunSummary is the single terminal outcome of a run
type RunSummary struct {
	IsCancelled  bool `json:"isCancelled"`
	Total        int  `json:"total"`
	Completed    int  `json:"completed"`
	FailedChunks int  `json:"failedChunks"`
}

// Callbacks receive run events; nil callbacks are skipped
type Callbacks struct {
	OnProgress      func(ProgressUpdate)
	OnQuestionFound func(QuestionFound)
	OnError         func(RunError)
	OnChunkDone     func(ChunkSummary)
	OnComplete      func(RunSummary)
}

// Orchestrator drives the chunks of a request one at a time
type Orchestrator struct {
	Client    ChunkStreamer
	ChunkSize int
}

func NewOrchestrator(client ChunkStreamer) *Orchestrator {
	return &Orchestrator{Client: client, ChunkSize: MaxChunkSize}
}

// ValidateRequest rejects requests that must not start streaming
func ValidateRequest(req GenerationRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if req.Total < 1 || req.Total > MaxTotal {
		return fmt.Errorf("%w: total must be between 1 and %d, got %d", ErrTotalOutOfRange, MaxTotal, req.Total)
	}
	return nil
}

// Run generates req.Total questions chunk by chunk. Validation errors are returned
// before any callback fires. Otherwise OnComplete fires exactly once, and chunk failures
// are reported through OnError without stopping the run. Cancelling ctx stops the
// in-flight chunk and prevents any further chunk from starting.
func (o *Orchestrator) Run(ctx context.Context, req GenerationRequest, cb Callbacks) (RunSummary, error) {
	if err := ValidateRequest(req); err != nil {
		return RunSummary{}, err
	}

	chunks := PlanChunks(req.Total, o.ChunkSize)
	summary := RunSummary{Total: req.Total}

	log.Printf("Starting generation of %d questions in %d chunk(s)", req.Total, len(chunks))

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			summary.IsCancelled = true
			break
		}

		base := summary.Completed
		handlers := ChunkHandlers{
			OnProgress: func(p ProgressUpdate) {
				p.TotalCompleted = base + p.ChunkCompleted
				p.Total = req.Total
				cb.progress(p)
			},
			OnQuestion: func(q QuestionFound) {
				q.TotalCompleted = base + q.ChunkPosition
				cb.questionFound(q)
			},
			OnError: func(e QuestionError) {
				cb.fail(RunError{Message: e.Message, ChunkIndex: e.ChunkIndex, Current: e.Current})
			},
		}

		res, err := o.Client.StreamChunk(ctx, req, chunk, i, handlers)
		summary.Completed += res.Completed

		if err != nil {
			log.Printf("Chunk %d (%d-%d) failed: %v", i, chunk.Start, chunk.End, err)
			summary.FailedChunks++
			cb.fail(RunError{Message: err.Error(), ChunkIndex: i, ChunkLevel: true})
		}

		cb.chunkDone(ChunkSummary{
			ChunkIndex:     i,
			Chunk:          chunk,
			Completed:      res.Completed,
			TotalCompleted: summary.Completed,
			Failed:         err != nil,
		})

		if res.Cancelled {
			summary.IsCancelled = true
			break
		}
	}

	log.Printf("Generation finished: %d/%d questions (cancelled=%v, failed chunks=%d)",
		summary.Completed, summary.Total, summary.IsCancelled, summary.FailedChunks)

	cb.complete(summary)
	return summary, nil
}

func (cb Callbacks) progress(p ProgressUpdate) {
	if cb.OnProgress != nil {
		cb.OnProgress(p)
	}
}

func (cb Callbacks) questionFound(q QuestionFound) {
	if cb.OnQuestionFound != nil {
		cb.OnQuestionFound(q)
	}
}

func (cb Callbacks) fail(e RunError) {
	if cb.OnError != nil {
		cb.OnError(e)
	}
}

func (cb Callbacks) chunkDone(s ChunkSummary) {
	if cb.OnChunkDone != nil {
		cb.OnChunkDone(s)
	}
}

func (cb Callbacks) complete(s RunSummary) {
	if cb.OnComplete != nil {
		cb.OnComplete(s)
	}
}

// UpdateKind tags an Update
type UpdateKind string

const (
	UpdateProgress  UpdateKind = "progress"
	UpdateQuestion  UpdateKind = "question"
	UpdateError     UpdateKind = "error"
	UpdateChunkDone UpdateKind = "chunk"
	UpdateComplete  UpdateKind = "complete"
)

// Update is one run event delivered over a channel. Exactly the field matching Kind is set.
type Update struct {
	Kind     UpdateKind
	Progress *ProgressUpdate
	Question *QuestionFound
	Error    *RunError
	Chunk    *ChunkSummary
	Summary  *RunSummary
}

// Stream runs req in a goroutine and delivers its events in order. The channel is
// closed right after the UpdateComplete update. Once ctx is cancelled, updates that
// do not fit the buffer are dropped instead of blocking the run.
func (o *Orchestrator) Stream(ctx context.Context, req GenerationRequest) (<-chan Update, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	updates := make(chan Update, 16)
	send := func(u Update) {
		select {
		case updates <- u:
			return
		default:
		}
		select {
		case updates <- u:
		case <-ctx.Done():
			VerboseLog("Dropping %s update: %v", u.Kind, ctx.Err())
		}
	}

	go func() {
		defer close(updates)
		o.Run(ctx, req, Callbacks{
			OnProgress:      func(p ProgressUpdate) { send(Update{Kind: UpdateProgress, Progress: &p}) },
			OnQuestionFound: func(q QuestionFound) { send(Update{Kind: UpdateQuestion, Question: &q}) },
			OnError:         func(e RunError) { send(Update{Kind: UpdateError, Error: &e}) },
			OnChunkDone:     func(s ChunkSummary) { send(Update{Kind: UpdateChunkDone, Chunk: &s}) },
			OnComplete:      func(s RunSummary) { send(Update{Kind: UpdateComplete, Summary: &s}) },
		})
	}()
	return updates, nil
}
