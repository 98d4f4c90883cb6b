package quizstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

var ErrStreamTruncated = errors.New("stream ended before complete event")

// ProgressUpdate is a progress event placed in its chunk
type ProgressUpdate struct {
	Message        string `json:"message"`
	ChunkIndex     int    `json:"chunkIndex"`
	Current        int    `json:"current"`
	ChunkCompleted int    `json:"chunkCompleted"`
	ChunkTotal     int    `json:"chunkTotal"`
	TotalCompleted int    `json:"totalCompleted"`
	Total          int    `json:"total"`
}

// QuestionFound is a generated question mapped onto its slot in the whole batch.
// GlobalIndex is 0-based; ChunkPosition is the 1-based arrival count within the chunk.
type QuestionFound struct {
	Question       GeneratedQuestion `json:"data"`
	GlobalIndex    int               `json:"globalIndex"`
	ChunkIndex     int               `json:"chunkIndex"`
	ChunkPosition  int               `json:"chunkPosition"`
	TotalCompleted int               `json:"totalCompleted"`
}

// QuestionError is an error event placed in its chunk
type QuestionError struct {
	Message    string `json:"message"`
	ChunkIndex int    `json:"chunkIndex"`
	Current    int    `json:"current"`
}

// ChunkHandlers receive the decoded events of one chunk; nil handlers are skipped
type ChunkHandlers struct {
	OnProgress func(ProgressUpdate)
	OnQuestion func(QuestionFound)
	OnError    func(QuestionError)
}

// ChunkResult is what one chunk produced. Completed counts question events seen,
// including those seen before a cancellation or failure.
type ChunkResult struct {
	Completed int
	Cancelled bool
}

// ChunkStreamer streams a single chunk
type ChunkStreamer interface {
	StreamChunk(ctx context.Context, req GenerationRequest, chunk Chunk, chunkIndex int, h ChunkHandlers) (ChunkResult, error)
}

// StreamClient opens one streaming POST /generate call per chunk
type StreamClient struct {
	URL        string
	HTTPClient *http.Client
}

// NewStreamClient creates a client for the generate endpoint at url. A zero timeout
// leaves streams bounded only by the caller's context.
func NewStreamClient(url string, timeout time.Duration) *StreamClient {
	return &StreamClient{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// NewListRequest builds the wire request for one chunk of req
func NewListRequest(req GenerationRequest, chunk Chunk) GenerateBody {
	return GenerateBody{
		Prompt:     req.Prompt,
		Mode:       ModeList,
		Difficulty: req.Difficulty,
		Reference:  req.Reference,
		Type:       req.Type,
		Total:      chunk.Size,
		Range:      Range{Start: chunk.Start, End: chunk.End},
		Lang:       req.Language,
		Stream:     true,
		Topic:      req.Topic,
		Grade:      req.Grade,
	}
}

func (c *StreamClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// StreamChunk streams one chunk and forwards its events to h. Cancelling ctx aborts the
// call and the body reader; the result then has Cancelled set and the error is nil.
func (c *StreamClient) StreamChunk(ctx context.Context, req GenerationRequest, chunk Chunk, chunkIndex int, h ChunkHandlers) (ChunkResult, error) {
	var res ChunkResult

	payload, err := json.Marshal(NewListRequest(req, chunk))
	if err != nil {
		return res, fmt.Errorf("failed to marshal chunk request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return res, fmt.Errorf("failed to create chunk request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	VerboseLog("Opening stream for chunk %d (%d-%d)", chunkIndex, chunk.Start, chunk.End)

	resp, err := c.client().Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			res.Cancelled = true
			return res, nil
		}
		return res, fmt.Errorf("failed to open chunk stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res, statusError(resp)
	}

	stop := context.AfterFunc(ctx, func() { resp.Body.Close() })
	defer stop()

	frames := NewFrameReader(resp.Body)
	for {
		if ctx.Err() != nil {
			res.Cancelled = true
			return res, nil
		}

		payload, err := frames.Next()
		if err != nil {
			if ctx.Err() != nil {
				res.Cancelled = true
				return res, nil
			}
			if errors.Is(err, io.EOF) {
				return res, ErrStreamTruncated
			}
			return res, fmt.Errorf("failed to read chunk stream: %w", err)
		}

		ev, err := DecodeEvent(payload)
		if err != nil {
			log.Printf("Skipping malformed frame in chunk %d: %v", chunkIndex, err)
			continue
		}

		switch e := ev.(type) {
		case StatusEvent:
			VerboseLog("Chunk %d status: %s", chunkIndex, e.Message)
		case ProgressEvent:
			if h.OnProgress != nil {
				h.OnProgress(ProgressUpdate{
					Message:        e.Message,
					ChunkIndex:     chunkIndex,
					Current:        e.Current,
					ChunkCompleted: res.Completed,
					ChunkTotal:     chunk.Size,
				})
			}
		case QuestionEvent:
			res.Completed++
			if h.OnQuestion != nil {
				h.OnQuestion(QuestionFound{
					Question:      e.Data,
					GlobalIndex:   chunk.GlobalIndex(res.Completed),
					ChunkIndex:    chunkIndex,
					ChunkPosition: res.Completed,
				})
			}
		case ErrorEvent:
			if h.OnError != nil {
				h.OnError(QuestionError{Message: e.Message, ChunkIndex: chunkIndex, Current: e.Current})
			}
		case CompleteEvent:
			VerboseLog("Chunk %d complete: %d questions", chunkIndex, res.Completed)
			return res, nil
		}
	}
}

// statusError turns a non-2xx response into an error, preferring the endpoint's message
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return &StatusError{Code: resp.StatusCode, Message: body.Error.Message}
	}
	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}

// StatusError is a non-2xx answer from the generate endpoint
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Code)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Message)
}
