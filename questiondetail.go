package quizstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DetailFetcher produces the detail of one generated question
type DetailFetcher interface {
	GenerateDetail(ctx context.Context, body GenerateBody) (QuestionDetail, error)
}

// DetailClient requests question details from the generate endpoint in detail mode
type DetailClient struct {
	URL        string
	HTTPClient *http.Client
	Attempts   int
}

func NewDetailClient(url string, timeout time.Duration) *DetailClient {
	return &DetailClient{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
		Attempts:   DefaultRetryAttempts,
	}
}

// NewDetailRequest builds the detail-mode request for a populated question
func NewDetailRequest(q QuestionSkeleton, req GenerationRequest) GenerateBody {
	return GenerateBody{
		Prompt:     q.Prompt,
		Mode:       ModeDetail,
		Difficulty: q.Difficulty,
		Reference:  req.Reference,
		Type:       q.Type,
		Lang:       req.Language,
		Topic:      q.Topic,
		Grade:      q.Grade,
	}
}

// GenerateDetail fetches and parses a detail, retrying transient failures and
// unparseable model output.
func (c *DetailClient) GenerateDetail(ctx context.Context, body GenerateBody) (QuestionDetail, error) {
	var detail QuestionDetail
	err := Retry(ctx, c.Attempts, func(ctx context.Context) error {
		text, err := c.fetch(ctx, body)
		if err != nil {
			return err
		}
		detail, err = ParseDetailOutput(text)
		return err
	})
	if err != nil {
		return QuestionDetail{}, fmt.Errorf("failed to generate detail: %w", err)
	}
	return detail, nil
}

func (c *DetailClient) fetch(ctx context.Context, body GenerateBody) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", Permanent(fmt.Errorf("failed to marshal detail request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return "", Permanent(fmt.Errorf("failed to create detail request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", Permanent(ctx.Err())
		}
		return "", fmt.Errorf("failed to request detail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := statusError(resp)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", Permanent(err)
		}
		return "", err
	}

	var out struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode detail response: %w", err)
	}
	return out.Result, nil
}
