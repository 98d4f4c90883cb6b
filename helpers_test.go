package quizstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type scriptedResponse struct {
	text string
	err  error
}

// scriptedGenerator answers GenerateText calls with its responses in order
type scriptedGenerator struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     [][]Message
}

func newScriptedGenerator(responses ...scriptedResponse) *scriptedGenerator {
	return &scriptedGenerator{responses: responses}
}

func reply(text string) scriptedResponse { return scriptedResponse{text: text} }

func failure(msg string) scriptedResponse { return scriptedResponse{err: errors.New(msg)} }

func (g *scriptedGenerator) GenerateText(ctx context.Context, messages []Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, messages)
	if len(g.responses) == 0 {
		return "", errors.New("no scripted response left")
	}
	r := g.responses[0]
	g.responses = g.responses[1:]
	return r.text, r.err
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// readEvents decodes every frame of an SSE body
func readEvents(t *testing.T, body []byte) []Event {
	t.Helper()

	var events []Event
	fr := NewFrameReader(bytes.NewReader(body))
	for {
		payload, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)

		ev, err := DecodeEvent(payload)
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func writeFrames(t *testing.T, w io.Writer, events ...Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, WriteFrame(w, ev))
	}
}
