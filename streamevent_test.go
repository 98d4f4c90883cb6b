package quizstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEventTagsType(t *testing.T) {
	payload, err := EncodeEvent(QuestionEvent{
		Data:      GeneratedQuestion{Prompt: "Hitung percepatan", Difficulty: DifficultyC3, Type: TypeEssay, Index: 0},
		Completed: 1,
		Total:     5,
	})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(payload, &fields))
	assert.Equal(t, "question", fields["type"])
	assert.EqualValues(t, 1, fields["completed"])

	data, ok := fields["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hitung percepatan", data["prompt"])
	assert.Equal(t, "c3", data["difficulty"])
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"error","message":"model timeout","completed":2,"total":5,"current":3}`))
	require.NoError(t, err)
	assert.Equal(t, ErrorEvent{Message: "model timeout", Completed: 2, Total: 5, Current: 3}, ev)

	ev, err = DecodeEvent([]byte(`{"type":"complete","message":"done","completed":5,"total":5}`))
	require.NoError(t, err)
	assert.Equal(t, EventComplete, ev.Kind())
}

func TestDecodeEventRejectsBadPayloads(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"heartbeat"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeEvent([]byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeEvent([]byte(`{not json`))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownEvent))

	_, err = DecodeEvent([]byte(`{"type":"progress","current":"three"}`))
	assert.Error(t, err)
}

func TestWriteFrameFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, StatusEvent{Message: "start", Total: 2}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "data: {"))
	assert.True(t, strings.HasSuffix(out, "}\n\n"))
	assert.Equal(t, 1, strings.Count(out, "\n\n"))
}

func TestFrameReader(t *testing.T) {
	var buf bytes.Buffer
	writeFrames(t, &buf, StatusEvent{Message: "start", Total: 2})
	buf.WriteString(": keep-alive\r\n\r\n")
	buf.WriteString("event: ignored\n")
	writeFrames(t, &buf, QuestionEvent{
		Data:      GeneratedQuestion{Prompt: "Q1", Difficulty: DifficultyC2, Type: TypeEssay},
		Completed: 1,
		Total:     2,
	})
	buf.WriteString("data: {\"type\":\"complete\",\"completed\":1,\"total\":2}")

	fr := NewFrameReader(&buf)

	var kinds []EventType
	for {
		payload, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		ev, err := DecodeEvent(payload)
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind())

		if q, ok := ev.(QuestionEvent); ok {
			assert.Equal(t, "Q1", q.Data.Prompt)
		}
	}

	assert.Equal(t, []EventType{EventStatus, EventQuestion, EventComplete}, kinds)
}

func TestFrameReaderRejectsOverlongLine(t *testing.T) {
	body := "data: " + strings.Repeat("x", MaxFrameSize+10)
	_, err := NewFrameReader(strings.NewReader(body)).Next()
	assert.ErrorIs(t, err, ErrFrameTooLong)

	// a large frame under the cap still decodes
	big := `{"type":"status","message":"` + strings.Repeat("y", MaxFrameSize/2) + `"}`
	payload, err := NewFrameReader(strings.NewReader("data: " + big + "\n\n")).Next()
	require.NoError(t, err)
	assert.Equal(t, big, string(payload))
}

func TestFrameReaderHandlesCRLF(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("data: {\"type\":\"status\",\"message\":\"hi\"}\r\n\r\n"))

	payload, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"status","message":"hi"}`, string(payload))

	_, err = fr.Next()
	assert.ErrorIs(t, err, io.EOF)
}
