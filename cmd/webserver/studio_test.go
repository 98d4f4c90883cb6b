package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"quizstream"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkStreamer answers every chunk with prompts "Q<position>". With hold set it
// emits the first question of the first chunk and then waits for cancellation.
type chunkStreamer struct {
	hold    bool
	emitted chan struct{}
}

func (f *chunkStreamer) StreamChunk(ctx context.Context, req quizstream.GenerationRequest, chunk quizstream.Chunk, chunkIndex int, h quizstream.ChunkHandlers) (quizstream.ChunkResult, error) {
	var res quizstream.ChunkResult
	for k := 1; k <= chunk.Size; k++ {
		if ctx.Err() != nil {
			res.Cancelled = true
			return res, nil
		}
		h.OnQuestion(quizstream.QuestionFound{
			Question: quizstream.GeneratedQuestion{
				Prompt:     fmt.Sprintf("Q%d", chunk.Position(k)),
				Difficulty: quizstream.DifficultyC3,
				Type:       quizstream.TypeEssay,
				Index:      k,
			},
			GlobalIndex:   chunk.GlobalIndex(k),
			ChunkIndex:    chunkIndex,
			ChunkPosition: k,
		})
		res.Completed++

		if f.hold {
			f.emitted <- struct{}{}
			<-ctx.Done()
			res.Cancelled = true
			return res, nil
		}
	}
	return res, nil
}

type detailFetcher struct{}

func (detailFetcher) GenerateDetail(ctx context.Context, body quizstream.GenerateBody) (quizstream.QuestionDetail, error) {
	return quizstream.QuestionDetail{
		Title:       "Detail " + body.Prompt,
		Description: "Jelaskan " + body.Prompt,
		Answer:      "jawaban",
	}, nil
}

type studio struct {
	server *Server
	srv    *httptest.Server
	client *http.Client
}

func newStudio(t *testing.T, streamer *chunkStreamer) *studio {
	t.Helper()

	db, err := quizstream.OpenDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.CreateTables(context.Background()))

	store := sessions.NewCookieStore([]byte("test-session-secret"))
	details := quizstream.NewDetailQueue(detailFetcher{}, 4)
	s := NewServer(db, store, http.NotFoundHandler(), quizstream.NewOrchestrator(streamer), details)

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
		db.CloseDB()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &studio{server: s, srv: srv, client: &http.Client{Jar: jar}}
}

func (st *studio) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, st.srv.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	resp, err := st.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (st *studio) wait(t *testing.T, id string) {
	t.Helper()

	rn, ok := st.server.runs.get(id)
	require.True(t, ok)
	select {
	case <-rn.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("run %s did not finish", id)
	}
}

func decodeView(t *testing.T, body []byte) runView {
	t.Helper()
	var v runView
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func runRequest(total int) map[string]any {
	return map[string]any{
		"prompt":     "  hukum newton  ",
		"topic":      "Dinamika",
		"grade":      "10",
		"total":      total,
		"difficulty": "acak",
		"type":       "esai",
		"lang":       "id",
	}
}

func TestStudioRunToCompletion(t *testing.T) {
	st := newStudio(t, &chunkStreamer{})

	resp, body := st.do(t, http.MethodPost, "/studio/runs", runRequest(7))
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	started := decodeView(t, body)
	assert.Equal(t, "hukum newton", started.Request.Prompt)
	assert.Equal(t, quizstream.GradeX, started.Request.Grade)
	assert.Equal(t, quizstream.TypeEssay, started.Request.Type)
	assert.Len(t, started.Questions, 7)

	st.wait(t, started.ID)

	resp, body = st.do(t, http.MethodGet, "/studio/runs/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decodeView(t, body)
	assert.Equal(t, started.ID, v.ID)
	assert.Equal(t, quizstream.StateCompleted, v.State)
	require.NotNil(t, v.Summary)
	assert.Equal(t, 7, v.Summary.Completed)
	assert.NotEmpty(t, v.GenerationID)

	require.Len(t, v.Questions, 7)
	for i, q := range v.Questions {
		assert.False(t, q.IsLoading)
		assert.Equal(t, fmt.Sprintf("Q%d", i+1), q.Prompt)
		assert.Equal(t, i, q.SourceIndex)
	}

	resp, body = st.do(t, http.MethodPost, "/studio/runs/current/questions/3/detail", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var q quizstream.QuestionSkeleton
	require.NoError(t, json.Unmarshal(body, &q))
	assert.Equal(t, "Q3", q.Prompt)
	assert.Equal(t, "Detail Q3", q.Title)

	resp, body = st.do(t, http.MethodGet, "/studio/generations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var generations []quizstream.DBGeneration
	require.NoError(t, json.Unmarshal(body, &generations))
	require.Len(t, generations, 1)
	assert.Equal(t, v.GenerationID, generations[0].ID)
	assert.Equal(t, quizstream.GenerationCompleted, generations[0].Status)

	resp, body = st.do(t, http.MethodGet, "/studio/generations/"+v.GenerationID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saved struct {
		Generation quizstream.DBGeneration `json:"generation"`
		Questions  []quizstream.DBQuestion `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.Equal(t, 7, saved.Generation.Completed)
	require.Len(t, saved.Questions, 7)
	assert.Equal(t, "Q7", saved.Questions[6].Prompt)
}

func TestStudioCancelRun(t *testing.T) {
	streamer := &chunkStreamer{hold: true, emitted: make(chan struct{}, 1)}
	st := newStudio(t, streamer)

	resp, body := st.do(t, http.MethodPost, "/studio/runs", runRequest(4))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := decodeView(t, body).ID
	<-streamer.emitted

	resp, _ = st.do(t, http.MethodPost, "/studio/runs/current/questions/2/detail", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "unfilled slot")

	resp, body = st.do(t, http.MethodPost, "/studio/runs/"+id+"/questions/1/detail", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = st.do(t, http.MethodPost, "/studio/runs/current/cancel", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	st.wait(t, id)

	_, body = st.do(t, http.MethodGet, "/studio/runs/"+id, nil)
	v := decodeView(t, body)
	assert.Equal(t, quizstream.StateCancelled, v.State)
	require.Len(t, v.Questions, 1, "unfilled slots are swept")
	assert.Equal(t, "Q1", v.Questions[0].Prompt)
	assert.Equal(t, "Detail Q1", v.Questions[0].Title)

	_, body = st.do(t, http.MethodGet, "/studio/generations/"+v.GenerationID, nil)
	var saved struct {
		Generation quizstream.DBGeneration `json:"generation"`
	}
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.Equal(t, quizstream.GenerationCancelled, saved.Generation.Status)
}

func TestStudioNewRunCancelsPrevious(t *testing.T) {
	streamer := &chunkStreamer{hold: true, emitted: make(chan struct{}, 2)}
	st := newStudio(t, streamer)

	_, body := st.do(t, http.MethodPost, "/studio/runs", runRequest(3))
	first := decodeView(t, body).ID
	<-streamer.emitted

	resp, body := st.do(t, http.MethodPost, "/studio/runs", runRequest(3))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	second := decodeView(t, body).ID
	st.wait(t, first)

	_, body = st.do(t, http.MethodGet, "/studio/runs/"+first, nil)
	assert.Equal(t, quizstream.StateCancelled, decodeView(t, body).State)

	_, body = st.do(t, http.MethodGet, "/studio/runs/current", nil)
	assert.Equal(t, second, decodeView(t, body).ID)
}

func TestStudioRejectsBadRequests(t *testing.T) {
	st := newStudio(t, &chunkStreamer{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"start with GET", http.MethodGet, "/studio/runs", nil, http.StatusMethodNotAllowed},
		{"empty prompt", http.MethodPost, "/studio/runs", map[string]any{"prompt": "  ", "total": 3}, http.StatusBadRequest},
		{"total too large", http.MethodPost, "/studio/runs", map[string]any{"prompt": "x", "total": quizstream.MaxTotal + 1}, http.StatusBadRequest},
		{"unknown difficulty", http.MethodPost, "/studio/runs", map[string]any{"prompt": "x", "total": 3, "difficulty": "c9"}, http.StatusBadRequest},
		{"no current run", http.MethodGet, "/studio/runs/current", nil, http.StatusNotFound},
		{"unknown run", http.MethodGet, "/studio/runs/nope", nil, http.StatusNotFound},
		{"cancel with GET", http.MethodGet, "/studio/runs/nope/cancel", nil, http.StatusMethodNotAllowed},
		{"question zero", http.MethodPost, "/studio/runs/nope/questions/0/detail", nil, http.StatusNotFound},
		{"unknown generation", http.MethodGet, "/studio/generations/missing", nil, http.StatusNotFound},
		{"unknown route", http.MethodGet, "/studio/quizzes", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := st.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}

	resp, body := st.do(t, http.MethodGet, "/studio/generations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func TestStudioMissingQuestion(t *testing.T) {
	st := newStudio(t, &chunkStreamer{})

	_, body := st.do(t, http.MethodPost, "/studio/runs", runRequest(2))
	id := decodeView(t, body).ID
	st.wait(t, id)

	resp, _ := st.do(t, http.MethodPost, "/studio/runs/"+id+"/questions/5/detail", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = st.do(t, http.MethodGet, "/studio/runs/"+id+"/questions/1/detail", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
