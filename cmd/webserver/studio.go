package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"quizstream"

	"github.com/google/uuid"
)

// run is one bulk generation started from the studio
type run struct {
	ID      string
	Request quizstream.GenerationRequest
	Board   *quizstream.QuestionBoard

	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.Mutex
	state        quizstream.RunState
	progress     *quizstream.ProgressUpdate
	errors       []quizstream.RunError
	summary      *quizstream.RunSummary
	generationID string
}

type runView struct {
	ID           string                        `json:"id"`
	State        quizstream.RunState           `json:"state"`
	Request      quizstream.GenerationRequest  `json:"request"`
	Progress     *quizstream.ProgressUpdate    `json:"progress,omitempty"`
	Questions    []quizstream.QuestionSkeleton `json:"questions"`
	Errors       []quizstream.RunError         `json:"errors"`
	Summary      *quizstream.RunSummary        `json:"summary,omitempty"`
	GenerationID string                        `json:"generationId,omitempty"`
}

func (rn *run) view() runView {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	errs := make([]quizstream.RunError, len(rn.errors))
	copy(errs, rn.errors)
	return runView{
		ID:           rn.ID,
		State:        rn.state,
		Request:      rn.Request,
		Progress:     rn.progress,
		Questions:    rn.Board.Snapshot(),
		Errors:       errs,
		Summary:      rn.summary,
		GenerationID: rn.generationID,
	}
}

func (rn *run) setProgress(p quizstream.ProgressUpdate) {
	rn.mu.Lock()
	rn.progress = &p
	rn.mu.Unlock()
}

func (rn *run) addError(e quizstream.RunError) {
	rn.mu.Lock()
	rn.errors = append(rn.errors, e)
	rn.mu.Unlock()
}

func (rn *run) finish(summary quizstream.RunSummary) {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	rn.summary = &summary
	rn.state = quizstream.StateCompleted
	if summary.IsCancelled {
		rn.state = quizstream.StateCancelled
	}
}

type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*run
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*run)}
}

func (rr *runRegistry) add(rn *run) {
	rr.mu.Lock()
	rr.runs[rn.ID] = rn
	rr.mu.Unlock()
}

func (rr *runRegistry) get(id string) (*run, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rn, ok := rr.runs[id]
	return rn, ok
}

func (rr *runRegistry) cancelAll() {
	rr.mu.Lock()
	runs := make([]*run, 0, len(rr.runs))
	for _, rn := range rr.runs {
		runs = append(runs, rn)
	}
	rr.mu.Unlock()

	for _, rn := range runs {
		rn.cancel()
	}
	for _, rn := range runs {
		<-rn.done
	}
}

// startRun registers a run and drives it in the background
func (s *Server) startRun(req quizstream.GenerationRequest) *run {
	ctx, cancel := context.WithCancel(context.Background())
	rn := &run{
		ID:      uuid.NewString(),
		Request: req,
		Board:   quizstream.NewQuestionBoard(req),
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   quizstream.StateRunning,
	}
	s.runs.add(rn)

	go s.execute(ctx, rn)
	return rn
}

func (s *Server) execute(ctx context.Context, rn *run) {
	defer close(rn.done)
	defer rn.cancel()

	summary, err := s.orchestrator.Run(ctx, rn.Request, quizstream.Callbacks{
		OnProgress:      rn.setProgress,
		OnQuestionFound: func(q quizstream.QuestionFound) { rn.Board.Apply(q) },
		OnError:         rn.addError,
		OnComplete: func(summary quizstream.RunSummary) {
			removed := rn.Board.Sweep()
			quizstream.VerboseLog("Run %s: removed %d unfilled question(s)", rn.ID, removed)
		},
	})
	if err != nil {
		log.Printf("Run %s rejected: %v", rn.ID, err)
		rn.addError(quizstream.RunError{Message: err.Error(), ChunkLevel: true})
		rn.finish(quizstream.RunSummary{Total: rn.Request.Total})
		return
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := s.db.SaveRun(saveCtx, rn.Request, summary, rn.Board.Snapshot())
	if err != nil {
		log.Printf("Failed to save run %s: %v", rn.ID, err)
	}

	rn.mu.Lock()
	rn.generationID = id
	rn.mu.Unlock()
	rn.finish(summary)

	log.Printf("Run %s finished: %d/%d questions, saved as %q", rn.ID, summary.Completed, summary.Total, id)
}

// lookupRun resolves a run ID, where "current" is the last run started by this session
func (s *Server) lookupRun(r *http.Request, id string) (*run, bool) {
	if id == "current" {
		session, _ := s.store.Get(r, sessionName)
		current, ok := session.Values["run"].(string)
		if !ok {
			return nil, false
		}
		id = current
	}
	return s.runs.get(id)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req quizstream.GenerationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}
	if err := req.Normalize(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := quizstream.ValidateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Reference = quizstream.TrimReference(req.Reference, quizstream.MaxReferenceChars)

	// A session drives one run at a time
	session, _ := s.store.Get(r, sessionName)
	if prevID, ok := session.Values["run"].(string); ok {
		if prev, ok := s.runs.get(prevID); ok {
			prev.cancel()
		}
	}

	rn := s.startRun(req)
	log.Printf("Run %s started: %d questions for prompt: %s", rn.ID, req.Total, req.Prompt)

	session.Values["run"] = rn.ID
	if err := session.Save(r, w); err != nil {
		log.Printf("Session save error: %v", err)
	}

	writeJSON(w, http.StatusAccepted, rn.view())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rn, ok := s.lookupRun(r, id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, rn.view())
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rn, ok := s.lookupRun(r, id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	log.Printf("Cancelling run %s", rn.ID)
	rn.cancel()
	writeJSON(w, http.StatusAccepted, rn.view())
}

func (s *Server) handleQuestionDetail(w http.ResponseWriter, r *http.Request, id string, n int) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rn, ok := s.lookupRun(r, id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	q, ok := rn.Board.Get(n - 1)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("question %d not found", n))
		return
	}
	if q.IsLoading {
		writeError(w, http.StatusConflict, fmt.Sprintf("question %d is still loading", n))
		return
	}

	results, err := s.details.Enqueue(r.Context(), quizstream.DetailJob{
		Position: n - 1,
		Body:     quizstream.NewDetailRequest(q, rn.Request),
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	var res quizstream.DetailResult
	select {
	case res = <-results:
	case <-r.Context().Done():
		return
	}
	if res.Err != nil {
		status := http.StatusBadGateway
		if errors.Is(res.Err, quizstream.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, res.Err.Error())
		return
	}

	// The end-of-run sweep may have shifted positions while the detail was generated
	if current, ok := rn.Board.Get(n - 1); !ok || current.Prompt != q.Prompt {
		writeError(w, http.StatusConflict, fmt.Sprintf("question %d changed while its detail was generated", n))
		return
	}

	rn.Board.ApplyDetail(n-1, res.Detail)
	updated, _ := rn.Board.Get(n - 1)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	generations, err := s.db.GetGenerations(r.Context(), 50)
	if err != nil {
		log.Printf("Failed to get generations: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get generations")
		return
	}
	if generations == nil {
		generations = []quizstream.DBGeneration{}
	}
	writeJSON(w, http.StatusOK, generations)
}

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	generation, err := s.db.GetGeneration(r.Context(), id)
	if errors.Is(err, quizstream.ErrNotFound) {
		writeError(w, http.StatusNotFound, "generation not found")
		return
	}
	if err != nil {
		log.Printf("Failed to get generation %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get generation")
		return
	}

	questions, err := s.db.GetQuestions(r.Context(), id)
	if err != nil {
		log.Printf("Failed to get questions for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get questions")
		return
	}
	if questions == nil {
		questions = []quizstream.DBQuestion{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"generation": generation,
		"questions":  questions,
	})
}
