package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"quizstream"

	"github.com/gorilla/sessions"
)

const sessionName = "studio-session"

type Server struct {
	db           *quizstream.DB
	store        sessions.Store
	endpoint     http.Handler
	orchestrator *quizstream.Orchestrator
	details      *quizstream.DetailQueue
	runs         *runRegistry
}

func NewServer(db *quizstream.DB, store sessions.Store, endpoint http.Handler, orchestrator *quizstream.Orchestrator, details *quizstream.DetailQueue) *Server {
	return &Server{
		db:           db,
		store:        store,
		endpoint:     endpoint,
		orchestrator: orchestrator,
		details:      details,
		runs:         newRunRegistry(),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/generate", s.endpoint)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/studio/", s.handleStudio)
	return mux
}

// Close cancels every active run, waits for them to finish and stops the detail queue
func (s *Server) Close() {
	s.runs.cancelAll()
	s.details.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStudio handles all studio routes
func (s *Server) handleStudio(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/studio/"), "/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] == "runs":
		// /studio/runs - start a run
		s.handleStartRun(w, r)
		return

	case len(parts) == 2 && parts[0] == "runs":
		// /studio/runs/{id|current} - run snapshot
		s.handleGetRun(w, r, parts[1])
		return

	case len(parts) == 3 && parts[0] == "runs" && parts[2] == "cancel":
		// /studio/runs/{id|current}/cancel
		s.handleCancelRun(w, r, parts[1])
		return

	case len(parts) == 5 && parts[0] == "runs" && parts[2] == "questions" && parts[4] == "detail":
		// /studio/runs/{id|current}/questions/{n}/detail - generate the detail of question n
		n, err := strconv.Atoi(parts[3])
		if err != nil || n < 1 {
			http.NotFound(w, r)
			return
		}
		s.handleQuestionDetail(w, r, parts[1], n)
		return

	case len(parts) == 1 && parts[0] == "generations":
		// /studio/generations - saved runs
		s.handleListGenerations(w, r)
		return

	case len(parts) == 2 && parts[0] == "generations":
		// /studio/generations/{id} - saved run with its questions
		s.handleGetGeneration(w, r, parts[1])
		return
	}

	http.NotFound(w, r)
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var body errorBody
	body.Error.Message = msg
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
