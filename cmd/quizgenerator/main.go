package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quizstream"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := quizstream.LoadConfig()

	var (
		prompt       = flag.String("prompt", "", "What the questions should be about (required)")
		topic        = flag.String("topic", "", "Topic label stored with every question")
		grade        = flag.String("grade", "", "Target grade (X, XI, XII)")
		total        = flag.Int("total", 10, fmt.Sprintf("Number of questions to generate (1-%d)", quizstream.MaxTotal))
		difficulty   = flag.String("difficulty", "random", "Cognitive level (c1-c6) or random")
		questionType = flag.String("type", "random", "Question type (essay, multipleChoice) or random")
		reference    = flag.String("reference", "", "Reference material the questions should follow")
		referencePDF = flag.String("reference-pdf", "", "PDF file to extract reference material from")
		lang         = flag.String("lang", "id", "Question language (id, en)")
		serverURL    = flag.String("server", "", "Generate endpoint URL (default: serve one in-process)")
		outputFile   = flag.String("output", "", "Output file for questions JSON (default: stdout)")
		withDetails  = flag.Bool("details", false, "Generate title, description and answer for every question")
		save         = flag.Bool("save", false, "Save the run to DATABASE_URL")
		verbose      = flag.Bool("verbose", cfg.Verbose, "Enable verbose debugging output")
	)

	flag.Parse()

	quizstream.SetVerbose(*verbose)

	if *prompt == "" {
		log.Fatal("Prompt is required. Use -prompt flag.")
	}

	req := quizstream.GenerationRequest{
		Prompt:     *prompt,
		Topic:      *topic,
		Grade:      quizstream.Grade(*grade),
		Total:      *total,
		Difficulty: quizstream.Difficulty(*difficulty),
		Type:       quizstream.QuestionType(*questionType),
		Reference:  *reference,
		Language:   quizstream.Language(*lang),
	}
	if err := req.Normalize(); err != nil {
		log.Fatalf("Invalid request: %v", err)
	}

	if *referencePDF != "" {
		text, err := quizstream.ExtractPDFText(*referencePDF, quizstream.MaxReferenceChars)
		if err != nil {
			log.Fatalf("Failed to read reference PDF: %v", err)
		}
		req.Reference = strings.TrimSpace(req.Reference + "\n" + text)
		log.Printf("Using reference material: %d characters", len(req.Reference))
	}
	req.Reference = quizstream.TrimReference(req.Reference, quizstream.MaxReferenceChars)

	if err := quizstream.ValidateRequest(req); err != nil {
		log.Fatalf("Invalid request: %v", err)
	}

	// Ctrl-C cancels the run; questions generated so far are still written
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	url := *serverURL
	if url == "" {
		local, shutdown, err := serveLocal(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to start generate endpoint: %v", err)
		}
		defer shutdown()
		url = local
	}

	board, summary, err := generate(ctx, url, cfg.RequestTimeout, req)
	if err != nil {
		log.Fatalf("Failed to generate questions: %v", err)
	}

	if *withDetails && !summary.IsCancelled {
		generateDetails(ctx, url, cfg.RequestTimeout, req, board)
	}

	questions := board.Snapshot()

	if *save {
		if err := saveRun(cfg.DatabaseURL, req, summary, questions); err != nil {
			log.Printf("Failed to save run: %v", err)
		}
	}

	output, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal questions: %v", err)
	}

	if *outputFile != "" {
		err = os.WriteFile(*outputFile, output, 0644)
		if err != nil {
			log.Fatalf("Failed to write output file: %v", err)
		}
		log.Printf("Questions saved to: %s", *outputFile)
	} else {
		fmt.Println(string(output))
	}
}

// serveLocal runs the generate endpoint on a loopback port for the duration of the run
func serveLocal(ctx context.Context, cfg quizstream.Config) (string, func(), error) {
	generator, release, err := cfg.NewGenerator(ctx)
	if err != nil {
		return "", nil, err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		release()
		return "", nil, fmt.Errorf("failed to listen: %w", err)
	}

	srv := &http.Server{Handler: quizstream.NewEndpoint(generator, cfg.LLMLogDir)}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Generate endpoint stopped: %v", err)
		}
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		release()
	}
	return "http://" + ln.Addr().String() + "/generate", shutdown, nil
}

// generate streams the run and reports progress on stderr
func generate(ctx context.Context, url string, timeout time.Duration, req quizstream.GenerationRequest) (*quizstream.QuestionBoard, quizstream.RunSummary, error) {
	orchestrator := quizstream.NewOrchestrator(quizstream.NewStreamClient(url, timeout))
	board := quizstream.NewQuestionBoard(req)

	updates, err := orchestrator.Stream(ctx, req)
	if err != nil {
		return nil, quizstream.RunSummary{}, err
	}

	fmt.Fprintf(os.Stderr, "🎯 Generating %d questions: %s\n", req.Total, req.Prompt)

	var summary quizstream.RunSummary
	for u := range updates {
		switch u.Kind {
		case quizstream.UpdateProgress:
			fmt.Fprintf(os.Stderr, "⏳ %s (%d/%d)\n", u.Progress.Message, u.Progress.TotalCompleted, u.Progress.Total)
		case quizstream.UpdateQuestion:
			board.Apply(*u.Question)
			fmt.Fprintf(os.Stderr, "✅ Question %d: %s\n", u.Question.GlobalIndex+1, u.Question.Question.Prompt)
		case quizstream.UpdateError:
			fmt.Fprintf(os.Stderr, "❌ Chunk %d: %s\n", u.Error.ChunkIndex+1, u.Error.Message)
		case quizstream.UpdateChunkDone:
			quizstream.VerboseLog("Chunk %d done: %d question(s)", u.Chunk.ChunkIndex+1, u.Chunk.Completed)
		case quizstream.UpdateComplete:
			summary = *u.Summary
		}
	}

	removed := board.Sweep()
	if summary.IsCancelled {
		fmt.Fprintf(os.Stderr, "🛑 Cancelled after %d/%d questions\n", summary.Completed, summary.Total)
	} else {
		fmt.Fprintf(os.Stderr, "🎉 Generated %d/%d questions\n", summary.Completed, summary.Total)
	}
	if removed > 0 {
		quizstream.VerboseLog("Removed %d unfilled question(s)", removed)
	}
	return board, summary, nil
}

// generateDetails fills in every question through the single-worker detail queue
func generateDetails(ctx context.Context, url string, timeout time.Duration, req quizstream.GenerationRequest, board *quizstream.QuestionBoard) {
	queue := quizstream.NewDetailQueue(quizstream.NewDetailClient(url, timeout), board.Size())
	defer queue.Close()

	results := make([]<-chan quizstream.DetailResult, 0, board.Size())
	for i := 0; i < board.Size(); i++ {
		q, _ := board.Get(i)
		ch, err := queue.Enqueue(ctx, quizstream.DetailJob{Position: i, Body: quizstream.NewDetailRequest(q, req)})
		if err != nil {
			log.Printf("Failed to queue detail for question %d: %v", i+1, err)
			break
		}
		results = append(results, ch)
	}

	for _, ch := range results {
		var res quizstream.DetailResult
		select {
		case res = <-ch:
		case <-ctx.Done():
			return
		}
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "❌ Detail %d: %v\n", res.Position+1, res.Err)
			continue
		}
		board.ApplyDetail(res.Position, res.Detail)
		fmt.Fprintf(os.Stderr, "📝 Detail %d: %s\n", res.Position+1, res.Detail.Title)
	}
}

func saveRun(dsn string, req quizstream.GenerationRequest, summary quizstream.RunSummary, questions []quizstream.QuestionSkeleton) error {
	db, err := quizstream.OpenDB(dsn)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.CreateTables(ctx); err != nil {
		return err
	}
	id, err := db.SaveRun(ctx, req, summary, questions)
	if err != nil {
		return err
	}
	log.Printf("Run saved as generation %s", id)
	return nil
}
