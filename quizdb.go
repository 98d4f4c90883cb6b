package quizstream

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Generation statuses
const (
	GenerationRunning   = "running"
	GenerationCompleted = "completed"
	GenerationCancelled = "cancelled"
)

var ErrNotFound = errors.New("not found")

// DB stores finished generation runs and their questions
type DB struct {
	db       *sql.DB
	postgres bool
}

// DBGeneration is one bulk generation run
type DBGeneration struct {
	ID         string       `json:"id"`
	Prompt     string       `json:"prompt"`
	Topic      string       `json:"topic"`
	Grade      Grade        `json:"grade"`
	Total      int          `json:"total"`
	Completed  int          `json:"completed"`
	Difficulty Difficulty   `json:"difficulty"`
	Type       QuestionType `json:"type"`
	Language   Language     `json:"lang"`
	CreatedAt  time.Time    `json:"created_at"`
	Status     string       `json:"status"`
}

// DBQuestion is one generated question of a run
type DBQuestion struct {
	ID           string       `json:"id"`
	GenerationID string       `json:"generation_id"`
	Position     int          `json:"position"`
	Prompt       string       `json:"prompt"`
	Difficulty   Difficulty   `json:"difficulty"`
	Type         QuestionType `json:"type"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Answer       string       `json:"answer"`
	Topic        string       `json:"topic"`
	Grade        Grade        `json:"grade"`
}

// OpenDB opens SQLite for file paths and PostgreSQL for postgres:// URLs
func OpenDB(dsn string) (*DB, error) {
	driver := "sqlite3"
	postgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
	if postgres {
		driver = "pgx"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if !postgres {
		// every SQLite connection to :memory: would see its own database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db, postgres: postgres}, nil
}

// CloseDB closes the database connection
func (db *DB) CloseDB() error {
	return db.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (db *DB) rebind(query string) string {
	if !db.postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS generations (
			id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			grade TEXT NOT NULL DEFAULT '',
			total INTEGER NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			difficulty TEXT NOT NULL,
			type TEXT NOT NULL,
			lang TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			status TEXT NOT NULL DEFAULT 'running'
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			generation_id TEXT NOT NULL REFERENCES generations(id),
			position INTEGER NOT NULL,
			prompt TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			answer TEXT NOT NULL DEFAULT '',
			topic TEXT NOT NULL DEFAULT '',
			grade TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, query := range queries {
		if _, err := db.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// CreateGeneration records the start of a run; an empty ID is filled in
func (db *DB) CreateGeneration(ctx context.Context, g *DBGeneration) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	if g.Status == "" {
		g.Status = GenerationRunning
	}

	_, err := db.db.ExecContext(ctx, db.rebind(
		"INSERT INTO generations (id, prompt, topic, grade, total, completed, difficulty, type, lang, created_at, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		g.ID, g.Prompt, g.Topic, string(g.Grade), g.Total, g.Completed, string(g.Difficulty), string(g.Type), string(g.Language), g.CreatedAt, g.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create generation: %w", err)
	}
	return nil
}

// UpdateGenerationStatus records the outcome of a run
func (db *DB) UpdateGenerationStatus(ctx context.Context, id, status string, completed int) error {
	res, err := db.db.ExecContext(ctx, db.rebind("UPDATE generations SET status = ?, completed = ? WHERE id = ?"), status, completed, id)
	if err != nil {
		return fmt.Errorf("failed to update generation status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("generation %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveQuestions stores the populated questions of a run in list order. Loading
// skeletons are skipped.
func (db *DB) SaveQuestions(ctx context.Context, generationID string, questions []QuestionSkeleton) (int, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := db.rebind("INSERT INTO questions (id, generation_id, position, prompt, difficulty, type, title, description, answer, topic, grade) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")

	saved := 0
	for _, q := range questions {
		if q.IsLoading {
			continue
		}
		saved++
		_, err := tx.ExecContext(ctx, query,
			uuid.NewString(), generationID, saved, q.Prompt, string(q.Difficulty), string(q.Type),
			q.Title, q.Description, q.Answer, q.Topic, string(q.Grade),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save question %d: %w", saved, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit questions: %w", err)
	}
	return saved, nil
}

const generationColumns = "id, prompt, topic, grade, total, completed, difficulty, type, lang, created_at, status"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (DBGeneration, error) {
	var g DBGeneration
	var grade, difficulty, qtype, lang string
	err := row.Scan(&g.ID, &g.Prompt, &g.Topic, &grade, &g.Total, &g.Completed, &difficulty, &qtype, &lang, &g.CreatedAt, &g.Status)
	g.Grade = Grade(grade)
	g.Difficulty = Difficulty(difficulty)
	g.Type = QuestionType(qtype)
	g.Language = Language(lang)
	return g, err
}

// GetGeneration retrieves a run by ID
func (db *DB) GetGeneration(ctx context.Context, id string) (*DBGeneration, error) {
	row := db.db.QueryRowContext(ctx, db.rebind("SELECT "+generationColumns+" FROM generations WHERE id = ?"), id)
	g, err := scanGeneration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("generation %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}
	return &g, nil
}

// GetGenerations retrieves runs, newest first, optionally limited by count
func (db *DB) GetGenerations(ctx context.Context, limit int) ([]DBGeneration, error) {
	query := "SELECT " + generationColumns + " FROM generations ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get generations: %w", err)
	}
	defer rows.Close()

	var generations []DBGeneration
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		generations = append(generations, g)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generations: %w", err)
	}
	return generations, nil
}

// GetQuestions retrieves all questions of a run in position order
func (db *DB) GetQuestions(ctx context.Context, generationID string) ([]DBQuestion, error) {
	rows, err := db.db.QueryContext(ctx, db.rebind(
		"SELECT id, generation_id, position, prompt, difficulty, type, title, description, answer, topic, grade FROM questions WHERE generation_id = ? ORDER BY position"),
		generationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	var questions []DBQuestion
	for rows.Next() {
		var q DBQuestion
		var difficulty, qtype, grade string
		err := rows.Scan(&q.ID, &q.GenerationID, &q.Position, &q.Prompt, &difficulty, &qtype, &q.Title, &q.Description, &q.Answer, &q.Topic, &grade)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.Difficulty = Difficulty(difficulty)
		q.Type = QuestionType(qtype)
		q.Grade = Grade(grade)
		questions = append(questions, q)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return questions, nil
}

// SaveRun stores a finished run and its swept question list in one call
func (db *DB) SaveRun(ctx context.Context, req GenerationRequest, summary RunSummary, questions []QuestionSkeleton) (string, error) {
	g := &DBGeneration{
		Prompt:     req.Prompt,
		Topic:      req.Topic,
		Grade:      req.Grade,
		Total:      req.Total,
		Difficulty: req.Difficulty,
		Type:       req.Type,
		Language:   req.Language,
	}
	if err := db.CreateGeneration(ctx, g); err != nil {
		return "", err
	}

	saved, err := db.SaveQuestions(ctx, g.ID, questions)
	if err != nil {
		return "", err
	}

	status := GenerationCompleted
	if summary.IsCancelled {
		status = GenerationCancelled
	}
	if err := db.UpdateGenerationStatus(ctx, g.ID, status, saved); err != nil {
		return "", err
	}
	return g.ID, nil
}
