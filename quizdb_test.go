package quizstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.CloseDB() })

	require.NoError(t, db.CreateTables(context.Background()))
	return db
}

func TestRebind(t *testing.T) {
	sqlite := &DB{}
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?", sqlite.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	pg := &DB{postgres: true}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
}

func TestCreateTablesIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateTables(context.Background()))
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	req := testRequest(4)
	board := NewQuestionBoard(req)
	board.Apply(found(0, "Q1"))
	board.Apply(found(2, "Q3"))
	board.ApplyDetail(2, QuestionDetail{Title: "Gerak", Description: "desc", Answer: "10 m"})

	id, err := db.SaveRun(ctx, req, RunSummary{Total: 4, Completed: 2}, board.Snapshot())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	g, err := db.GetGeneration(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, req.Prompt, g.Prompt)
	assert.Equal(t, "Kinematika", g.Topic)
	assert.Equal(t, GradeX, g.Grade)
	assert.Equal(t, 4, g.Total)
	assert.Equal(t, 2, g.Completed)
	assert.Equal(t, DifficultyRandom, g.Difficulty)
	assert.Equal(t, LangID, g.Language)
	assert.Equal(t, GenerationCompleted, g.Status)

	questions, err := db.GetQuestions(ctx, id)
	require.NoError(t, err)
	require.Len(t, questions, 2, "loading skeletons are not stored")

	assert.Equal(t, 1, questions[0].Position)
	assert.Equal(t, "Q1", questions[0].Prompt)
	assert.Equal(t, DifficultyC2, questions[0].Difficulty)
	assert.Equal(t, TypeEssay, questions[0].Type)

	assert.Equal(t, 2, questions[1].Position)
	assert.Equal(t, "Q3", questions[1].Prompt)
	assert.Equal(t, "Gerak", questions[1].Title)
	assert.Equal(t, "10 m", questions[1].Answer)
	assert.Equal(t, id, questions[1].GenerationID)
}

func TestSaveRunCancelled(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.SaveRun(ctx, testRequest(10), RunSummary{IsCancelled: true, Total: 10, Completed: 0}, nil)
	require.NoError(t, err)

	g, err := db.GetGeneration(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, GenerationCancelled, g.Status)
	assert.Equal(t, 0, g.Completed)

	questions, err := db.GetQuestions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, questions)
}

func TestGetGenerations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, prompt := range []string{"first", "second", "third"} {
		require.NoError(t, db.CreateGeneration(ctx, &DBGeneration{Prompt: prompt, Total: 1, Difficulty: DifficultyC1, Type: TypeEssay, Language: LangEN}))
	}

	all, err := db.GetGenerations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, g := range all {
		assert.Equal(t, GenerationRunning, g.Status)
	}

	limited, err := db.GetGenerations(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestGenerationNotFound(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.GetGeneration(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = db.UpdateGenerationStatus(ctx, "missing", GenerationCompleted, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
