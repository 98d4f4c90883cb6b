package quizstream

import "sync"

// QuestionBoard holds the visible question list of one run. Mutations come from the
// run's callbacks; snapshots may be taken from other goroutines.
type QuestionBoard struct {
	mu    sync.RWMutex
	items []QuestionSkeleton
}

// NewQuestionBoard creates a board pre-filled with one skeleton per requested question
func NewQuestionBoard(req GenerationRequest) *QuestionBoard {
	return &QuestionBoard{items: NewSkeletons(req)}
}

// Apply reconciles a found question into the board
func (qb *QuestionBoard) Apply(found QuestionFound) bool {
	qb.mu.Lock()
	defer qb.mu.Unlock()

	var changed bool
	qb.items, changed = Reconcile(qb.items, found)
	return changed
}

// ApplyDetail fills title, description and answer of the question at position i
func (qb *QuestionBoard) ApplyDetail(i int, detail QuestionDetail) bool {
	qb.mu.Lock()
	defer qb.mu.Unlock()

	var changed bool
	qb.items, changed = ApplyDetail(qb.items, i, detail)
	return changed
}

// Sweep removes all loading skeletons and returns how many were removed
func (qb *QuestionBoard) Sweep() int {
	qb.mu.Lock()
	defer qb.mu.Unlock()

	before := len(qb.items)
	qb.items = SweepLoading(qb.items)
	return before - len(qb.items)
}

// Get returns the question at position i
func (qb *QuestionBoard) Get(i int) (QuestionSkeleton, bool) {
	qb.mu.RLock()
	defer qb.mu.RUnlock()

	if i < 0 || i >= len(qb.items) {
		return QuestionSkeleton{}, false
	}
	return qb.items[i], true
}

// Size returns the number of entries on the board
func (qb *QuestionBoard) Size() int {
	qb.mu.RLock()
	defer qb.mu.RUnlock()
	return len(qb.items)
}

// Loading returns how many entries are still placeholders
func (qb *QuestionBoard) Loading() int {
	qb.mu.RLock()
	defer qb.mu.RUnlock()

	n := 0
	for _, q := range qb.items {
		if q.IsLoading {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the current list
func (qb *QuestionBoard) Snapshot() []QuestionSkeleton {
	qb.mu.RLock()
	defer qb.mu.RUnlock()

	out := make([]QuestionSkeleton, len(qb.items))
	copy(out, qb.items)
	return out
}
