package quizstream

import (
	"context"
	"errors"
	"log"
	"sync"
)

var ErrQueueClosed = errors.New("detail queue closed")

// DetailJob asks for the detail of the question at Position
type DetailJob struct {
	Position int
	Body     GenerateBody
}

type DetailResult struct {
	Position int
	Detail   QuestionDetail
	Err      error
}

type queuedJob struct {
	DetailJob
	result chan DetailResult
}

// DetailQueue runs detail generations one at a time in FIFO order
type DetailQueue struct {
	fetcher DetailFetcher
	jobs    chan queuedJob
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDetailQueue starts the single worker. size bounds the number of waiting jobs.
func NewDetailQueue(fetcher DetailFetcher, size int) *DetailQueue {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &DetailQueue{
		fetcher: fetcher,
		jobs:    make(chan queuedJob, size),
		ctx:     ctx,
		cancel:  cancel,
	}
	q.wg.Add(1)
	go q.work()
	return q
}

// Enqueue adds a job behind every job already queued. The returned channel receives
// exactly one result. It blocks while the queue is full.
func (q *DetailQueue) Enqueue(ctx context.Context, job DetailJob) (<-chan DetailResult, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	qj := queuedJob{DetailJob: job, result: make(chan DetailResult, 1)}
	select {
	case q.jobs <- qj:
		return qj.result, nil
	case <-q.ctx.Done():
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close cancels the in-flight job, fails waiting jobs and stops the worker
func (q *DetailQueue) Close() {
	q.cancel()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()
	q.drain()
}

func (q *DetailQueue) work() {
	defer q.wg.Done()

	for {
		if q.ctx.Err() != nil {
			q.drain()
			return
		}

		select {
		case <-q.ctx.Done():
			q.drain()
			return
		case job := <-q.jobs:
			VerboseLog("Generating detail for question %d", job.Position)
			detail, err := q.fetcher.GenerateDetail(q.ctx, job.Body)
			if err != nil {
				log.Printf("Detail for question %d failed: %v", job.Position, err)
			}
			job.result <- DetailResult{Position: job.Position, Detail: detail, Err: err}
		}
	}
}

func (q *DetailQueue) drain() {
	for {
		select {
		case job := <-q.jobs:
			job.result <- DetailResult{Position: job.Position, Err: ErrQueueClosed}
		default:
			return
		}
	}
}
