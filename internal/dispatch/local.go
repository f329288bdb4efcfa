package dispatch

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"line-relay/internal/domain"
)

const (
	defaultWorkers = 4
	defaultBacklog = 64
)

// HandleFunc processes one dequeued turn. Errors are the handler's to log.
type HandleFunc func(ctx context.Context, turn domain.InboundTurn)

type localJob struct {
	id   string
	turn domain.InboundTurn
}

// LocalQueue is an in-process worker pool. A user's turns always land on the
// same worker, so they run one at a time and in arrival order.
type LocalQueue struct {
	handle HandleFunc
	log    *zap.Logger
	jobs   []chan localJob

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLocalQueue(handle HandleFunc, workers, backlog int, log *zap.Logger) (*LocalQueue, error) {
	if handle == nil {
		return nil, errors.New("dispatch: handle func must not be nil")
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &LocalQueue{
		handle: handle,
		log:    log,
		jobs:   make([]chan localJob, workers),
		ctx:    ctx,
		cancel: cancel,
	}
	perWorker := (backlog + workers - 1) / workers
	for i := range q.jobs {
		q.jobs[i] = make(chan localJob, perWorker)
		q.wg.Add(1)
		go q.run(i, q.jobs[i])
	}
	return q, nil
}

func (q *LocalQueue) run(worker int, jobs <-chan localJob) {
	defer q.wg.Done()
	for job := range jobs {
		q.log.Debug("turn dequeued",
			zap.Int("worker", worker),
			zap.String("taskId", job.id),
			zap.String("userId", job.turn.UserID),
		)
		q.handle(q.ctx, job.turn)
	}
}

// Dispatch never blocks: a full worker backlog yields ErrQueueFull.
func (q *LocalQueue) Dispatch(_ context.Context, turn domain.InboundTurn) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.jobs[q.shard(turn.UserID)] <- localJob{id: uuid.NewString(), turn: turn}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *LocalQueue) shard(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(q.jobs)))
}

// Close stops intake and waits for queued turns to finish. When ctx ends
// first, in-flight turns see their context canceled and ctx.Err is returned.
func (q *LocalQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, ch := range q.jobs {
			close(ch)
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
