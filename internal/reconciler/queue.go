package reconciler

import (
	"context"
	"sync"
	"time"
)

// workQueue holds at most one pending request per domain and hands a domain
// to at most one worker at a time. A request added while its domain is being
// processed is parked and re-queued when the running pass calls Done.
type workQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	order      []Domain
	pending    map[Domain]ReconcileRequest
	processing map[Domain]bool
	dirty      map[Domain]ReconcileRequest
	timers     map[Domain]*time.Timer

	shuttingDown bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{
		pending:    make(map[Domain]ReconcileRequest),
		processing: make(map[Domain]bool),
		dirty:      make(map[Domain]ReconcileRequest),
		timers:     make(map[Domain]*time.Timer),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add queues req, replacing any request already pending for its domain.
func (q *workQueue) Add(req ReconcileRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.addLocked(req)
}

func (q *workQueue) addLocked(req ReconcileRequest) {
	if q.shuttingDown {
		return
	}
	if q.processing[req.Domain] {
		q.dirty[req.Domain] = req
		return
	}
	if _, queued := q.pending[req.Domain]; !queued {
		q.order = append(q.order, req.Domain)
	}
	q.pending[req.Domain] = req
	q.cond.Signal()
}

// AddAfter queues req once delay has passed. A later AddAfter for the same
// domain replaces the earlier one.
func (q *workQueue) AddAfter(req ReconcileRequest, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shuttingDown {
		return
	}
	if t, ok := q.timers[req.Domain]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		// A replaced timer may fire before Stop takes effect.
		if q.timers[req.Domain] != t {
			return
		}
		delete(q.timers, req.Domain)
		q.addLocked(req)
	})
	q.timers[req.Domain] = t
}

// Get blocks until a request is available, the queue shuts down, or ctx ends.
func (q *workQueue) Get(ctx context.Context) (ReconcileRequest, bool) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.order) == 0 && !q.shuttingDown && ctx.Err() == nil {
		q.cond.Wait()
	}
	if ctx.Err() != nil || len(q.order) == 0 {
		return ReconcileRequest{}, false
	}

	domain := q.order[0]
	q.order = q.order[1:]
	req := q.pending[domain]
	delete(q.pending, domain)
	q.processing[domain] = true
	return req, true
}

// Done releases the domain of req and re-queues a request parked meanwhile.
func (q *workQueue) Done(req ReconcileRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, req.Domain)
	if next, ok := q.dirty[req.Domain]; ok {
		delete(q.dirty, req.Domain)
		q.addLocked(next)
	}
}

// Len returns the number of pending requests.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Shutdown stops accepting requests, cancels delayed ones and wakes all waiters.
func (q *workQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuttingDown = true
	for d, t := range q.timers {
		t.Stop()
		delete(q.timers, d)
	}
	q.cond.Broadcast()
}
