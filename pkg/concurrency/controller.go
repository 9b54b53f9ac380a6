// Package concurrency caps concurrent LLM requests globally and enforces at
// most one active request per agent, with FIFO admission for requests that
// arrive over capacity.
package concurrency

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/agentsociety/runtime/pkg/apperr"
)

// Controller admits LLM requests under a global concurrency cap.
//
// A plain counter guarded by mu is used instead of golang.org/x/sync/semaphore
// here: admission needs non-blocking try-or-queue semantics plus a capacity
// that can change at runtime (UpdateMaxConcurrentRequests), neither of which
// x/sync/semaphore.Weighted's blocking Acquire/fixed-size model supports
// without unsafe Release bookkeeping.
type Controller struct {
	mu     sync.Mutex
	max    int
	active map[string]context.CancelFunc // agentId -> abort handle
	queue  []*pendingRequest

	totalRequests     int64
	completedRequests int64
	rejectedRequests  int64
}

// New creates a Controller with the given global concurrency cap.
func New(maxConcurrentRequests int) *Controller {
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = 1
	}
	return &Controller{
		max:    maxConcurrentRequests,
		active: make(map[string]context.CancelFunc),
	}
}

// ExecuteRequest admits fn for agentID, running it immediately if capacity
// allows, queueing it FIFO otherwise, or rejecting it if agentID already has
// an active request.
func (c *Controller) ExecuteRequest(ctx context.Context, agentID string, fn RequestFunc) (any, error) {
	if agentID == "" {
		return nil, apperr.New(apperr.RejectedMissingAgentID)
	}

	atomic.AddInt64(&c.totalRequests, 1)

	c.mu.Lock()
	if _, busy := c.active[agentID]; busy {
		c.mu.Unlock()
		atomic.AddInt64(&c.rejectedRequests, 1)
		return nil, apperr.New(apperr.AgentAlreadyActive)
	}

	if len(c.active) < c.max {
		reqCtx, cancel := context.WithCancel(ctx)
		c.active[agentID] = cancel
		c.mu.Unlock()
		return c.run(reqCtx, agentID, fn)
	}

	p := &pendingRequest{agentID: agentID, fn: fn, resultCh: make(chan outcome, 1)}
	c.queue = append(c.queue, p)
	c.mu.Unlock()

	slog.Debug("concurrency: request queued", "agentId", agentID, "queueLength", c.QueueLength())

	select {
	case out := <-p.resultCh:
		return out.val, out.err
	case <-ctx.Done():
		c.removeFromQueue(p)
		return nil, apperr.Wrap(apperr.RequestCancelled, ctx.Err(), "context cancelled while queued")
	}
}

func (c *Controller) run(ctx context.Context, agentID string, fn RequestFunc) (any, error) {
	val, err := fn(ctx)

	c.mu.Lock()
	delete(c.active, agentID)
	c.mu.Unlock()
	atomic.AddInt64(&c.completedRequests, 1)

	c.drainOne()
	return val, err
}

// drainOne admits the next queued request, if capacity allows.
func (c *Controller) drainOne() {
	c.mu.Lock()
	if len(c.queue) == 0 || len(c.active) >= c.max {
		c.mu.Unlock()
		return
	}
	p := c.queue[0]
	c.queue = c.queue[1:]

	reqCtx, cancel := context.WithCancel(context.Background())
	c.active[p.agentID] = cancel
	c.mu.Unlock()

	go func() {
		val, err := c.run(reqCtx, p.agentID, p.fn)
		p.resultCh <- outcome{val: val, err: err}
	}()
}

// CancelRequest aborts agentID's active request (if any) or removes it from
// the queue. Returns true iff something was cancelled.
func (c *Controller) CancelRequest(agentID string) bool {
	c.mu.Lock()
	if cancel, ok := c.active[agentID]; ok {
		cancel()
		c.mu.Unlock()
		return true
	}
	for i, p := range c.queue {
		if p.agentID == agentID {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			c.mu.Unlock()
			p.resultCh <- outcome{err: apperr.New(apperr.RequestCancelled)}
			atomic.AddInt64(&c.rejectedRequests, 1)
			return true
		}
	}
	c.mu.Unlock()
	return false
}

// UpdateMaxConcurrentRequests changes the global cap, then drains queued
// requests if the cap increased.
func (c *Controller) UpdateMaxConcurrentRequests(n int) error {
	if n <= 0 {
		return apperr.New(apperr.InvalidArgs)
	}
	c.mu.Lock()
	grew := n > c.max
	c.max = n
	c.mu.Unlock()

	if grew {
		for {
			c.mu.Lock()
			canDrain := len(c.queue) > 0 && len(c.active) < c.max
			c.mu.Unlock()
			if !canDrain {
				break
			}
			c.drainOne()
		}
	}
	return nil
}

func (c *Controller) removeFromQueue(p *pendingRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, q := range c.queue {
		if q == p {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}

// QueueLength returns the current number of queued (not yet admitted)
// requests.
func (c *Controller) QueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Stats returns a snapshot of controller counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	activeCount := len(c.active)
	queueLength := len(c.queue)
	c.mu.Unlock()
	return Stats{
		ActiveCount:       activeCount,
		QueueLength:       queueLength,
		TotalRequests:     atomic.LoadInt64(&c.totalRequests),
		CompletedRequests: atomic.LoadInt64(&c.completedRequests),
		RejectedRequests:  atomic.LoadInt64(&c.rejectedRequests),
	}
}
