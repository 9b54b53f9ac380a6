// Package bus implements a per-recipient FIFO message bus with delayed
// delivery, cross-task isolation, and best-effort delivery hooks.
package bus

import (
	"container/heap"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentsociety/runtime/pkg/apperr"
)

// TickInterval is the maximum period of the background delayed-delivery
// sweep.
const TickInterval = 50 * time.Millisecond

// Bus holds per-recipient FIFO queues and a delayed-delivery set.
type Bus struct {
	mu       sync.Mutex
	queues   map[string][]*Message
	delayed  delayedHeap
	policy   IsolationPolicy
	seq      uint64
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	onDelayed []DelayedCallback
	onAll     []MessageCallback
	onUser    []UserCallback
}

// New creates a Bus and starts its background delayed-delivery tick.
func New(policy IsolationPolicy) *Bus {
	b := &Bus{
		queues: make(map[string][]*Message),
		policy: policy,
		stopCh: make(chan struct{}),
	}
	heap.Init(&b.delayed)
	b.wg.Add(1)
	go b.tickLoop()
	return b
}

// OnDelayedDelivery registers a callback fired when a delayed message moves
// into its recipient's queue.
func (b *Bus) OnDelayedDelivery(cb DelayedCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDelayed = append(b.onDelayed, cb)
}

// OnAllMessages registers a callback fired for every accepted send.
func (b *Bus) OnAllMessages(cb MessageCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onAll = append(b.onAll, cb)
}

// OnUserMessage registers a callback fired when a system agent (root or
// user) is a party to an accepted send.
func (b *Bus) OnUserMessage(cb UserCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onUser = append(b.onUser, cb)
}

// Send accepts a message for delivery, enforcing cross-task isolation.
func (b *Bus) Send(in SendInput) (*SendResult, error) {
	if in.To == "" {
		return nil, apperr.New(apperr.MissingTo)
	}
	if in.From == "" {
		return nil, apperr.New(apperr.MissingFrom)
	}
	if err := b.checkIsolation(in.From, in.To, in.TaskID); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.seq++
	msg := &Message{
		ID:               uuid.NewString(),
		From:             in.From,
		To:               in.To,
		TaskID:           in.TaskID,
		Payload:          in.Payload,
		CreatedAt:        time.Now(),
		ReasoningContent: in.ReasoningContent,
		seq:              b.seq,
	}

	var result SendResult
	result.MessageID = msg.ID

	if in.DelayMs > 0 {
		t := msg.CreatedAt.Add(time.Duration(in.DelayMs) * time.Millisecond)
		msg.ScheduledDeliveryTime = &t
		result.ScheduledDeliveryTime = &t
		heap.Push(&b.delayed, msg)
	} else {
		b.queues[msg.To] = append(b.queues[msg.To], msg)
	}
	onAll := append([]MessageCallback(nil), b.onAll...)
	onUser := append([]UserCallback(nil), b.onUser...)
	b.mu.Unlock()

	slog.Debug("bus: message accepted", "messageId", msg.ID, "from", msg.From, "to", msg.To, "taskId", msg.TaskID, "delayed", in.DelayMs > 0)

	b.fireAll(onAll, msg)
	if b.policy.IsSystemAgent(msg.From) || b.policy.IsSystemAgent(msg.To) {
		b.fireUser(onUser, msg)
	}

	return &result, nil
}

// checkIsolation enforces the cross-task communication rule: a non-system
// send is allowed iff the sender is the task's entry agent, or the
// recipient is the entry agent itself or one of its descendants.
func (b *Bus) checkIsolation(from, to, taskID string) error {
	if b.policy.IsSystemAgent(from) || b.policy.IsSystemAgent(to) {
		return nil
	}
	entry, ok := b.policy.EntryAgentOf(taskID)
	if !ok {
		// No entry agent recorded yet for this task (e.g. the very first
		// message establishing it) — nothing to isolate against.
		return nil
	}
	if from == entry {
		return nil
	}
	if b.policy.IsSelfOrDescendant(to, entry) {
		return nil
	}
	return apperr.Newf(apperr.CrossTaskCommunicationDenied, "from=%s to=%s taskId=%s", from, to, taskID)
}

// ReceiveNext pops the head of agentID's FIFO queue, or returns false if empty.
func (b *Bus) ReceiveNext(agentID string) (*Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[agentID]
	if len(q) == 0 {
		return nil, false
	}
	msg := q[0]
	b.queues[agentID] = q[1:]
	now := time.Now()
	msg.DeliveredAt = &now
	return msg, true
}

// Peek returns the head of agentID's FIFO queue without removing it.
func (b *Bus) Peek(agentID string) (*Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[agentID]
	if len(q) == 0 {
		return nil, false
	}
	return q[0], true
}

// GetPendingCount returns the number of messages queued across all
// recipients (delayed messages not yet due are not counted).
func (b *Bus) GetPendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.queues {
		n += len(q)
	}
	return n
}

// PendingDelayedCount returns the number of messages still waiting in the
// delayed set.
func (b *Bus) PendingDelayedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delayed.Len()
}

// ClearQueue empties agentID's FIFO queue.
func (b *Bus) ClearQueue(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, agentID)
}

func (b *Bus) tickLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.deliverDue(time.Now())
		}
	}
}

// deliverDue moves every delayed message whose ScheduledDeliveryTime has
// elapsed into its recipient's FIFO queue. The messages that fall due in one
// sweep are enqueued in original send order, not in scheduled-time order.
func (b *Bus) deliverDue(now time.Time) {
	var delivered []*Message

	b.mu.Lock()
	for b.delayed.Len() > 0 {
		next := b.delayed[0]
		if next.ScheduledDeliveryTime.After(now) {
			break
		}
		delivered = append(delivered, heap.Pop(&b.delayed).(*Message))
	}
	sort.Slice(delivered, func(i, j int) bool { return delivered[i].seq < delivered[j].seq })
	for _, msg := range delivered {
		b.queues[msg.To] = append(b.queues[msg.To], msg)
	}
	onDelayed := append([]DelayedCallback(nil), b.onDelayed...)
	b.mu.Unlock()

	for _, msg := range delivered {
		slog.Debug("bus: delayed message delivered", "messageId", msg.ID, "to", msg.To)
		for _, cb := range onDelayed {
			cb(msg)
		}
	}
}

// Shutdown stops the background tick and flushes every remaining delayed
// message immediately, in original send order.
func (b *Bus) Shutdown(ctx context.Context) {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.wg.Wait()
	b.deliverDue(maxTime())
}

func maxTime() time.Time {
	return time.Now().Add(100 * 365 * 24 * time.Hour)
}

func (b *Bus) fireAll(cbs []MessageCallback, msg *Message) {
	for _, cb := range cbs {
		cb(msg)
	}
}

func (b *Bus) fireUser(cbs []UserCallback, msg *Message) {
	for _, cb := range cbs {
		cb(msg)
	}
}

// delayedHeap orders pending delayed messages by ScheduledDeliveryTime, then
// by original send sequence to keep ties in send order.
type delayedHeap []*Message

func (h delayedHeap) Len() int { return len(h) }
func (h delayedHeap) Less(i, j int) bool {
	ti, tj := h[i].ScheduledDeliveryTime, h[j].ScheduledDeliveryTime
	if ti.Equal(*tj) {
		return h[i].seq < h[j].seq
	}
	return ti.Before(*tj)
}
func (h delayedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *delayedHeap) Push(x any)   { *h = append(*h, x.(*Message)) }
func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
