package concurrency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsociety/runtime/pkg/apperr"
)

func TestExecuteRequest_MissingAgentID(t *testing.T) {
	c := New(2)
	_, err := c.ExecuteRequest(context.Background(), "", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	assert.True(t, apperr.Is(err, apperr.RejectedMissingAgentID))
}

func TestExecuteRequest_ImmediateUnderCap(t *testing.T) {
	c := New(2)
	val, err := c.ExecuteRequest(context.Background(), "a1", func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 0, c.Stats().ActiveCount)
	assert.EqualValues(t, 1, c.Stats().CompletedRequests)
}

func TestExecuteRequest_RejectsSecondConcurrentForSameAgent(t *testing.T) {
	c := New(2)
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		c.ExecuteRequest(context.Background(), "a1", func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()

	<-started
	_, err := c.ExecuteRequest(context.Background(), "a1", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	assert.True(t, apperr.Is(err, apperr.AgentAlreadyActive))

	close(release)
}

// TestExecuteRequest_GlobalCapQueuesOverflow verifies requests beyond
// maxConcurrentRequests queue FIFO and are admitted as capacity frees.
func TestExecuteRequest_GlobalCapQueuesOverflow(t *testing.T) {
	c := New(1)

	release1 := make(chan struct{})
	var order []string
	var mu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.ExecuteRequest(context.Background(), "a1", func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, "a1")
			mu.Unlock()
			<-release1
			return nil, nil
		})
	}()

	require.Eventually(t, func() bool { return c.Stats().ActiveCount == 1 }, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.ExecuteRequest(context.Background(), "a2", func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, "a2")
			mu.Unlock()
			return nil, nil
		})
	}()

	require.Eventually(t, func() bool { return c.QueueLength() == 1 }, time.Second, 5*time.Millisecond)

	close(release1)
	wg.Wait()

	assert.Equal(t, []string{"a1", "a2"}, order)
}

func TestCancelRequest_ActiveAborted(t *testing.T) {
	c := New(1)
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	go func() {
		defer wg.Done()
		_, gotErr = c.ExecuteRequest(context.Background(), "a1", func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, apperr.New(apperr.RequestAborted)
		})
	}()

	<-started
	ok := c.CancelRequest("a1")
	assert.True(t, ok)
	wg.Wait()
	assert.True(t, apperr.Is(gotErr, apperr.RequestAborted))
}

func TestCancelRequest_QueuedRejectedWithCancelled(t *testing.T) {
	c := New(1)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		c.ExecuteRequest(context.Background(), "a1", func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	go func() {
		defer wg.Done()
		_, gotErr = c.ExecuteRequest(context.Background(), "a2", func(ctx context.Context) (any, error) {
			return nil, nil
		})
	}()

	require.Eventually(t, func() bool { return c.QueueLength() == 1 }, time.Second, 5*time.Millisecond)

	ok := c.CancelRequest("a2")
	assert.True(t, ok)
	wg.Wait()
	assert.True(t, apperr.Is(gotErr, apperr.RequestCancelled))

	close(release)
}

func TestCancelRequest_NothingToCancel(t *testing.T) {
	c := New(2)
	assert.False(t, c.CancelRequest("ghost"))
}

func TestUpdateMaxConcurrentRequests_Invalid(t *testing.T) {
	c := New(2)
	err := c.UpdateMaxConcurrentRequests(0)
	assert.True(t, apperr.Is(err, apperr.InvalidArgs))
}

// TestUpdateMaxConcurrentRequests_DrainsOnIncrease checks that raising the
// cap admits queued work without requiring the active request to finish.
func TestUpdateMaxConcurrentRequests_DrainsOnIncrease(t *testing.T) {
	c := New(1)
	release := make(chan struct{})
	started1 := make(chan struct{})

	go func() {
		c.ExecuteRequest(context.Background(), "a1", func(ctx context.Context) (any, error) {
			close(started1)
			<-release
			return nil, nil
		})
	}()
	<-started1

	started2 := make(chan struct{})
	go func() {
		c.ExecuteRequest(context.Background(), "a2", func(ctx context.Context) (any, error) {
			close(started2)
			return nil, nil
		})
	}()
	require.Eventually(t, func() bool { return c.QueueLength() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.UpdateMaxConcurrentRequests(2))

	select {
	case <-started2:
	case <-time.After(time.Second):
		t.Fatal("queued request was not drained after cap increase")
	}

	close(release)
}

func TestStats_Snapshot(t *testing.T) {
	c := New(2)
	_, _ = c.ExecuteRequest(context.Background(), "a1", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	_, _ = c.ExecuteRequest(context.Background(), "a1", func(ctx context.Context) (any, error) {
		return nil, nil
	})

	stats := c.Stats()
	assert.EqualValues(t, 2, stats.TotalRequests)
	assert.EqualValues(t, 2, stats.CompletedRequests)
	assert.Equal(t, 0, stats.ActiveCount)
}
