package concurrency

import (
	"context"
	"time"
)

// RequestFunc is the unit of work admitted by the controller. It must
// observe ctx cancellation (signalled by CancelRequest) and
// return request_aborted-compatible behavior when it does.
type RequestFunc func(ctx context.Context) (any, error)

// Stats is a point-in-time snapshot of controller counters.
type Stats struct {
	ActiveCount       int
	QueueLength       int
	TotalRequests     int64
	CompletedRequests int64
	RejectedRequests  int64
}

type pendingRequest struct {
	agentID   string
	fn        RequestFunc
	resultCh  chan outcome
	timestamp time.Time
}

type outcome struct {
	val any
	err error
}
