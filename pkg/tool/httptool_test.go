package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentsociety/runtime/pkg/apperr"
)

func TestHTTPRequest_RejectsNonHTTPS(t *testing.T) {
	_, err := httpRequestHandler(context.Background(), Call{Args: map[string]any{
		"url": "http://example.com", "method": "GET",
	}})
	assert.True(t, apperr.Is(err, apperr.OnlyHTTPSAllowed))
}

func TestHTTPRequest_RejectsDisallowedMethod(t *testing.T) {
	_, err := httpRequestHandler(context.Background(), Call{Args: map[string]any{
		"url": "https://example.com", "method": "TRACE",
	}})
	assert.True(t, apperr.Is(err, apperr.InvalidMethod))
}

func TestTruncateLog(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, truncateLog(short))

	long := make([]byte, httpRequestBodyLogLimit+10)
	for i := range long {
		long[i] = 'x'
	}
	truncated := truncateLog(string(long))
	assert.Contains(t, truncated, "...(truncated)")
	assert.Less(t, len(truncated), len(long)+20)
}
