package tool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentsociety/runtime/pkg/apperr"
)

// allowedHTTPMethods is the method allow-list for the http_request tool.
var allowedHTTPMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

const (
	defaultHTTPRequestTimeout  = 30 * time.Second
	defaultHTTPRequestBodyCap  = 10 * 1024
)

// httpRequestTimeout and httpRequestBodyLogLimit are configurable by the
// embedding process through ConfigureHTTPRequestTool; they default to the
// values above and are read by httpRequestHandler at call time so a single
// process-wide override takes effect without recreating the tool registry.
var (
	httpRequestTimeout      = defaultHTTPRequestTimeout
	httpRequestBodyLogLimit = defaultHTTPRequestBodyCap
)

// ConfigureHTTPRequestTool overrides the http_request tool's timeout and
// response/request body log truncation cap. Call once during startup.
func ConfigureHTTPRequestTool(timeout time.Duration, bodyLogLimit int) {
	if timeout > 0 {
		httpRequestTimeout = timeout
	}
	if bodyLogLimit > 0 {
		httpRequestBodyLogLimit = bodyLogLimit
	}
}

var httpRequestClient = &http.Client{}

// httpRequestHandler makes an outbound HTTPS request on behalf of an agent.
// Only https:// URLs and an allow-listed set of methods are permitted;
// request/response bodies are logged truncated, never in full.
func httpRequestHandler(ctx context.Context, call Call) (any, error) {
	var args HTTPRequestArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return nil, err
	}

	method := strings.ToUpper(args.Method)
	if !allowedHTTPMethods[method] {
		return nil, apperr.Newf(apperr.InvalidMethod, "method=%s", args.Method)
	}

	parsed, err := url.Parse(args.URL)
	if err != nil || parsed.Scheme != "https" {
		return nil, apperr.New(apperr.OnlyHTTPSAllowed)
	}

	requestID := uuid.NewString()
	reqCtx, cancel := context.WithTimeout(ctx, httpRequestTimeout)
	defer cancel()

	var bodyReader io.Reader
	if args.Body != "" {
		bodyReader = strings.NewReader(args.Body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, method, args.URL, bodyReader)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgs, err, "http_request")
	}

	slog.Debug("tool: http_request", "requestId", requestID, "agentId", call.AgentID, "method", method, "url", args.URL, "body", truncateLog(args.Body))

	start := time.Now()
	resp, err := httpRequestClient.Do(httpReq)
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, apperr.Wrap(apperr.RequestTimeout, err, "http_request")
		}
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	slog.Info("tool: http_request response", "requestId", requestID, "agentId", call.AgentID, "url", args.URL, "method", method, "status", resp.StatusCode, "latencyMs", latencyMs, "body", truncateLog(string(respBody)))

	return map[string]any{
		"status": resp.StatusCode,
		"body":   string(respBody),
	}, nil
}

func truncateLog(s string) string {
	if len(s) <= httpRequestBodyLogLimit {
		return s
	}
	return s[:httpRequestBodyLogLimit] + "...(truncated)"
}
