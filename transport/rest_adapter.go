package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-consent/core"
	goerrors "github.com/goliatone/go-errors"
)

const defaultResponseBodyLimit int64 = 10 << 20

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Call is one request against a named permission access endpoint. Body is
// sent as JSON when non-nil.
type Call struct {
	Method   string
	Endpoint string
	Values   map[string]string
	Body     any
	Timeout  time.Duration
}

// RESTAdapter executes Calls against the API base URL. Error metadata names
// the endpoint and never the expanded URL, whose path carries the session key.
type RESTAdapter struct {
	client    HTTPDoer
	baseURL   string
	endpoints *EndpointRegistry
	limit     int64
}

func NewRESTAdapter(client HTTPDoer, baseURL string, endpoints *EndpointRegistry, limit int64) *RESTAdapter {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = core.DefaultAPIBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if endpoints == nil {
		endpoints = NewDefaultEndpointRegistry()
	}
	if limit <= 0 {
		limit = defaultResponseBodyLimit
	}
	return &RESTAdapter{client: client, baseURL: base, endpoints: endpoints, limit: limit}
}

// Invoke sends call and decodes a 2xx body into out. Other statuses become
// server errors built from the structured error body.
func (a *RESTAdapter) Invoke(ctx context.Context, call Call, out any) error {
	if a == nil || a.client == nil {
		return transportError("transport: rest adapter requires an http client",
			goerrors.CategoryInternal, http.StatusInternalServerError, map[string]any{"endpoint": call.Endpoint})
	}
	if ctx == nil {
		ctx = context.Background()
	}
	meta := map[string]any{"endpoint": call.Endpoint}

	path, err := a.endpoints.Expand(call.Endpoint, call.Values)
	if err != nil {
		return transportWrapError(err, goerrors.CategoryBadInput, "transport: expand endpoint", http.StatusBadRequest, meta)
	}
	method := strings.ToUpper(strings.TrimSpace(call.Method))
	if method == "" {
		method = http.MethodGet
	}
	meta["method"] = method

	var body io.Reader = http.NoBody
	if call.Body != nil {
		payload, err := json.Marshal(call.Body)
		if err != nil {
			return transportWrapError(err, goerrors.CategoryBadInput, "transport: encode request body", http.StatusBadRequest, meta)
		}
		body = bytes.NewReader(payload)
	}

	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return transportWrapError(err, goerrors.CategoryBadInput, "transport: create http request", http.StatusBadRequest, meta)
	}
	req.Header.Set("Accept", DefaultContentType)
	if call.Body != nil {
		req.Header.Set("Content-Type", DefaultContentType)
	}

	res, err := a.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return transportWrapError(err, goerrors.CategoryExternal, "transport: execute http request", http.StatusBadGateway, meta)
	}
	defer res.Body.Close()
	meta["status_code"] = res.StatusCode

	payload, err := io.ReadAll(io.LimitReader(res.Body, a.limit+1))
	if err != nil {
		return transportWrapError(err, goerrors.CategoryExternal, "transport: read response body", http.StatusBadGateway, meta)
	}
	if int64(len(payload)) > a.limit {
		meta["response_limit_b"] = a.limit
		return transportError(fmt.Sprintf("transport: response body exceeds limit of %d bytes", a.limit),
			goerrors.CategoryExternal, http.StatusBadGateway, meta)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return decodeServerError(res.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return transportWrapError(err, goerrors.CategoryExternal, "transport: decode response body", http.StatusBadGateway, meta)
	}
	return nil
}

// decodeServerError reads the structured error body. Bodies that do not
// follow it still produce a server error carrying the status.
func decodeServerError(status int, body []byte) error {
	var decoded ErrorResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return core.NewServerError(status, "", "", "")
	}
	return core.NewServerError(status, decoded.Error.Code, decoded.Error.Message, decoded.Error.Reference)
}
