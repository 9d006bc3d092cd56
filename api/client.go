// Package api implements the HTTP client shared by the Agent Worker, the
// Recipe Engine, and Artifacts: a thin wrapper around a request that
// returns either a parsed JSON document or a raw byte stream, with a single
// exit path that always releases the underlying connection.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/buildkite/roko"
	"github.com/google/go-querystring/query"
	"github.com/sciagent/sci-agent/internal/agenthttp"
	"github.com/sciagent/sci-agent/logger"
)

const defaultUserAgent = "sci-agent/api"

// Config configures a Client. Endpoint is the base URL this Client talks
// to — the job server and the storage service are each addressed by their
// own Client built from their own Config, the way the original's
// HttpClient is instantiated fresh per target URL.
type Config struct {
	Endpoint   string
	UserAgent  string
	DebugHTTP  bool
	TraceHTTP  bool
	HTTPClient *http.Client
}

// Client talks to one HTTP endpoint (the job server or the storage
// service).
type Client struct {
	conf   Config
	client *http.Client
	logger logger.Logger
}

// NewClient returns a Client configured to talk to conf.Endpoint.
func NewClient(l logger.Logger, conf Config) *Client {
	if conf.UserAgent == "" {
		conf.UserAgent = defaultUserAgent
	}
	if l == nil {
		l = logger.Discard
	}

	httpClient := conf.HTTPClient
	if httpClient == nil {
		httpClient = agenthttp.NewClient()
	}

	return &Client{
		conf:   conf,
		client: httpClient,
		logger: l,
	}
}

// RawBody marks a response as wanting the raw bytes rather than a decoded
// JSON document, for file transfers.
type RawBody struct {
	io.Writer
}

// TransportError is returned for any response outside the 200-299 range.
type TransportError struct {
	Code int
	Body string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("api: unexpected status %d: %s", e.Code, e.Body)
}

// NewRequest builds an *http.Request for method/path against the Client's
// endpoint. body, if non-nil, is JSON-encoded and sent with
// Content-Type: application/json unless it already implements io.Reader, in
// which case it is streamed as-is (used for artifact uploads). opts, if
// non-nil, is encoded as a query string via go-querystring.
func (c *Client) NewRequest(ctx context.Context, method, path string, opts any, body any) (*http.Request, error) {
	u, err := c.url(path, opts)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	isJSON := false
	switch b := body.(type) {
	case nil:
		// No body.
	case io.Reader:
		reqBody = b
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("api: encode request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
		isJSON = true
	}

	if method == "" {
		if reqBody != nil {
			method = http.MethodPost
		} else {
			method = http.MethodGet
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("api: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("User-Agent", c.conf.UserAgent)
	if isJSON {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) url(path string, opts any) (string, error) {
	full := strings.TrimRight(c.conf.Endpoint, "/") + "/" + strings.TrimLeft(path, "/")
	if opts == nil {
		return full, nil
	}
	u, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("api: parse url %q: %w", full, err)
	}
	if !isEmptyValue(reflect.ValueOf(opts)) {
		values, err := query.Values(opts)
		if err != nil {
			return "", fmt.Errorf("api: encode query: %w", err)
		}
		u.RawQuery = values.Encode()
	}
	return u.String(), nil
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Do performs req and decodes the response into v. v may be nil (body
// discarded), a *RawBody (raw bytes copied to its Writer), or any JSON
// target. The response body is always closed and drained before Do
// returns, on every exit path including errors.
func (c *Client) Do(req *http.Request, v any) (*http.Response, error) {
	var opts []agenthttp.DoOption
	if c.conf.DebugHTTP {
		opts = append(opts, agenthttp.WithDebugHTTP(true))
	}
	if c.conf.TraceHTTP {
		opts = append(opts, agenthttp.WithTraceHTTP(true))
	}

	resp, err := agenthttp.Do(c.logger, c.client, req, opts...)
	if err != nil {
		return nil, fmt.Errorf("api: request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()              //nolint:errcheck
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return resp, &TransportError{Code: resp.StatusCode, Body: string(body)}
	}

	if v == nil {
		return resp, nil
	}

	if raw, ok := v.(*RawBody); ok {
		_, err := io.Copy(raw.Writer, resp.Body)
		if err != nil {
			return resp, fmt.Errorf("api: read raw body: %w", err)
		}
		return resp, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil && err != io.EOF {
		return resp, fmt.Errorf("api: decode response: %w", err)
	}
	return resp, nil
}

// Call is a convenience wrapper combining NewRequest and Do for the common
// case of a JSON-in, JSON-out round trip (mirrors the original's
// HttpClient.call). Transient failures - connection errors and the
// retryable 429/5xx statuses - are retried with exponential backoff; a
// non-retryable failure or context cancellation returns immediately.
func (c *Client) Call(ctx context.Context, method, path string, opts, body, v any) error {
	r := roko.NewRetrier(
		roko.WithMaxAttempts(5),
		roko.WithStrategy(roko.Exponential(2*time.Second, 0)),
		roko.WithJitterRange(-1*time.Second, 1*time.Second),
	)

	return r.DoWithContext(ctx, func(r *roko.Retrier) error {
		req, err := c.NewRequest(ctx, method, path, opts, body)
		if err != nil {
			r.Break()
			return err
		}

		_, err = c.Do(req, v)
		if err == nil {
			return nil
		}
		if !IsRetryableStatus(err) && !IsRetryableError(err) {
			r.Break()
			return err
		}
		c.logger.Warn("api: %s %s failed, retrying: %v (%s)", method, path, err, r)
		return err
	})
}
