// Package httpapi holds the JSON-over-HTTP plumbing shared by the messenger
// channel and the activity provider.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

const userAgent = "lastsignal/1.0"

// Client builds and executes JSON requests against a single API base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	header     http.Header
}

// New creates a Client. A nil httpClient uses http.DefaultClient; per-call
// deadlines come from the request context.
func New(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		header:     make(http.Header),
	}
}

// SetHeader sets a header sent with every request (e.g. Authorization).
func (c *Client) SetHeader(key, value string) {
	c.header.Set(key, value)
}

// NewRequest creates a request for endpoint (relative to the base URL) with an
// optional query and JSON body.
func (c *Client) NewRequest(ctx context.Context, method, endpoint string, query url.Values, body any) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.ConfigError("failed to parse API URL").
			WithCause(err).
			WithContext("api_url", c.baseURL).
			Build()
	}
	u.Path = path.Join(strings.TrimSuffix(u.Path, "/"), strings.TrimPrefix(endpoint, "/"))
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.InternalError("failed to marshal request body").WithCause(err).Build()
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.InternalError("failed to create request").
			WithCause(err).
			WithContext("method", method).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

// Do executes req and decodes a JSON response into result (when non-nil).
// Transport failures are network errors; HTTP status >= 400 yields an error
// whose context carries "code" and the first 512 bytes of the body as "response".
func (c *Client) Do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if stderrors.As(err, &urlErr) {
			urlErr.URL = redact(req.URL)
		}
		return errors.NetworkError("request failed").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", redact(req.URL)).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		category := errors.CategoryNetwork
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			category = errors.CategoryAuth
		}
		return errors.NewError(category, fmt.Sprintf("API error: %s", resp.Status)).
			WithContext("code", resp.StatusCode).
			WithContext("url", redact(req.URL)).
			WithContext("response", strings.ReplaceAll(string(limited), "\n", " ")).
			WithContext("retry_after", resp.Header.Get("Retry-After")).
			Build()
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return errors.NetworkError("failed to decode response").WithCause(err).Build()
		}
	}
	return nil
}

// StatusCode extracts the HTTP status recorded by Do, or 0.
func StatusCode(err error) int {
	classified, ok := errors.AsClassified(err)
	if !ok {
		return 0
	}
	code, _ := classified.Context().Get("code")
	n, _ := code.(int)
	return n
}

// ResponseBody extracts the truncated error body recorded by Do.
func ResponseBody(err error) string {
	body, _ := errors.ContextString(err, "response")
	return body
}

// redact drops the query string, which may carry access tokens.
func redact(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	return clean.String()
}
