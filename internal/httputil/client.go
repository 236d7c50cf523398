// Package httputil provides JSON response helpers and an HTTP client
// abstraction for testability.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 15 * time.Second

// HTTPClient abstracts HTTP operations for testability.
// Use StandardClient in production and MockHTTPClient in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient wraps c, or a client with DefaultTimeout when c is nil.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = &http.Client{Timeout: DefaultTimeout}
	}
	return &StandardClient{Client: c}
}

// Do sends an HTTP request.
func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.Client.Do(req)
}

// MockResponse defines a canned HTTP response for testing.
type MockResponse struct {
	StatusCode int
	Body       string
	Error      error
}

// MockHTTPClient answers requests from canned responses keyed by URL path.
// It is safe for concurrent use. Unknown paths get a 404.
type MockHTTPClient struct {
	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []string
}

// NewMockHTTPClient creates a new mock HTTP client.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{responses: make(map[string]MockResponse)}
}

// Handle registers the response for path.
func (m *MockHTTPClient) Handle(path string, statusCode int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{StatusCode: statusCode, Body: body}
	return m
}

// HandleError makes requests for path fail with err.
func (m *MockHTTPClient) HandleError(path string, err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{Error: err}
	return m
}

// Do records the request path and returns the registered response.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req.URL.Path)
	resp, ok := m.responses[req.URL.Path]
	m.mu.Unlock()

	if !ok {
		resp = MockResponse{StatusCode: http.StatusNotFound, Body: "not found"}
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(bytes.NewBufferString(resp.Body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// RequestCount returns the number of recorded requests.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
