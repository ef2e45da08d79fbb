// Package httputil provides the small HTTP client surface used by remote
// collaborators, with a scripted double for tests.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ErrStatus is wrapped by DoJSON when the server replies with a non-2xx code.
var ErrStatus = errors.New("unexpected HTTP status")

// maxBodyBytes bounds how much of a response body DoJSON will read.
const maxBodyBytes = 1 << 20

// Doer abstracts HTTP round trips for testability.
// *http.Client satisfies it; MockDoer is the test double.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PostJSON sends body with the given content type and decodes a JSON reply
// into out. Non-2xx replies return an error wrapping ErrStatus.
func PostJSON(ctx context.Context, c Doer, url, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// MockDoer replays canned responses in order and records every request.
type MockDoer struct {
	mu        sync.Mutex
	responses []MockResponse
	next      int
	requests  []*http.Request
	bodies    [][]byte

	// DoFunc, when set, handles every request instead of the queue.
	DoFunc func(req *http.Request) (*http.Response, error)
}

// MockResponse is one canned reply. A non-nil Err is returned instead of a
// response.
type MockResponse struct {
	StatusCode int
	Body       string
	Err        error
}

// NewMockDoer creates an empty MockDoer. Requests beyond the queued replies
// get an empty 200 response.
func NewMockDoer() *MockDoer {
	return &MockDoer{}
}

// Reply queues a response.
func (m *MockDoer) Reply(status int, body string) *MockDoer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{StatusCode: status, Body: body})
	return m
}

// Fail queues a transport error.
func (m *MockDoer) Fail(err error) *MockDoer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{Err: err})
	return m
}

// Do implements Doer.
func (m *MockDoer) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)
	fn := m.DoFunc
	var resp *MockResponse
	if fn == nil && m.next < len(m.responses) {
		resp = &m.responses[m.next]
		m.next++
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	if resp == nil {
		resp = &MockResponse{StatusCode: http.StatusOK}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(bytes.NewBufferString(resp.Body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Requests returns the recorded requests.
func (m *MockDoer) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// Body returns the body of the nth recorded request.
func (m *MockDoer) Body(n int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.bodies) {
		return nil
	}
	return m.bodies[n]
}
