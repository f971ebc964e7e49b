package testutil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// RecordingDoer is a gateway.Doer that serves canned responses and
// records every request it sees, including the consumed body.
type RecordingDoer struct {
	mu       sync.Mutex
	requests []RecordedRequest

	Response  *http.Response
	Err       error
	DoFunc    func(req *http.Request) (*http.Response, error)
}

// RecordedRequest captures one outbound request.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

func (d *RecordingDoer) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	d.mu.Lock()
	d.requests = append(d.requests, RecordedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})
	d.mu.Unlock()

	if d.DoFunc != nil {
		return d.DoFunc(req)
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Response, nil
}

// Calls returns how many requests were issued.
func (d *RecordingDoer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

// Requests returns a copy of the recorded requests.
func (d *RecordingDoer) Requests() []RecordedRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RecordedRequest, len(d.requests))
	copy(out, d.requests)
	return out
}

// HangingDoer blocks until the request context is cancelled, then
// returns the context error. Used for timeout tests.
type HangingDoer struct {
	RecordingDoer
}

func (d *HangingDoer) Do(req *http.Request) (*http.Response, error) {
	d.RecordingDoer.Do(req)
	<-req.Context().Done()
	return nil, req.Context().Err()
}

// JSONResponse builds a response with an application/json body.
func JSONResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

// HTMLResponse builds a response with a text/html body, simulating an
// outage page in place of the gateway API.
func HTMLResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}
