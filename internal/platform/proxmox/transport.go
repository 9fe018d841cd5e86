package proxmox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

type callStatusKey struct{}

// callStatus keeps the last non-2xx response seen during one call. The
// go-proxmox client flattens HTTP failures into plain errors; the status
// is needed to tell client errors from server errors.
type callStatus struct {
	mu   sync.Mutex
	last *APIError
}

func withCallStatus(ctx context.Context, s *callStatus) context.Context {
	return context.WithValue(ctx, callStatusKey{}, s)
}

func (s *callStatus) set(e *APIError) {
	s.mu.Lock()
	s.last = e
	s.mu.Unlock()
}

func (s *callStatus) code() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return 0
	}
	return s.last.StatusCode
}

// wrap attaches the recorded response to err.
func (s *callStatus) wrap(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return err
	}
	apiErr := *s.last
	apiErr.Err = err
	return &apiErr
}

// statusTransport records failed responses into the callStatus of the
// request context.
type statusTransport struct {
	base http.RoundTripper
}

func recordStatus(hc *http.Client) *http.Client {
	wrapped := *hc
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped.Transport = &statusTransport{base: base}
	return &wrapped
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode < 300 {
		return resp, err
	}
	s, ok := req.Context().Value(callStatusKey{}).(*callStatus)
	if !ok {
		return resp, nil
	}

	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))

	s.set(&APIError{
		Method:     req.Method,
		Path:       strings.TrimPrefix(req.URL.Path, apiPrefix),
		StatusCode: resp.StatusCode,
		Message:    responseMessage(resp.Status, raw),
	})
	return resp, nil
}

// responseMessage combines the status line, which Proxmox uses for the
// error text, with the per-parameter errors of the body.
func responseMessage(status string, body []byte) string {
	var env struct {
		Errors map[string]string `json:"errors"`
	}
	if json.Unmarshal(body, &env) == nil && len(env.Errors) > 0 {
		return fmt.Sprintf("%s %v", status, env.Errors)
	}
	return status
}
