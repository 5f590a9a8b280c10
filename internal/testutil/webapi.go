package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// TestToken is the access token issued by FakeWebAPI's token endpoint.
const TestToken = "test-access-token"

// RecordedRequest is a request received by FakeWebAPI.
type RecordedRequest struct {
	Method        string
	Path          string
	RawQuery      string
	Header        http.Header
	Body          []byte
	Authorization string
}

type route struct {
	method  string
	prefix  string
	handler http.HandlerFunc
}

// FakeWebAPI is an httptest server that stands in for the Web API and its
// OAuth2 token endpoint.
//
// Routes match on method and path prefix, first registered wins. Unmatched
// requests get a 404 with an OData error body. Every request except token
// requests is recorded.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeWebAPI struct {
	*httptest.Server

	mu         sync.Mutex
	routes     []route
	requests   []RecordedRequest
	tokenCalls int
}

// NewFakeWebAPI starts a server that is closed when the test ends.
func NewFakeWebAPI(t testing.TB) *FakeWebAPI {
	t.Helper()
	f := StartFakeWebAPI()
	t.Cleanup(f.Close)
	return f
}

// StartFakeWebAPI starts a server outside a test. The caller must Close it.
func StartFakeWebAPI() *FakeWebAPI {
	f := &FakeWebAPI{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// Handle registers h for requests with method whose path starts with prefix.
func (f *FakeWebAPI) Handle(method, prefix string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, route{method: method, prefix: prefix, handler: h})
}

// Requests returns a copy of the recorded requests in arrival order.
func (f *FakeWebAPI) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// TokenCalls returns how many tokens the token endpoint has issued.
func (f *FakeWebAPI) TokenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls
}

func (f *FakeWebAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/token") {
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		WriteJSON(w, http.StatusOK, map[string]any{
			"access_token": TestToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
		return
	}

	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		RawQuery:      r.URL.RawQuery,
		Header:        r.Header.Clone(),
		Body:          body,
		Authorization: r.Header.Get("Authorization"),
	})
	var handler http.HandlerFunc
	for _, rt := range f.routes {
		if rt.method == r.Method && strings.HasPrefix(r.URL.Path, rt.prefix) {
			handler = rt.handler
			break
		}
	}
	f.mu.Unlock()

	if handler == nil {
		WriteError(w, http.StatusNotFound, "0x80060888", "Resource not found for the segment '"+r.URL.Path+"'.")
		return
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	handler(w, r)
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; odata.metadata=minimal")
	w.Header().Set("OData-Version", "4.0")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an OData error body.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
