package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sync"
)

var _ Transport = (*MockTransport)(nil)

// MockResponse is one canned outcome of a MockTransport. A non-nil Err
// is returned as a transport error and the other fields are ignored.
type MockResponse struct {
	StatusCode int
	Body       string
	Header     http.Header
	Err        error
}

func (r MockResponse) raw(req *ResolvedRequest) (*RawResponse, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &RawResponse{
		StatusCode:     r.StatusCode,
		Status:         fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode)),
		Proto:          "HTTP/1.1",
		Header:         header,
		Body:           []byte(r.Body),
		RequestHeaders: append([]string(nil), req.Headers...),
	}, nil
}

// MockTransport is an in-memory Transport for tests. Stubs are matched
// in registration order; the first match wins. Unmatched requests fall
// back to the StubResponse/StubError default and fail otherwise.
//
//	mock := httpclient.NewMockTransport().
//	    StubPath("/users", http.StatusOK, `[{"id":1}]`).
//	    StubSequence(
//	        httpclient.MockResponse{Err: io.ErrUnexpectedEOF},
//	        httpclient.MockResponse{StatusCode: http.StatusOK},
//	    )
//	client := httpclient.New(httpclient.WithMockTransport(mock))
type MockTransport struct {
	mu          sync.Mutex
	stubs       []*stub
	fallback    *MockResponse
	requests    []*ResolvedRequest
	requestHook func(*ResolvedRequest)
}

type stub struct {
	matcher func(*ResolvedRequest) bool

	// steps are consumed one per match; the last one repeats.
	steps []MockResponse
}

func (s *stub) next() MockResponse {
	step := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	return step
}

// NewMockTransport creates an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse answers every unmatched request with statusCode and body.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &MockResponse{StatusCode: statusCode, Body: body}
	return m
}

// StubError fails every unmatched request with err.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &MockResponse{Err: err}
	return m
}

// StubPath answers requests whose URL path equals path.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *ResolvedRequest) bool {
		return requestPath(req) == path
	}, statusCode, body)
}

// StubPathRegex answers requests whose URL path matches pattern.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubFunc(func(req *ResolvedRequest) bool {
		return re.MatchString(requestPath(req))
	}, statusCode, body)
}

// StubMethod answers requests with the given method.
func (m *MockTransport) StubMethod(method string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *ResolvedRequest) bool {
		return req.Method == method
	}, statusCode, body)
}

// StubFunc answers requests matching the predicate.
func (m *MockTransport) StubFunc(
	matcher func(*ResolvedRequest) bool,
	statusCode int,
	body string,
) *MockTransport {
	return m.stub(matcher, MockResponse{StatusCode: statusCode, Body: body})
}

// StubFuncError fails requests matching the predicate with err.
func (m *MockTransport) StubFuncError(matcher func(*ResolvedRequest) bool, err error) *MockTransport {
	return m.stub(matcher, MockResponse{Err: err})
}

// StubSequence answers every request with the next step; the last step
// repeats once the others are used up.
func (m *MockTransport) StubSequence(steps ...MockResponse) *MockTransport {
	return m.stub(func(*ResolvedRequest) bool { return true }, steps...)
}

func (m *MockTransport) stub(matcher func(*ResolvedRequest) bool, steps ...MockResponse) *MockTransport {
	if len(steps) == 0 {
		return m
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, &stub{matcher: matcher, steps: steps})
	return m
}

// OnRequest registers a hook called with every request, before it is
// matched.
func (m *MockTransport) OnRequest(fn func(*ResolvedRequest)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = fn
	return m
}

// Issue implements Transport.
func (m *MockTransport) Issue(ctx context.Context, req *ResolvedRequest) (*RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req.clone())
	hook := m.requestHook
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.stubs {
		if s.matcher(req) {
			return s.next().raw(req)
		}
	}
	if m.fallback != nil {
		return m.fallback.raw(req)
	}
	return nil, fmt.Errorf("httpclient: no stub found for request: %s %s", req.Method, req.URL)
}

// Requests returns copies of every request issued so far.
func (m *MockTransport) Requests() []*ResolvedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ResolvedRequest(nil), m.requests...)
}

func (m *MockTransport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil.
func (m *MockTransport) LastRequest() *ResolvedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears recorded requests, stubs and the hook.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.stubs = nil
	m.fallback = nil
	m.requestHook = nil
}

func requestPath(req *ResolvedRequest) string {
	u, err := url.Parse(req.URL)
	if err != nil {
		return ""
	}
	return u.Path
}

// WithMockTransport makes New use mock instead of the network. Circuit
// breaker, rate limit and chaos settings still wrap it.
func WithMockTransport(mock *MockTransport) Option {
	return func(cfg *internalConfig) {
		cfg.MockTransport = mock
	}
}
