package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-spam/internal/spam/domain"
	"github.com/haukened/rr-spam/internal/spam/infra/metrics"
	"github.com/haukened/rr-spam/internal/spam/repos/blocklist"
	"github.com/haukened/rr-spam/internal/spam/services/classifier"
)

type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) Check(ctx context.Context, content string, domains classifier.DomainSet, depth int) (domain.Verdict, error) {
	args := m.Called(ctx, content, domains, depth)
	return args.Get(0).(domain.Verdict), args.Error(1)
}

var _ Checker = (*MockChecker)(nil)

func newTestServer(t *testing.T, checker Checker, set classifier.DomainSet, m *metrics.Metrics) *Server {
	t.Helper()
	s, err := New(Options{
		Checker:      checker,
		Blocklist:    set,
		Metrics:      m,
		DefaultDepth: 1,
		MaxDepth:     3,
	})
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, errCheckerRequired)

	_, err = New(Options{Checker: &MockChecker{}, MaxDepth: -1})
	assert.ErrorIs(t, err, errNegativeMax)

	_, err = New(Options{Checker: &MockChecker{}, DefaultDepth: 4, MaxDepth: 3})
	assert.Error(t, err)
}

func TestHandleCheck_UsesConfiguredBlocklistAndDefaultDepth(t *testing.T) {
	set := blocklist.NewSet("moiming.page.link")
	mc := new(MockChecker)
	verdict := domain.Verdict{
		Spam:   true,
		Link:   "https://moiming.page.link/exam?_imcp=1",
		Domain: "moiming.page.link",
		Rule:   "*.page.link",
		Source: "shorteners.txt",
		Trail:  []string{"https://moiming.page.link/exam?_imcp=1"},
		Links:  1,
	}
	mc.On("Check", mock.Anything, "spam spam https://moiming.page.link/exam?_imcp=1", classifier.DomainSet(set), 1).Return(verdict, nil).Once()

	s := newTestServer(t, mc, set, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/check", `{"content":"spam spam https://moiming.page.link/exam?_imcp=1"}`, map[string]string{RequestIDHeader: "req-123"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	var resp CheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Spam)
	assert.Equal(t, "moiming.page.link", resp.Domain)
	assert.Equal(t, "*.page.link", resp.Rule)
	assert.Equal(t, "shorteners.txt", resp.Source)
	assert.Equal(t, "req-123", resp.RequestID)
	mc.AssertExpectations(t)
}

func TestHandleCheck_RequestDomainsAndDepth(t *testing.T) {
	mc := new(MockChecker)
	mc.On("Check", mock.Anything, "x http://docs.github.com/repos", mock.MatchedBy(func(d classifier.DomainSet) bool {
		return d.Contains("docs.github.com") && !d.Contains("moiming.page.link")
	}), 0).Return(domain.Verdict{Spam: true, Links: 1}, nil).Once()

	s := newTestServer(t, mc, blocklist.NewSet("moiming.page.link"), nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/check", `{"content":"x http://docs.github.com/repos","depth":0,"domains":["Docs.GitHub.com"]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader), "a request id is assigned when absent")
	mc.AssertExpectations(t)
}

func TestHandleCheck_BadRequests(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"content":`, http.StatusBadRequest},
		{"unknown field", `{"content":"x","extra":1}`, http.StatusBadRequest},
		{"negative depth", `{"content":"x","depth":-1}`, http.StatusBadRequest},
		{"depth above max", `{"content":"x","depth":4}`, http.StatusBadRequest},
		{"too large", `{"content":"` + strings.Repeat("a", 2048) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mc := new(MockChecker)
			m, err := metrics.New(metrics.Options{})
			require.NoError(t, err)
			s, err := New(Options{Checker: mc, Blocklist: blocklist.NewSet(), Metrics: m, MaxDepth: 3, MaxRequestBytes: 1024})
			require.NoError(t, err)

			rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/check", tc.body, nil)
			assert.Equal(t, tc.status, rec.Code)
			mc.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

			scrape := doJSON(t, m.Handler(), http.MethodGet, "/metrics", "", nil)
			assert.Contains(t, scrape.Body.String(), `rr_spam_checks_total{verdict="error"} 1`)
		})
	}
}

func TestHandleCheck_NoBlocklist(t *testing.T) {
	mc := new(MockChecker)
	s := newTestServer(t, mc, nil, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/check", `{"content":"http://a.example/"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleCheck_CheckErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, http.StatusServiceUnavailable},
		{classifier.ErrNegativeDepth, http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		mc := new(MockChecker)
		mc.On("Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(domain.Verdict{}, tc.err)
		s := newTestServer(t, mc, blocklist.NewSet(), nil)
		rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/check", `{"content":"http://a.example/"}`, nil)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestHandleCheck_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, new(MockChecker), blocklist.NewSet(), nil)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/check", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, new(MockChecker), blocklist.NewSet(), nil)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.SetReady(true)
	rec = doJSON(t, s.Handler(), http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	m, err := metrics.New(metrics.Options{})
	require.NoError(t, err)
	mc := new(MockChecker)
	mc.On("Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(domain.Verdict{Links: 1, Fetches: 2}, nil)

	s := newTestServer(t, mc, blocklist.NewSet(), m)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/check", `{"content":"http://a.example/"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rr_spam_checks_total{verdict="clean"} 1`)
	assert.Contains(t, rec.Body.String(), "rr_spam_fetches_total 2")

	noMetrics := newTestServer(t, mc, blocklist.NewSet(), nil)
	rec = doJSON(t, noMetrics.Handler(), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	s, err := New(Options{Addr: "127.0.0.1:0", Checker: new(MockChecker), MaxDepth: 1})
	require.NoError(t, err)
	s.SetReady(true)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, s.ready.Load())
}

func TestRequestID_TooLongIsReplaced(t *testing.T) {
	s := newTestServer(t, new(MockChecker), blocklist.NewSet(), nil)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", "", map[string]string{RequestIDHeader: strings.Repeat("x", 200)})
	id := rec.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
}
