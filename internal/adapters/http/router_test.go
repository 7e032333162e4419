package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/researchhub/researchhub/internal/core/domain"
)

type answerServiceFake struct {
	answer *domain.CitedAnswer
	err    error
	gotReq domain.AskRequest
}

func (f *answerServiceFake) Answer(_ context.Context, req domain.AskRequest) (*domain.CitedAnswer, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

type answerLogFake struct {
	events   []domain.AnswerEvent
	err      error
	gotLimit int
}

func (f *answerLogFake) ListRecent(_ context.Context, limit int) ([]domain.AnswerEvent, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func newTestHandler(service *answerServiceFake, log *answerLogFake, options RouterOptions) http.Handler {
	if service == nil {
		service = &answerServiceFake{answer: &domain.CitedAnswer{TerminalReason: domain.ReasonAnswered}}
	}
	if log == nil {
		log = &answerLogFake{}
	}
	return NewRouter(service, log, nil, options).Handler()
}

func postAsk(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", bytes.NewReader([]byte(body)))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestAskReturnsCitedAnswer(t *testing.T) {
	service := &answerServiceFake{
		answer: &domain.CitedAnswer{
			ID:             "a1",
			ProjectID:      "p1",
			Question:       "what is rrf",
			Answer:         "RRF sums reciprocal ranks.",
			Citations:      []domain.Citation{{ChunkID: "c1", Excerpt: "…", RelevanceScore: 0.9}},
			TerminalReason: domain.ReasonAnswered,
			Rounds:         1,
		},
	}
	handler := newTestHandler(service, nil, RouterOptions{})

	res := postAsk(t, handler, `{"question":"what is rrf","project_id":"p1","category":"cs.IR","date_from":"2023-01-01","top_k":3}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var got domain.CitedAnswer
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "a1" || len(got.Citations) != 1 {
		t.Fatalf("unexpected answer payload: %+v", got)
	}
	if service.gotReq.Category != "cs.IR" || service.gotReq.TopK != 3 {
		t.Fatalf("unexpected decoded request: %+v", service.gotReq)
	}
	if service.gotReq.Dates.From.IsZero() {
		t.Fatalf("expected date_from parsed, got %+v", service.gotReq.Dates)
	}
}

func TestAskRejectsMalformedDate(t *testing.T) {
	handler := newTestHandler(nil, nil, RouterOptions{})

	res := postAsk(t, handler, `{"question":"q","project_id":"p1","date_from":"01/02/2023"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "date_from") {
		t.Fatalf("expected field name in error, got %s", res.Body.String())
	}
}

func TestAskMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "answer", context.Canceled), http.StatusBadRequest},
		{"unknown project", domain.WrapError(domain.ErrProjectNotFound, "get project", context.Canceled), http.StatusNotFound},
		{"retrieval down", domain.WrapError(domain.ErrRetrievalUnavailable, "retrieve", context.Canceled), http.StatusServiceUnavailable},
		{"generation down", domain.WrapError(domain.ErrGenerationUnavailable, "compose", context.Canceled), http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(&answerServiceFake{err: tc.err}, nil, RouterOptions{})
			res := postAsk(t, handler, `{"question":"q","project_id":"p1"}`)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestAskMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(nil, nil, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/ask", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestListAnswersPassesLimit(t *testing.T) {
	log := &answerLogFake{events: []domain.AnswerEvent{{AnswerID: "a1"}}}
	handler := newTestHandler(nil, log, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/answers?limit=5", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if log.gotLimit != 5 {
		t.Fatalf("expected limit 5, got %d", log.gotLimit)
	}

	var payload struct {
		Answers []domain.AnswerEvent `json:"answers"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Answers) != 1 || payload.Answers[0].AnswerID != "a1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestListAnswersRejectsBadLimit(t *testing.T) {
	handler := newTestHandler(nil, nil, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/answers?limit=banana", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRequestIDHeaderEchoedAndGenerated(t *testing.T) {
	handler := newTestHandler(nil, nil, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestHandler(nil, nil, RouterOptions{RateLimitRPS: 1, RateLimitBurst: 1})

	req1 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}
