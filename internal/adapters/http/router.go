package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/researchhub/researchhub/internal/core/domain"
	"github.com/researchhub/researchhub/internal/core/ports"
	"github.com/researchhub/researchhub/internal/observability/metrics"
)

const dateLayout = "2006-01-02"

type RouterOptions struct {
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxInFlight     int
	BackpressureMax time.Duration
}

type Router struct {
	answers ports.AnswerService
	log     ports.AnswerLogReader
	metrics *metrics.HTTPServerMetrics
	options RouterOptions
}

func NewRouter(
	answers ports.AnswerService,
	log ports.AnswerLogReader,
	m *metrics.HTTPServerMetrics,
	options RouterOptions,
) *Router {
	return &Router{
		answers: answers,
		log:     log,
		metrics: m,
		options: options,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/ask", rt.ask)
	mux.HandleFunc("/v1/answers", rt.listAnswers)

	var handler http.Handler = mux
	if rt.options.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.options.MaxInFlight, rt.options.BackpressureMax)
	}
	if rt.options.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.options.RateLimitRPS, rt.options.RateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload struct {
		Question  string `json:"question"`
		ProjectID string `json:"project_id"`
		Category  string `json:"category"`
		DateFrom  string `json:"date_from"`
		DateTo    string `json:"date_to"`
		TopK      int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	dates, err := parseDateRange(payload.DateFrom, payload.DateTo)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	start := time.Now()
	answer, err := rt.answers.Answer(r.Context(), domain.AskRequest{
		Question:  payload.Question,
		ProjectID: payload.ProjectID,
		Category:  payload.Category,
		Dates:     dates,
		TopK:      payload.TopK,
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAnswer(
			"api",
			string(answer.TerminalReason),
			answer.Rounds,
			len(answer.Citations),
			answer.Partial,
			answer.InsufficientEvidence,
			time.Since(start),
		)
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) listAnswers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	events, err := rt.log.ListRecent(r.Context(), limit)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if events == nil {
		events = []domain.AnswerEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"answers": events})
}

func parseDateRange(from, to string) (domain.DateRange, error) {
	var dates domain.DateRange
	if from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("date_from must be formatted as YYYY-MM-DD")
		}
		dates.From = t
	}
	if to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("date_to must be formatted as YYYY-MM-DD")
		}
		dates.To = t
	}
	return dates, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
