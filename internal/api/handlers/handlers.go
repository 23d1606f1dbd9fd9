// Package handlers implements the HTTP surface spec.md §6 requires,
// grounded on the teacher's internal/api/handlers/handlers.go: each
// resource gets its own struct holding the collaborators it needs plus a
// logger, methods write through middleware.WriteJSON/WriteError, and
// errors are classified via the apperr taxonomy by statusFor into
// 400/404/409/429/500/503.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-agent/internal/agent"
	"github.com/dvloznov/finance-agent/internal/api/middleware"
	"github.com/dvloznov/finance-agent/internal/apperr"
	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/ingest"
	"github.com/dvloznov/finance-agent/internal/insights"
	"github.com/dvloznov/finance-agent/internal/jobs"
	"github.com/dvloznov/finance-agent/internal/store"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// statusFor maps an apperr.Kind to the HTTP status spec.md §6 assigns it.
// KindLLMTransient/KindStoreTransient reach here either after a retrying
// component (chatWithRetry, withRetry) gave up without absorbing the
// failure into a graceful result, or from a call that is not retried at
// all, such as the insights engine's narrative LLM call — either way it's a
// "come back shortly" signal to the client, so it's a 429, not a 503.
// KindLLMUnavailable means retrying wouldn't have helped, which is what 503
// is for.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindParse, apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindLLMTransient, apperr.KindStoreTransient:
		return http.StatusTooManyRequests
	case apperr.KindLLMUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError writes err through the taxonomy: stable kind, message,
// details, and correlation id, per spec.md §7. A still-transient error
// carries its retry_after_seconds detail (set by internal/llm.Adapter) into
// a standard Retry-After header as well as the response body.
func writeAppError(w http.ResponseWriter, log zerolog.Logger, err error) {
	kind := apperr.KindOf(err)
	body := map[string]any{"kind": string(kind), "message": err.Error()}
	var ae *apperr.Error
	if aerr, ok := err.(*apperr.Error); ok {
		ae = aerr
	}
	if ae != nil {
		body["message"] = ae.Message
		if ae.Details != nil {
			body["details"] = ae.Details
		}
		if ae.CorrelationID != "" {
			body["correlation_id"] = ae.CorrelationID
		}
		if secs, ok := ae.Details["retry_after_seconds"].(float64); ok && secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(secs+0.5)))
		}
	}
	status := statusFor(err)
	if status >= 500 {
		log.Error().Err(err).Str("kind", string(kind)).Msg("request failed")
	}
	middleware.WriteJSON(w, status, body)
}

// ---- Health ----

// HealthHandler serves liveness/readiness.
type HealthHandler struct {
	st  *store.Store
	log zerolog.Logger
}

func NewHealthHandler(st *store.Store, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{st: st, log: log}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// HealthDetailed handles GET /health/detailed, exercising the Store so a
// readiness probe actually reflects BigQuery reachability.
func (h *HealthHandler) HealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	if _, err := h.st.FindRecords(ctx, store.RecordFilter{Limit: 1}); err != nil {
		checks["store"] = "down: " + err.Error()
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "checks": checks})
		return
	}
	checks["store"] = "ok"
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"status": "healthy", "checks": checks})
}

// ---- Ingestion ----

// IngestHandler exposes the Ingestion Orchestrator (C5).
type IngestHandler struct {
	orchestrator *ingest.Orchestrator
	publisher    jobs.Publisher
	log          zerolog.Logger
}

func NewIngestHandler(o *ingest.Orchestrator, publisher jobs.Publisher, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{orchestrator: o, publisher: publisher, log: log}
}

type ingestFileRequest struct {
	Path       string `json:"path"`
	SourceHint string `json:"source_hint"`
}

// IngestFile handles POST /data/ingest.
func (h *IngestHandler) IngestFile(w http.ResponseWriter, r *http.Request) {
	var req ingestFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		middleware.WriteError(w, http.StatusBadRequest, "path is required")
		return
	}
	result, err := h.orchestrator.IngestFile(r.Context(), req.Path, domain.SourceType(req.SourceHint))
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

type ingestBatchRequest struct {
	Paths       []string `json:"paths"`
	SourceHints []string `json:"source_hints"`
	Async       bool     `json:"async"`
}

// IngestBatch handles POST /data/ingest/batch.
func (h *IngestHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	hints := make([]domain.SourceType, len(req.Paths))
	for i := range req.Paths {
		if i < len(req.SourceHints) {
			hints[i] = domain.SourceType(req.SourceHints[i])
		}
	}
	if req.Async {
		batchID, err := h.orchestrator.IngestBatchAsync(r.Context(), h.publisher, req.Paths, hints)
		if err != nil {
			writeAppError(w, h.log, err)
			return
		}
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"batch_id": batchID, "status": "Pending"})
		return
	}
	result, err := h.orchestrator.IngestBatch(r.Context(), req.Paths, hints)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// Status handles GET /data/status?batch_id=....
func (h *IngestHandler) Status(w http.ResponseWriter, r *http.Request) {
	batchID := r.URL.Query().Get("batch_id")
	if batchID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "batch_id is required")
		return
	}
	job, err := h.orchestrator.Status(r.Context(), batchID)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ---- Financial data ----

// FinancialDataHandler exposes the Store's read operations over financial
// records.
type FinancialDataHandler struct {
	st  *store.Store
	log zerolog.Logger
}

func NewFinancialDataHandler(st *store.Store, log zerolog.Logger) *FinancialDataHandler {
	return &FinancialDataHandler{st: st, log: log}
}

// List handles GET /financial-data.
func (h *FinancialDataHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.RecordFilter{Currency: q.Get("currency")}
	if src := q.Get("source"); src != "" {
		f.Source = domain.SourceType(src)
	}
	if s := q.Get("start_date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid start_date")
			return
		}
		f.PeriodStart = &d
	}
	if s := q.Get("end_date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid end_date")
			return
		}
		f.PeriodEnd = &d
	}
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			f.Limit = n
		}
	}
	records, err := h.st.FindRecords(r.Context(), f)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// Aggregate handles GET /financial-data/{period}, where period is one of
// YYYY, YYYY-Qn, YYYY-MM, or YYYY-MM-DD (spec.md §6).
func (h *FinancialDataHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	period := mux.Vars(r)["period"]
	start, end, label, err := parsePeriod(period)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	currency := r.URL.Query().Get("currency")
	agg, err := h.st.AggregatePeriod(r.Context(), start, end, currency)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	records, err := h.st.FindRecords(r.Context(), store.RecordFilter{PeriodStart: &start, PeriodEnd: &end, Currency: currency, Limit: 500})
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	sources := sourcesOf(records)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"period":     label,
		"revenue":    agg.Revenue.Round2().Float64(),
		"expenses":   agg.Expenses.Round2().Float64(),
		"net_profit": agg.NetProfit.Round2().Float64(),
		"count":      agg.RecordCount,
		"sources":    sources,
	})
}

func sourcesOf(records []domain.FinancialRecord) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range records {
		s := string(r.Source)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// parsePeriod resolves the four accepted period formats into a
// [start, end] window and a canonical label.
func parsePeriod(period string) (civil.Date, civil.Date, string, error) {
	switch {
	case len(period) == 4:
		year, err := strconv.Atoi(period)
		if err != nil {
			return civil.Date{}, civil.Date{}, "", fmt.Errorf("invalid period %q", period)
		}
		return civil.Date{Year: year, Month: 1, Day: 1}, civil.Date{Year: year, Month: 12, Day: 31}, period, nil
	case strings.Contains(period, "-Q"):
		parts := strings.SplitN(period, "-Q", 2)
		year, err1 := strconv.Atoi(parts[0])
		q, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || q < 1 || q > 4 {
			return civil.Date{}, civil.Date{}, "", fmt.Errorf("invalid period %q", period)
		}
		startMonth := (q-1)*3 + 1
		start := civil.Date{Year: year, Month: time.Month(startMonth), Day: 1}
		end := civil.Date{Year: year, Month: time.Month(startMonth + 2), Day: lastDayOfMonth(year, startMonth+2)}
		return start, end, period, nil
	case len(period) == 7:
		year, month, ok := parseYearMonth(period)
		if !ok {
			return civil.Date{}, civil.Date{}, "", fmt.Errorf("invalid period %q", period)
		}
		return civil.Date{Year: year, Month: time.Month(month), Day: 1}, civil.Date{Year: year, Month: time.Month(month), Day: lastDayOfMonth(year, month)}, period, nil
	case len(period) == 10:
		d, err := civil.ParseDate(period)
		if err != nil {
			return civil.Date{}, civil.Date{}, "", fmt.Errorf("invalid period %q", period)
		}
		return d, d, period, nil
	default:
		return civil.Date{}, civil.Date{}, "", fmt.Errorf("unrecognized period format %q", period)
	}
}

func parseYearMonth(s string) (year, month int, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || m < 1 || m > 12 {
		return 0, 0, false
	}
	return y, m, true
}

func lastDayOfMonth(year, month int) int {
	firstOfNext := civil.Date{Year: year, Month: time.Month(month), Day: 1}
	firstOfNext.Month++
	if firstOfNext.Month > 12 {
		firstOfNext.Month = 1
		firstOfNext.Year++
	}
	return firstOfNext.AddDays(-1).Day
}

// ---- Accounts ----

// AccountsHandler exposes the account forest.
type AccountsHandler struct {
	st  *store.Store
	log zerolog.Logger
}

func NewAccountsHandler(st *store.Store, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{st: st, log: log}
}

// List handles GET /accounts.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.AccountFilter{ActiveOnly: q.Get("active_only") == "true"}
	if t := q.Get("account_type"); t != "" {
		f.AccountType = domain.AccountType(t)
	}
	if s := q.Get("source"); s != "" {
		f.Source = domain.SourceType(s)
	}
	accounts, err := h.st.FindAccounts(r.Context(), f)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"accounts": accounts, "count": len(accounts)})
}

// Get handles GET /accounts/{id}.
func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	account, err := h.st.GetAccount(r.Context(), id)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	if account == nil {
		writeAppError(w, h.log, apperr.New(apperr.KindNotFound, fmt.Sprintf("account %q not found", id)))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, account)
}

// Hierarchy handles GET /accounts/{id}/hierarchy.
func (h *AccountsHandler) Hierarchy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	accounts, err := h.st.AccountHierarchy(r.Context(), id)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	if len(accounts) == 0 {
		writeAppError(w, h.log, apperr.New(apperr.KindNotFound, fmt.Sprintf("account %q not found", id)))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"root": id, "accounts": accounts})
}

// ---- Agent query ----

// QueryHandler exposes the Agent Controller (C8).
type QueryHandler struct {
	controller *agent.Controller
	log        zerolog.Logger
}

func NewQueryHandler(c *agent.Controller, log zerolog.Logger) *QueryHandler {
	return &QueryHandler{controller: c, log: log}
}

type queryRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	// MaxIterations is a pointer so an omitted field (use the default) is
	// distinguishable from an explicit 0, which spec.md §8 gives its own
	// meaning: immediate summarization with no tool use.
	MaxIterations *int `json:"max_iterations"`
}

// Query handles POST /query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "query is required")
		return
	}
	maxIterations := agent.DefaultMaxIterations
	if req.MaxIterations != nil {
		maxIterations = *req.MaxIterations
	}
	result, err := h.controller.ProcessQuery(r.Context(), req.Query, req.ConversationID, maxIterations)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"answer":          result.Answer,
		"conversation_id": result.ConversationID,
		"tool_calls_made": result.ToolCallsMade,
		"iterations":      result.Iterations,
	})
}

// ---- Insights ----

// InsightsHandler exposes the Insights Engine (C9).
type InsightsHandler struct {
	engine *insights.Engine
	log    zerolog.Logger
}

func NewInsightsHandler(e *insights.Engine, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{engine: e, log: log}
}

// Get handles GET /insights/{kind}.
func (h *InsightsHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	q := r.URL.Query()
	params := map[string]any{}
	for key, values := range q {
		if len(values) == 0 {
			continue
		}
		if key == "years" {
			var years []any
			for _, v := range strings.Split(values[0], ",") {
				if n, err := strconv.Atoi(v); err == nil {
					years = append(years, float64(n))
				}
			}
			params["years"] = years
			continue
		}
		if key == "year" {
			if n, err := strconv.Atoi(values[0]); err == nil {
				params["year"] = float64(n)
				continue
			}
		}
		params[key] = values[0]
	}
	result, err := h.engine.Run(r.Context(), kind, params)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}
