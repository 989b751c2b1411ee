package main

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agentreplay/agentreplay-sub001/internal/config"
	"github.com/agentreplay/agentreplay-sub001/internal/evaluator"
	"github.com/agentreplay/agentreplay-sub001/internal/governor"
	"github.com/agentreplay/agentreplay-sub001/internal/ingestion"
	"github.com/agentreplay/agentreplay-sub001/internal/model"
	"github.com/agentreplay/agentreplay-sub001/internal/nlquery"
	"github.com/agentreplay/agentreplay-sub001/internal/tracestore"
)

// server bundles the live components main wires up; its handlers are thin
// translations between HTTP and the domain packages, not business logic.
type server struct {
	cfg      config.Config
	store    *tracestore.Facade
	actor    *ingestion.Actor
	governor *governor.Governor
	registry *evaluator.Registry
	planner  *nlquery.Planner
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /evaluate", s.handleEvaluate)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"governor":  s.governor.Stats(),
		"ingestion": s.actor.Stats(),
		"trace_store": s.store.Stats(),
	})
}

type ingestRequest struct {
	TraceID string `json:"trace_id"`
	Text    string `json:"text"`
}

// handleIngest accepts a single trace payload and blocks until the
// Ingestion Actor has either stored or deduplicated it.
func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	traceID, ok := parseHexTraceID(req.TraceID)
	if !ok {
		traceID = randomTraceID()
	}

	result, err := s.actor.Ingest(r.Context(), ingestion.Payload{TraceID: traceID, Text: req.Text})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type queryRequest struct {
	Text string `json:"text"`
}

// handleQuery plans a natural-language query, then executes it against the
// Trace Store the same way for every intent: RangeScan over the plan's time
// range (all time up to now when it has none), filter by the plan's
// filters, truncate to the plan's limit, and return the plan together with
// the results.
func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	plan := s.planner.Plan(req.Text)

	start, end := int64(0), time.Now().UnixMicro()
	if plan.TimeRange != nil {
		start, end = plan.TimeRange.StartUS, plan.TimeRange.EndUS
	}

	edges, err := s.store.RangeScan(r.Context(), defaultTenantID, start, end)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	filtered := filterEdges(edges, plan)
	if plan.Limit > 0 && len(filtered) > plan.Limit {
		filtered = filtered[:plan.Limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"plan":    plan,
		"results": filtered,
	})
}

const defaultTenantID = 1

func filterEdges(edges []model.Edge, plan nlquery.SemanticQuery) []model.Edge {
	hasErr, wantErr := plan.Filters["has_error"]
	spanType, wantType := plan.Filters["span_type"]

	out := make([]model.Edge, 0, len(edges))
	for _, e := range edges {
		if wantErr && hasErr == "true" && !e.HasError() {
			continue
		}
		if wantType && e.SpanType.String() != spanType {
			continue
		}
		out = append(out, e)
	}
	return out
}

type evaluateRequest struct {
	TraceID      string   `json:"trace_id"`
	Input        string   `json:"input"`
	Output       string   `json:"output"`
	Reference    string   `json:"reference,omitempty"`
	EvaluatorIDs []string `json:"evaluator_ids"`
}

func (s *server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	traceID, _ := parseHexTraceID(req.TraceID)

	trace := evaluator.TraceContext{
		TraceID: traceID,
		Input:   req.Input,
		Output:  req.Output,
	}
	if req.Reference != "" {
		trace.Context = []string{req.Reference}
	}
	results := s.registry.EvaluateTrace(r.Context(), trace, req.EvaluatorIDs, s.cfg.Evaluator.EvalTimeout)
	writeJSON(w, http.StatusOK, results)
}

func parseHexTraceID(s string) (model.TraceID, bool) {
	if len(s) != 32 {
		return model.TraceID{}, false
	}
	hi, errHi := strconv.ParseUint(s[:16], 16, 64)
	lo, errLo := strconv.ParseUint(s[16:], 16, 64)
	if errHi != nil || errLo != nil {
		return model.TraceID{}, false
	}
	return model.TraceID{Hi: hi, Lo: lo}, true
}

// randomTraceID mints a trace id for ingest requests that omit one,
// borrowing the upper/lower 64 bits of a random UUID.
func randomTraceID() model.TraceID {
	u := uuid.New()
	return model.TraceID{
		Hi: binary.BigEndian.Uint64(u[0:8]),
		Lo: binary.BigEndian.Uint64(u[8:16]),
	}
}
