// Package nlquery turns a free-form question about trace data into a
// structured SemanticQuery a downstream search/analysis layer can execute,
// per spec.md §4.11.
package nlquery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agentreplay/agentreplay-sub001/internal/model"
)

// Intent classifies what kind of question is being asked, in the fixed
// priority order Explain > Compare > Analyze > Search > List used when the
// keyword classifier finds more than one non-zero match.
type Intent int

const (
	IntentList Intent = iota
	IntentSearch
	IntentAnalyze
	IntentCompare
	IntentExplain
)

func (i Intent) String() string {
	switch i {
	case IntentExplain:
		return "explain"
	case IntentCompare:
		return "compare"
	case IntentAnalyze:
		return "analyze"
	case IntentSearch:
		return "search"
	default:
		return "list"
	}
}

// TimeRange bounds a query to a window of ingestion time, in microseconds
// since epoch.
type TimeRange struct {
	StartUS int64
	EndUS   int64
}

// SemanticQuery is the normalized output of planning a natural-language
// question, per spec.md §4.11.
type SemanticQuery struct {
	QueryText         string
	Intent            Intent
	Limit             int
	MinSimilarity     float64
	Filters           map[string]string
	TimeRange         *TimeRange
	IncludeHighlights bool
	Rerank            bool
	Aggregate         bool
	Confidence        float64
}

const defaultLimit = 20

// template is a single regex-matched query shape that bypasses the intent
// classifier entirely, per spec.md §4.11 step 1.
type template struct {
	name    string
	re      *regexp.Regexp
	intent  Intent
	build   func(q *SemanticQuery, m []string, clock func() time.Time)
}

var templates = []template{
	{
		name:   "errors_from_time",
		re:     regexp.MustCompile(`(?i)^(?:find|show|list)\s+(?:me\s+)?(?:all\s+)?errors?\s+from\s+(.+)$`),
		intent: IntentSearch,
		build: func(q *SemanticQuery, m []string, clock func() time.Time) {
			q.Filters["has_error"] = "true"
			if tr, ok := extractTemporal(m[1], clock); ok {
				q.TimeRange = tr
			}
		},
	},
	{
		name:   "why_ref_failed",
		re:     regexp.MustCompile(`(?i)^why\s+did\s+(\S+)\s+fail\??$`),
		intent: IntentExplain,
		build: func(q *SemanticQuery, m []string, clock func() time.Time) {
			q.Filters["ref"] = m[1]
			q.Filters["has_error"] = "true"
		},
	},
	{
		name:   "slow_responses_over_seconds",
		re:     regexp.MustCompile(`(?i)^slow\s+responses?\s+over\s+(\d+(?:\.\d+)?)\s+seconds?$`),
		intent: IntentSearch,
		build: func(q *SemanticQuery, m []string, clock func() time.Time) {
			if n, err := strconv.ParseFloat(m[1], 64); err == nil {
				q.Filters["duration_ms_gt"] = fmt.Sprintf("%d", int64(n*1000))
			}
		},
	},
}

// keywordSets score a free-form query against each intent; the highest
// scoring non-zero intent wins, ties broken by the fixed priority order.
var keywordSets = map[Intent][]string{
	IntentExplain: {"why", "explain", "reason", "cause", "root cause"},
	IntentCompare: {"compare", "versus", "vs", "difference between", "better than"},
	IntentAnalyze: {"analyze", "average", "trend", "distribution", "summarize", "aggregate"},
	IntentSearch:  {"find", "show", "search", "look for", "errors", "slow", "failures"},
	IntentList:    {"list", "all", "every"},
}

// intentPriority orders ties when more than one intent scores equally;
// earlier entries win.
var intentPriority = []Intent{IntentExplain, IntentCompare, IntentAnalyze, IntentSearch, IntentList}

var errorKeywords = []string{"error", "errors", "fail", "failed", "failure", "failures", "exception"}

var spanTypeWords = map[string]model.SpanType{
	"tool call":      model.SpanToolCall,
	"tool calls":     model.SpanToolCall,
	"retrieval":      model.SpanRetrieval,
	"retrievals":     model.SpanRetrieval,
	"embedding":      model.SpanEmbedding,
	"embeddings":     model.SpanEmbedding,
	"database call":  model.SpanDatabase,
	"http call":      model.SpanHTTPCall,
	"reasoning step": model.SpanReasoning,
	"reasoning":      model.SpanReasoning,
	"planning":       model.SpanPlanning,
	"response":       model.SpanResponse,
}

var (
	reLastN      = regexp.MustCompile(`(?i)last\s+(\d+)\s+(hour|minute|min|day|week)s?`)
	rePastN      = regexp.MustCompile(`(?i)past\s+(\d+)\s+(hour|minute|min|day|week)s?`)
	reLastUnit   = regexp.MustCompile(`(?i)(?:last|past)\s+(hour|minute|min|day|week)s?\b`)
	reOverSecs   = regexp.MustCompile(`(?i)over\s+(\d+(?:\.\d+)?)\s+seconds?`)
	reMoreTokens = regexp.MustCompile(`(?i)more\s+than\s+(\d+)\s+tokens?`)
	reLessMS     = regexp.MustCompile(`(?i)less\s+than\s+(\d+)\s*ms`)
)

// Planner turns free-form text into a SemanticQuery. Clock defaults to
// time.Now but is overridable so named periods ("today", "yesterday")
// resolve against a caller-supplied ingestion clock in tests.
type Planner struct {
	clock func() time.Time
}

// NewPlanner constructs a Planner. If clock is nil, time.Now is used.
func NewPlanner(clock func() time.Time) *Planner {
	if clock == nil {
		clock = time.Now
	}
	return &Planner{clock: clock}
}

// Plan builds a SemanticQuery from a free-form question.
func (p *Planner) Plan(text string) SemanticQuery {
	q := SemanticQuery{
		QueryText:     strings.TrimSpace(text),
		Limit:         defaultLimit,
		MinSimilarity: 0,
		Filters:       map[string]string{},
		Rerank:        true,
	}

	trimmed := strings.TrimSpace(text)
	for _, t := range templates {
		if m := t.re.FindStringSubmatch(trimmed); m != nil {
			q.Intent = t.intent
			q.Confidence = 0.9
			t.build(&q, m, p.clock)
			p.applyCommon(&q, trimmed)
			return q
		}
	}

	q.Intent = classifyIntent(trimmed)
	q.Confidence = 0.6
	p.applyCommon(&q, trimmed)
	return q
}

func classifyIntent(text string) Intent {
	lower := strings.ToLower(text)
	scores := map[Intent]int{}
	for intent, words := range keywordSets {
		for _, w := range words {
			if strings.Contains(lower, w) {
				scores[intent]++
			}
		}
	}
	best := IntentList
	bestScore := 0
	for _, intent := range intentPriority {
		if scores[intent] > bestScore {
			bestScore = scores[intent]
			best = intent
		}
	}
	return best
}

// applyCommon layers temporal, numeric, and structural extraction over
// whatever the template or classifier already populated; it runs for every
// plan regardless of how the intent was decided.
func (p *Planner) applyCommon(q *SemanticQuery, text string) {
	lower := strings.ToLower(text)

	if tr, ok := extractTemporal(text, p.clock); ok && q.TimeRange == nil {
		q.TimeRange = tr
	}

	if m := reOverSecs.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			q.Filters["duration_ms_gt"] = fmt.Sprintf("%d", int64(n*1000))
		}
	}
	if m := reMoreTokens.FindStringSubmatch(lower); m != nil {
		q.Filters["tokens_gt"] = m[1]
	}
	if m := reLessMS.FindStringSubmatch(lower); m != nil {
		q.Filters["duration_ms_lt"] = m[1]
	}

	for _, w := range errorKeywords {
		if strings.Contains(lower, w) {
			q.Filters["has_error"] = "true"
			break
		}
	}
	for phrase, st := range spanTypeWords {
		if strings.Contains(lower, phrase) {
			q.Filters["span_type"] = st.String()
			break
		}
	}

	if q.Intent == IntentAnalyze {
		q.Aggregate = true
	}
	if q.Intent == IntentSearch || q.Intent == IntentExplain {
		q.IncludeHighlights = true
	}
}

// extractTemporal resolves "last N units", "past N units", and named
// periods against clock, returning the microsecond window and whether any
// temporal expression was found.
func extractTemporal(text string, clock func() time.Time) (*TimeRange, bool) {
	now := clock()
	lower := strings.ToLower(text)

	if m := reLastN.FindStringSubmatch(lower); m != nil {
		return windowFromNow(now, m[1], m[2])
	}
	if m := rePastN.FindStringSubmatch(lower); m != nil {
		return windowFromNow(now, m[1], m[2])
	}
	if m := reLastUnit.FindStringSubmatch(lower); m != nil {
		return windowFromNow(now, "1", m[1])
	}
	switch {
	case strings.Contains(lower, "today"):
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return &TimeRange{StartUS: start.UnixMicro(), EndUS: now.UnixMicro()}, true
	case strings.Contains(lower, "yesterday"):
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		start := dayStart.AddDate(0, 0, -1)
		return &TimeRange{StartUS: start.UnixMicro(), EndUS: dayStart.UnixMicro()}, true
	case strings.Contains(lower, "this week"):
		weekday := int(now.Weekday())
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		start := dayStart.AddDate(0, 0, -weekday)
		return &TimeRange{StartUS: start.UnixMicro(), EndUS: now.UnixMicro()}, true
	}
	return nil, false
}

func windowFromNow(now time.Time, countStr, unit string) (*TimeRange, bool) {
	n, err := strconv.Atoi(countStr)
	if err != nil {
		return nil, false
	}
	var d time.Duration
	switch unit {
	case "minute", "min":
		d = time.Duration(n) * time.Minute
	case "hour":
		d = time.Duration(n) * time.Hour
	case "day":
		d = time.Duration(n) * 24 * time.Hour
	case "week":
		d = time.Duration(n) * 7 * 24 * time.Hour
	default:
		return nil, false
	}
	return &TimeRange{StartUS: now.Add(-d).UnixMicro(), EndUS: now.UnixMicro()}, true
}
