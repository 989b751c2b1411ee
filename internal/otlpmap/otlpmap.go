// Package otlpmap implements the pure OTLP-span-to-TracePayload mapping
// rules of spec.md §6. It is data-shaping only: no network server, no OTLP
// receiver — just the conversion a receiver would call per span.
package otlpmap

import (
	"encoding/binary"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/cespare/xxhash/v2"

	"github.com/agentreplay/agentreplay-sub001/internal/model"
)

// TracePayload is the ingestion-facing shape spec.md §6 names: trace_id and
// text feed the embedding/ingestion pipeline, Edge is the full structured
// record persisted on accept.
type TracePayload struct {
	TraceID model.TraceID
	Text    string
	Edge    model.Edge
}

const (
	defaultTenantID  uint64 = 1
	defaultProjectID uint64 = 0
)

var genAISpanTypeWords = map[string]model.SpanType{
	"planning":  model.SpanPlanning,
	"reasoning": model.SpanReasoning,
	"synthesis": model.SpanSynthesis,
	"response":  model.SpanResponse,
}

// MapSpan converts one OTLP span into a TracePayload, per spec.md §6.
func MapSpan(span sdktrace.ReadOnlySpan) TracePayload {
	sc := span.SpanContext()
	otelTraceID := sc.TraceID()
	otelSpanID := sc.SpanID()

	attrs := span.Attributes()
	resourceAttrs := []attribute.KeyValue(nil)
	if res := span.Resource(); res != nil {
		resourceAttrs = res.Attributes()
	}

	edge := model.Edge{
		EdgeID:       spanIDToTraceID(otelSpanID),
		TimestampUS:  span.StartTime().UnixMicro(),
		DurationUS:   span.EndTime().UnixMicro() - span.StartTime().UnixMicro(),
		TenantID:     resolveTenantID(resourceAttrs),
		ProjectID:    resolveProjectID(resourceAttrs),
		SessionID:    sessionIDFromTraceID(otelTraceID),
		SpanType:     inferSpanType(attrs, span.SpanKind()),
		CausalParent: parentToTraceID(span.Parent()),
		TokenCount:   tokenCount(attrs),
		Environment:  attrString(resourceAttrs, "deployment.environment"),
	}
	if span.Status().Code == codesError {
		edge.Flags |= model.FlagError
	}
	edge.Checksum = model.Fingerprint(edge)

	return TracePayload{
		TraceID: edge.EdgeID,
		Text:    canonicalText(attrs, span.Name()),
		Edge:    edge,
	}
}

// codesError mirrors go.opentelemetry.io/otel/codes.Error without adding a
// new import solely for one constant comparison; Status().Code's underlying
// type is codes.Code, an int, and codes.Error == 1 is part of the stable
// OTel API surface.
const codesError = 1

func spanIDToTraceID(id trace.SpanID) model.TraceID {
	if !id.IsValid() {
		return model.Zero
	}
	return model.TraceID{Hi: 0, Lo: binary.BigEndian.Uint64(id[:])}
}

func parentToTraceID(parent trace.SpanContext) model.TraceID {
	if !parent.IsValid() || !parent.HasSpanID() {
		return model.Zero
	}
	return spanIDToTraceID(parent.SpanID())
}

func sessionIDFromTraceID(id trace.TraceID) uint64 {
	if !id.IsValid() {
		return 0
	}
	return binary.BigEndian.Uint64(id[0:8])
}

func resolveTenantID(resourceAttrs []attribute.KeyValue) uint64 {
	for _, key := range []string{"tenant_id", "flowtrace.tenant_id", "service.namespace"} {
		if v := attrString(resourceAttrs, key); v != "" {
			return uintOrHash(v)
		}
	}
	return defaultTenantID
}

func resolveProjectID(resourceAttrs []attribute.KeyValue) uint64 {
	for _, key := range []string{"project_id", "flowtrace.project_id"} {
		if v := attrString(resourceAttrs, key); v != "" {
			return uintOrHash(v)
		}
	}
	if name := attrString(resourceAttrs, "service.name"); name != "" {
		return xxhash.Sum64String(name)
	}
	return defaultProjectID
}

// uintOrHash parses v as a base-10 uint64; non-numeric tenant/project
// identifiers (e.g. a UUID or slug) are hashed instead of rejected, since
// the Governor's shard/sketch keys only need a stable uint64, not a
// human-readable one.
func uintOrHash(v string) uint64 {
	if n, err := strconv.ParseUint(v, 10, 64); err == nil {
		return n
	}
	return xxhash.Sum64String(v)
}

func attrString(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func attrInt64(attrs []attribute.KeyValue, key string) (int64, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.AsInt64(), true
		}
	}
	return 0, false
}

// inferSpanType follows spec.md §6: GenAI attributes first, span kind as a
// fallback. gen_ai.agentreplay.step (when present) names the role directly;
// otherwise gen_ai.operation.name and well-known db/http attributes narrow
// it, and SpanKind covers whatever's left.
func inferSpanType(attrs []attribute.KeyValue, kind trace.SpanKind) model.SpanType {
	if step := strings.ToLower(attrString(attrs, "gen_ai.agentreplay.step")); step != "" {
		if st, ok := genAISpanTypeWords[step]; ok {
			return st
		}
	}
	switch strings.ToLower(attrString(attrs, "gen_ai.operation.name")) {
	case "execute_tool":
		return model.SpanToolCall
	case "embeddings":
		return model.SpanEmbedding
	case "chat", "generate_content", "text_completion":
		return model.SpanReasoning
	}
	if attrString(attrs, "db.system") != "" {
		return model.SpanDatabase
	}
	if attrString(attrs, "http.method") != "" || attrString(attrs, "http.request.method") != "" {
		return model.SpanHTTPCall
	}
	switch kind {
	case trace.SpanKindServer, trace.SpanKindClient:
		return model.SpanHTTPCall
	case trace.SpanKindInternal:
		return model.SpanFunction
	default:
		return model.SpanUnknown
	}
}

func tokenCount(attrs []attribute.KeyValue) int64 {
	if total, ok := attrInt64(attrs, "gen_ai.usage.total_tokens"); ok {
		return total
	}
	in, _ := attrInt64(attrs, "gen_ai.usage.input_tokens")
	out, _ := attrInt64(attrs, "gen_ai.usage.output_tokens")
	return in + out
}

// canonicalText is the text used for embedding: prompt plus completion when
// GenAI content attributes are present, falling back to the span name.
func canonicalText(attrs []attribute.KeyValue, spanName string) string {
	prompt := attrString(attrs, "gen_ai.prompt")
	completion := attrString(attrs, "gen_ai.completion")
	if prompt == "" && completion == "" {
		return spanName
	}
	var b strings.Builder
	b.WriteString(prompt)
	if prompt != "" && completion != "" {
		b.WriteString("\n")
	}
	b.WriteString(completion)
	return b.String()
}
