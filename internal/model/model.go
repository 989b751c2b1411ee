// Package model holds the data types shared across the ingestion, governor,
// causal index, trace store, and evaluator packages: the trace edge, its
// payload, and the span-type/flag enums from the data model.
package model

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// TraceID is a 128-bit identifier, split as hi/lo to mirror the OTLP
// trace_id/span_id bit layout used by the external-interfaces mapping.
type TraceID struct {
	Hi uint64
	Lo uint64
}

// Zero is the sentinel "no parent" / "root" id.
var Zero TraceID

func (id TraceID) IsZero() bool { return id.Hi == 0 && id.Lo == 0 }

func (id TraceID) String() string {
	return fmt.Sprintf("%016x%016x", id.Hi, id.Lo)
}

// Bytes returns the 16-byte big-endian encoding, suitable as a map/sketch key.
func (id TraceID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], id.Hi)
	binary.BigEndian.PutUint64(b[8:16], id.Lo)
	return b
}

// SpanType tags the semantic role of a trace edge in an agent execution.
type SpanType int

const (
	SpanUnknown SpanType = iota
	SpanRoot
	SpanPlanning
	SpanReasoning
	SpanSynthesis
	SpanResponse
	SpanToolCall
	SpanToolResponse
	SpanRetrieval
	SpanEmbedding
	SpanDatabase
	SpanHTTPCall
	SpanFunction
	SpanError
	SpanCustom
)

func (s SpanType) String() string {
	switch s {
	case SpanRoot:
		return "root"
	case SpanPlanning:
		return "planning"
	case SpanReasoning:
		return "reasoning"
	case SpanSynthesis:
		return "synthesis"
	case SpanResponse:
		return "response"
	case SpanToolCall:
		return "tool_call"
	case SpanToolResponse:
		return "tool_response"
	case SpanRetrieval:
		return "retrieval"
	case SpanEmbedding:
		return "embedding"
	case SpanDatabase:
		return "database"
	case SpanHTTPCall:
		return "http_call"
	case SpanFunction:
		return "function"
	case SpanError:
		return "error"
	case SpanCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Flag bits for Edge.Flags.
const (
	FlagError uint32 = 1 << 0
)

// Edge is the immutable unit of observation: one LLM call, tool call,
// retrieval, or reasoning step inside an agent execution.
type Edge struct {
	EdgeID       TraceID
	TimestampUS  int64
	DurationUS   int64
	TenantID     uint64
	ProjectID    uint64
	AgentID      string
	SessionID    uint64
	SpanType     SpanType
	CausalParent TraceID
	TokenCount   int64
	Environment  string
	Flags        uint32
	Checksum     uint64
}

// HasError reports whether bit 0 of Flags is set.
func (e Edge) HasError() bool { return e.Flags&FlagError != 0 }

// Fingerprint recomputes the checksum deterministically from every field
// except Checksum itself, so mutation (which should never happen post
// commit) is detectable by comparing against e.Checksum.
func Fingerprint(e Edge) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeU64 := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeU64(e.EdgeID.Hi)
	writeU64(e.EdgeID.Lo)
	writeU64(uint64(e.TimestampUS))
	writeU64(uint64(e.DurationUS))
	writeU64(e.TenantID)
	writeU64(e.ProjectID)
	h.Write([]byte(e.AgentID))
	writeU64(e.SessionID)
	writeU64(uint64(e.SpanType))
	writeU64(e.CausalParent.Hi)
	writeU64(e.CausalParent.Lo)
	writeU64(uint64(e.TokenCount))
	h.Write([]byte(e.Environment))
	writeU64(uint64(e.Flags))
	return h.Sum64()
}

// NewEdge stamps Checksum via Fingerprint and returns the finished edge.
func NewEdge(e Edge) Edge {
	e.Checksum = Fingerprint(e)
	return e
}

// Verify reports whether e's Checksum matches its Fingerprint, i.e. whether
// the edge has been tampered with (or corrupted) since it was created.
func Verify(e Edge) bool {
	return e.Checksum == Fingerprint(e)
}
