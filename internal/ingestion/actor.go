// Package ingestion implements the long-running ingestion actor: a single
// goroutine that batches incoming traces by size or time, embeds them, and
// hands the batch to the governor for deduplication.
package ingestion

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentreplay/agentreplay-sub001/internal/embedding"
	"github.com/agentreplay/agentreplay-sub001/internal/governor"
	"github.com/agentreplay/agentreplay-sub001/internal/model"
)

// Config parameterizes the Actor. Zero values fall back to spec.md §4.7's
// defaults.
type Config struct {
	MaxBatchSize    int
	MaxWaitTime     time.Duration
	ChannelCapacity int
	EmbeddingDim    int
	Provider        embedding.Provider
}

func (c Config) withDefaults() Config {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 64
	}
	if c.MaxWaitTime <= 0 {
		c.MaxWaitTime = 20 * time.Millisecond
	}
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = 4096
	}
	if c.Provider == nil {
		c.Provider = embedding.NewDeterministic(c.EmbeddingDim, true, 0)
	}
	return c
}

// Payload is one trace submitted for ingestion.
type Payload struct {
	TraceID model.TraceID
	Text    string
}

// ResultKind distinguishes the three IngestionResult variants.
type ResultKind int

const (
	Stored ResultKind = iota
	Deduplicated
	Failed
)

// Result is the outcome of ingesting one payload.
type Result struct {
	Kind ResultKind

	TraceID model.TraceID

	Embedding []float32 // populated when Kind == Stored

	SimilarTo  model.TraceID // populated when Kind == Deduplicated
	Similarity float64

	Err error // populated when Kind == Failed
}

type request struct {
	payload Payload
	resp    chan Result
}

// Actor is the single-goroutine batching loop described in spec.md §4.7.
// Its only shared mutable state touched from other goroutines is the
// governor's own per-shard locks; the actor's internal batch bookkeeping
// never needs synchronization since it is only ever read and written by Run.
type Actor struct {
	cfg      Config
	governor *governor.Governor
	reqCh    chan request

	processed    atomic.Uint64
	stored       atomic.Uint64
	deduplicated atomic.Uint64
	failed       atomic.Uint64
	batches      atomic.Uint64
}

// New constructs an Actor. Call Run in its own goroutine to start the loop.
func New(cfg Config, gov *governor.Governor) *Actor {
	cfg = cfg.withDefaults()
	return &Actor{
		cfg:      cfg,
		governor: gov,
		reqCh:    make(chan request, cfg.ChannelCapacity),
	}
}

// Ingest submits one payload and blocks until its decision is ready or ctx
// is canceled. Backpressure comes from reqCh's bounded capacity: once full,
// this call blocks on send rather than silently dropping work.
func (a *Actor) Ingest(ctx context.Context, p Payload) (Result, error) {
	req := request{payload: p, resp: make(chan Result, 1)}
	select {
	case a.reqCh <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-req.resp:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// IngestMany submits every payload and collects results in input order.
func (a *Actor) IngestMany(ctx context.Context, payloads []Payload) ([]Result, error) {
	out := make([]Result, len(payloads))
	for i, p := range payloads {
		r, err := a.Ingest(ctx, p)
		if err != nil {
			return out, err
		}
		out[i] = r
	}
	return out, nil
}

// Stats is the snapshot returned by Actor.Stats.
type Stats struct {
	Processed    uint64
	Stored       uint64
	Deduplicated uint64
	Failed       uint64
	Batches      uint64
}

// AvgBatchSize is Processed/Batches, or 0 if no batch has been processed yet.
func (s Stats) AvgBatchSize() float64 {
	if s.Batches == 0 {
		return 0
	}
	return float64(s.Processed) / float64(s.Batches)
}

// Stats may be read concurrently with Run; every field is an atomic counter.
func (a *Actor) Stats() Stats {
	return Stats{
		Processed:    a.processed.Load(),
		Stored:       a.stored.Load(),
		Deduplicated: a.deduplicated.Load(),
		Failed:       a.failed.Load(),
		Batches:      a.batches.Load(),
	}
}

// Run drives the batching loop until ctx is canceled, flushing any pending
// batch before returning. Callers run this in its own goroutine.
func (a *Actor) Run(ctx context.Context) {
	var batch []request
	var timer *time.Timer
	var timerC <-chan time.Time

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	defer stopTimer()

	for {
		if len(batch) == 0 {
			// Step 1: no batch in progress, wait indefinitely for the first message.
			select {
			case req := <-a.reqCh:
				batch = append(batch, req)
				if len(batch) >= a.cfg.MaxBatchSize {
					a.processBatch(ctx, batch)
					batch = nil
					continue
				}
				timer = time.NewTimer(a.cfg.MaxWaitTime)
				timerC = timer.C
			case <-ctx.Done():
				return
			}
			continue
		}

		// Step 2: batch in progress, wait for the next message or the timeout.
		select {
		case req := <-a.reqCh:
			batch = append(batch, req)
			if len(batch) >= a.cfg.MaxBatchSize {
				stopTimer()
				a.processBatch(ctx, batch)
				batch = nil
			}
		case <-timerC:
			stopTimer()
			a.processBatch(ctx, batch)
			batch = nil
		case <-ctx.Done():
			stopTimer()
			a.processBatch(context.Background(), batch)
			return
		}
	}
}

func (a *Actor) processBatch(ctx context.Context, batch []request) {
	a.batches.Add(1)
	texts := make([]string, len(batch))
	for i, req := range batch {
		texts[i] = req.payload.Text
	}

	embeddings, err := a.cfg.Provider.EmbedBatch(ctx, texts)
	if err != nil {
		log.Error().Err(err).Int("batch_size", len(batch)).Msg("embedding batch failed, failing every payload in batch")
		for _, req := range batch {
			a.processed.Add(1)
			a.failed.Add(1)
			req.resp <- Result{Kind: Failed, TraceID: req.payload.TraceID, Err: err}
		}
		return
	}

	items := make([]governor.Item, len(batch))
	for i, req := range batch {
		items[i] = governor.Item{TraceID: req.payload.TraceID, Embedding: embeddings[i]}
	}
	decisions := a.governor.ProcessBatch(items)

	for i, req := range batch {
		a.processed.Add(1)
		d := decisions[i]
		if d.Action == governor.Store {
			a.stored.Add(1)
			req.resp <- Result{Kind: Stored, TraceID: req.payload.TraceID, Embedding: embeddings[i]}
		} else {
			a.deduplicated.Add(1)
			req.resp <- Result{
				Kind:       Deduplicated,
				TraceID:    req.payload.TraceID,
				SimilarTo:  d.SimilarTo,
				Similarity: d.Similarity,
			}
		}
	}
}
