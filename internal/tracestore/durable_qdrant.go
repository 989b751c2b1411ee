package tracestore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// DurableVectorMirror is the optional external vector index the Facade
// writes through to alongside its in-process HNSW recall layer, so
// semantic_search survives a process restart. Narrower than the teacher's
// databases.VectorStore (no Delete/filter support) since the Facade only
// ever needs upsert-and-search.
type DurableVectorMirror interface {
	Upsert(ctx context.Context, id string, vector []float32) error
	SimilaritySearch(ctx context.Context, vector []float32, k int) ([]DurableHit, error)
	Close() error
}

// DurableHit is one durable-mirror search result.
type DurableHit struct {
	ID    string
	Score float64
}

// QdrantMirror is a DurableVectorMirror backed by Qdrant, adapted from the
// teacher's persistence/databases qdrant vector store: Qdrant only accepts
// UUID or integer point ids, so a deterministic UUID is derived from the
// trace id and the original id is carried in the payload.
type QdrantMirror struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

const originalIDField = "_original_id"

// NewQdrantMirror dials dsn ("host:port", optionally "?api_key=...") and
// ensures collection exists with cosine distance over dimension floats.
func NewQdrantMirror(dsn, collection string, dimension int) (*QdrantMirror, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	parsed, err := url.Parse("qdrant://" + dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	m := &QdrantMirror{client: client, collection: collection, dimension: dimension}
	if err := m.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return m, nil
}

func (m *QdrantMirror) ensureCollection(ctx context.Context) error {
	exists, err := m.client.CollectionExists(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if m.dimension <= 0 {
		return fmt.Errorf("qdrant mirror requires dimension > 0")
	}
	return m.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: m.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(m.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (m *QdrantMirror) pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (m *QdrantMirror) Upsert(ctx context.Context, id string, vector []float32) error {
	uuidStr := m.pointID(id)
	payload := map[string]any{}
	if uuidStr != id {
		payload[originalIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := m.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: m.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (m *QdrantMirror) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]DurableHit, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	limit := uint64(k)
	hits, err := m.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: m.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]DurableHit, 0, len(hits))
	for _, h := range hits {
		id := h.Id.GetUuid()
		if h.Payload != nil {
			if v, ok := h.Payload[originalIDField]; ok {
				id = v.GetStringValue()
			}
		}
		out = append(out, DurableHit{ID: id, Score: float64(h.Score)})
	}
	return out, nil
}

func (m *QdrantMirror) Close() error {
	return m.client.Close()
}
