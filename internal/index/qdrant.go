package index

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Reserved payload keys written alongside the song metadata.
const (
	qdrantKeyRecordID = "_record_id"
	qdrantKeyDocument = "_document"
)

// qdrantIDNamespace seeds deterministic UUIDs for non-numeric record IDs.
var qdrantIDNamespace = uuid.MustParse("6f1c2a4e-8a57-4c44-9d7e-3b1f0e5a9c21")

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string
	// Port is the Qdrant gRPC port (default: 6334).
	Port int
	// Collection is the Qdrant collection name to use.
	Collection string
	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string
	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Store backed by a Qdrant instance.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client
	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// OpenQdrant connects to Qdrant. The collection is not created here; a
// missing collection surfaces as ErrCollectionNotFound on Query.
func OpenQdrant(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant: create client: %v", ErrIndexUnavailable, err)
	}

	s := &QdrantIndex{client: client, cfg: cfg}
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// Name implements Store.
func (s *QdrantIndex) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (s *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: qdrant: health check: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// EnsureCollection implements Store.
func (s *QdrantIndex) EnsureCollection(ctx context.Context, dimension int, recreate bool) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists && recreate {
		if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
			return fmt.Errorf("qdrant: failed to drop collection %q: %w", s.cfg.Collection, err)
		}
		exists = false
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Upsert implements Store.
func (s *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		payload := make(map[string]any, len(r.Metadata)+2)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload[qdrantKeyRecordID] = r.ID
		payload[qdrantKeyDocument] = r.Document

		points = append(points, &qdrant.PointStruct{
			Id:      qdrantPointID(r.ID),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Query performs a cosine similarity search and returns the top-k results.
func (s *QdrantIndex) Query(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if err := validateQuery(embedding, k); err != nil {
		return nil, err
	}
	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, s.classify(ctx, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := Match{
			Distance: similarityToDistance(r.Score),
			Metadata: make(map[string]any, len(r.Payload)),
		}
		for key, v := range r.Payload {
			switch key {
			case qdrantKeyRecordID:
				m.ID = v.GetStringValue()
			case qdrantKeyDocument:
				m.Document = v.GetStringValue()
			default:
				m.Metadata[key] = qdrantValue(v)
			}
		}
		if m.ID == "" {
			m.ID = qdrantIDString(r.Id)
		}
		matches = append(matches, m)
	}
	return sortMatches(matches, k), nil
}

// classify maps a failed query onto the package sentinels by asking Qdrant
// whether the collection exists.
func (s *QdrantIndex) classify(ctx context.Context, queryErr error) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("%w: qdrant: %v", ErrIndexUnavailable, queryErr)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, s.cfg.Collection)
	}
	return fmt.Errorf("qdrant: search failed: %w", queryErr)
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// qdrantPointID maps a record ID onto a Qdrant point ID. Qdrant accepts only
// unsigned integers or UUIDs, so sequential row IDs map to numeric points
// and anything else to a name-based UUID.
func qdrantPointID(id string) *qdrant.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return qdrant.NewIDNum(n)
	}
	if u, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(u.String())
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(qdrantIDNamespace, []byte(id)).String())
}

// qdrantIDString renders a point ID when no record ID was stored.
func qdrantIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// qdrantValue converts a payload value into the plain Go value that
// encoding/json would have produced.
func qdrantValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_IntegerValue:
		return float64(k.IntegerValue)
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}
