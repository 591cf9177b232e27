package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Milvus field names.
const (
	milvusFieldID       = "id"
	milvusFieldDocument = "document"
	milvusFieldMetadata = "metadata"
	milvusFieldVector   = "embedding"
)

// HNSW build and search parameters.
const (
	milvusHNSWM        = 16
	milvusHNSWEfBuild  = 200
	milvusHNSWEfSearch = 64
)

// MilvusIndex implements Store backed by a Milvus instance.
type MilvusIndex struct {
	// client is the Milvus gRPC client.
	client client.Client
	// collection is the Milvus collection name.
	collection string
}

// OpenMilvus connects to the Milvus server at addr and loads the collection
// into memory when it exists.
func OpenMilvus(ctx context.Context, addr, collection string) (*MilvusIndex, error) {
	c, err := client.NewClient(ctx, client.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("%w: milvus: connect %s: %v", ErrIndexUnavailable, addr, err)
	}
	s := &MilvusIndex{client: c, collection: collection}

	exists, err := c.HasCollection(ctx, collection)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: milvus: %v", ErrIndexUnavailable, err)
	}
	if exists {
		if err := c.LoadCollection(ctx, collection, false); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("milvus: load collection %q: %w", collection, err)
		}
	}
	return s, nil
}

// Name implements Store.
func (s *MilvusIndex) Name() string { return "milvus" }

// Ping implements Store.
func (s *MilvusIndex) Ping(ctx context.Context) error {
	if _, err := s.client.HasCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("%w: milvus: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// EnsureCollection implements Store.
func (s *MilvusIndex) EnsureCollection(ctx context.Context, dimension int, recreate bool) error {
	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("milvus: check collection: %w", err)
	}
	if exists && recreate {
		if err := s.client.DropCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("milvus: drop collection %q: %w", s.collection, err)
		}
		exists = false
	}
	if exists {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "song acoustic-feature embeddings",
		Fields: []*entity.Field{
			{
				Name:       milvusFieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{entity.TypeParamMaxLength: "64"},
			},
			{
				Name:       milvusFieldDocument,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{entity.TypeParamMaxLength: "1024"},
			},
			{
				Name:     milvusFieldMetadata,
				DataType: entity.FieldTypeJSON,
			},
			{
				Name:       milvusFieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{entity.TypeParamDim: strconv.Itoa(dimension)},
			},
		},
	}
	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("milvus: create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, milvusHNSWM, milvusHNSWEfBuild)
	if err != nil {
		return fmt.Errorf("milvus: build index params: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.collection, milvusFieldVector, idx, false); err != nil {
		return fmt.Errorf("milvus: create index: %w", err)
	}
	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("milvus: load collection: %w", err)
	}
	return nil
}

// Upsert implements Store.
func (s *MilvusIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	dim := len(records[0].Embedding)
	ids := make([]string, len(records))
	docs := make([]string, len(records))
	metas := make([][]byte, len(records))
	vecs := make([][]float32, len(records))
	for i, r := range records {
		if len(r.Embedding) != dim {
			return fmt.Errorf("milvus: record %q has dimension %d, batch uses %d", r.ID, len(r.Embedding), dim)
		}
		md, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("milvus: marshal metadata for %q: %w", r.ID, err)
		}
		ids[i], docs[i], metas[i], vecs[i] = r.ID, r.Document, md, r.Embedding
	}

	_, err := s.client.Upsert(ctx, s.collection, "",
		entity.NewColumnVarChar(milvusFieldID, ids),
		entity.NewColumnVarChar(milvusFieldDocument, docs),
		entity.NewColumnJSONBytes(milvusFieldMetadata, metas),
		entity.NewColumnFloatVector(milvusFieldVector, dim, vecs),
	)
	if err != nil {
		return fmt.Errorf("milvus: upsert: %w", err)
	}
	if err := s.client.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("milvus: flush: %w", err)
	}
	return nil
}

// Query implements Querier.
func (s *MilvusIndex) Query(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if err := validateQuery(embedding, k); err != nil {
		return nil, err
	}
	sp, err := entity.NewIndexHNSWSearchParam(max(milvusHNSWEfSearch, k))
	if err != nil {
		return nil, fmt.Errorf("milvus: search params: %w", err)
	}

	results, err := s.client.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		[]string{milvusFieldDocument, milvusFieldMetadata},
		[]entity.Vector{entity.FloatVector(embedding)},
		milvusFieldVector,
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		return nil, s.classify(ctx, err)
	}
	if len(results) == 0 {
		return []Match{}, nil
	}

	res := results[0]
	ids, ok := res.IDs.(*entity.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("milvus: unexpected id column type %T", res.IDs)
	}
	docCol, _ := res.Fields.GetColumn(milvusFieldDocument).(*entity.ColumnVarChar)
	metaCol, _ := res.Fields.GetColumn(milvusFieldMetadata).(*entity.ColumnJSONBytes)

	matches := make([]Match, 0, res.ResultCount)
	for i := 0; i < res.ResultCount; i++ {
		id, err := ids.ValueByIdx(i)
		if err != nil {
			return nil, fmt.Errorf("milvus: read id %d: %w", i, err)
		}
		m := Match{ID: id, Distance: similarityToDistance(res.Scores[i])}
		if docCol != nil {
			m.Document, _ = docCol.ValueByIdx(i)
		}
		if metaCol != nil {
			raw, err := metaCol.ValueByIdx(i)
			if err == nil && len(raw) > 0 {
				if err := json.Unmarshal(raw, &m.Metadata); err != nil {
					return nil, fmt.Errorf("milvus: decode metadata for %q: %w", id, err)
				}
			}
		}
		matches = append(matches, m)
	}
	return sortMatches(matches, k), nil
}

// classify maps a failed search onto the package sentinels.
func (s *MilvusIndex) classify(ctx context.Context, searchErr error) error {
	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: milvus: %v", ErrIndexUnavailable, searchErr)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	return fmt.Errorf("milvus: search failed: %w", searchErr)
}

// Close closes the Milvus connection.
func (s *MilvusIndex) Close() error {
	return s.client.Close()
}
