package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

// openTestIndex opens an in-memory SQLiteIndex for use in tests.
func openTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	s, err := OpenSQLite(":memory:", "songs")
	if err != nil {
		t.Fatalf("open in-memory index: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seed creates a 3-d collection holding recs.
func seed(t *testing.T, s *SQLiteIndex, recs ...Record) {
	t.Helper()
	ctx := context.Background()
	if err := s.EnsureCollection(ctx, 3, false); err != nil {
		t.Fatalf("ensure collection: %v", err)
	}
	if err := s.Upsert(ctx, recs); err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func rec(id string, v ...float32) Record {
	return Record{
		ID:        id,
		Embedding: v,
		Document:  "doc " + id,
		Metadata:  map[string]any{"name": "song " + id, "tempo": 120.5},
	}
}

func ids(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func Test_SQLite_QueryOrdersByDistance(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	seed(t, s,
		rec("0", 1, 0, 0),
		rec("1", 0, 1, 0),
		rec("2", 0.9, 0.1, 0),
	)

	got, err := s.Query(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if fmt.Sprint(ids(got)) != "[0 2]" {
		t.Fatalf("ids = %v, want [0 2]", ids(got))
	}
	if got[0].Distance > 1e-6 {
		t.Errorf("exact match distance = %v, want ~0", got[0].Distance)
	}
	if got[0].Document != "doc 0" {
		t.Errorf("document = %q", got[0].Document)
	}
	if got[0].Metadata["name"] != "song 0" || got[0].Metadata["tempo"] != 120.5 {
		t.Errorf("metadata = %v", got[0].Metadata)
	}
}

func Test_SQLite_FewerRecordsThanK(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	seed(t, s, rec("0", 1, 0, 0), rec("1", 0, 1, 0), rec("2", 0, 0, 1))

	got, err := s.Query(context.Background(), []float32{1, 1, 1}, 15)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("want 3 results, got %d", len(got))
	}
}

func Test_SQLite_TopKBound(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	var recs []Record
	for i := range 10 {
		recs = append(recs, rec(fmt.Sprint(i), float32(i+1), 1, 0))
	}
	seed(t, s, recs...)

	for _, k := range []int{1, 3, 10, 20} {
		got, err := s.Query(context.Background(), []float32{1, 1, 0}, k)
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		if want := min(k, 10); len(got) != want {
			t.Errorf("k=%d: got %d results, want %d", k, len(got), want)
		}
	}
}

func Test_SQLite_TiesAreStable(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	seed(t, s,
		rec("7", 0.5, 0.5, 0),
		rec("3", 0.5, 0.5, 0),
		rec("5", 0, 0, 1),
	)

	first, err := s.Query(context.Background(), []float32{1, 1, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if fmt.Sprint(ids(first)) != "[3 7]" {
		t.Fatalf("ids = %v, want both tied songs ordered by id", ids(first))
	}
	for range 5 {
		again, err := s.Query(context.Background(), []float32{1, 1, 0}, 2)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if fmt.Sprint(ids(again)) != fmt.Sprint(ids(first)) {
			t.Fatalf("order changed: %v vs %v", ids(again), ids(first))
		}
	}
}

func Test_SQLite_MissingCollection(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)

	_, err := s.Query(context.Background(), []float32{1, 0, 0}, 5)
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("want ErrCollectionNotFound, got %v", err)
	}
}

func Test_SQLite_UnopenablePath(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "missing", "dir", "index.db")

	_, err := OpenSQLite(path, "songs")
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("want ErrIndexUnavailable, got %v", err)
	}
}

func Test_SQLite_InvalidK(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	seed(t, s, rec("0", 1, 0, 0))

	if _, err := s.Query(context.Background(), []float32{1, 0, 0}, 0); err == nil {
		t.Fatal("want error for k=0")
	}
}

func Test_SQLite_DimensionMismatch(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	seed(t, s, rec("0", 1, 0, 0))

	if _, err := s.Query(context.Background(), []float32{1, 0}, 1); err == nil {
		t.Error("want error for 2-d query against 3-d collection")
	}
	if err := s.Upsert(context.Background(), []Record{rec("9", 1, 0)}); err == nil {
		t.Error("want error for 2-d record in 3-d collection")
	}
	if err := s.EnsureCollection(context.Background(), 4, false); err == nil {
		t.Error("want error when existing collection has a different dimension")
	}
}

func Test_SQLite_UpsertReplacesAndInvalidates(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	seed(t, s, rec("0", 1, 0, 0), rec("1", 0, 1, 0))
	ctx := context.Background()

	if _, err := s.Query(ctx, []float32{0, 0, 1}, 1); err != nil {
		t.Fatalf("warm query: %v", err)
	}
	if err := s.Upsert(ctx, []Record{rec("1", 0, 0, 1)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Query(ctx, []float32{0, 0, 1}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].ID != "1" {
		t.Errorf("want updated record 1 first of 2, got %v", ids(got))
	}
}

func Test_SQLite_RecreateDropsRecords(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	seed(t, s, rec("0", 1, 0, 0), rec("1", 0, 1, 0))
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, 3, true); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	got, err := s.Query(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want empty collection after recreate, got %v", ids(got))
	}
}

func Test_SQLite_UpsertWithoutCollection(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)

	err := s.Upsert(context.Background(), []Record{rec("0", 1, 0, 0)})
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("want ErrCollectionNotFound, got %v", err)
	}
}

func Test_SQLite_Ping(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
	if s.Name() != "sqlite" {
		t.Errorf("name = %q", s.Name())
	}
}
