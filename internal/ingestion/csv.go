package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/54b3r/toonify-go/internal/song"
)

// Row is one track read from the corpus CSV.
type Row struct {
	// Name is the track title.
	Name string
	// Artists is the artists field exactly as it appears in the corpus.
	Artists string
	// Features are the six acoustic scalars.
	Features song.Features
}

// requiredColumns lists the header names ReadCSV needs, in error order.
var requiredColumns = append([]string{song.KeyName, song.KeyArtists}, song.FeatureKeys...)

// ReadCSV parses a corpus CSV. The header must contain name, artists and
// the six feature columns; other columns are ignored. A missing column or
// a non-numeric feature value is an error naming the column.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("ingestion: csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("ingestion: read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := col[h]; !dup {
			col[h] = i
		}
	}
	for _, c := range requiredColumns {
		if _, ok := col[c]; !ok {
			return nil, fmt.Errorf("ingestion: column %q not found in the csv", c)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingestion: read line %d: %w", line, err)
		}

		field := func(name string) string {
			if i := col[name]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		num := func(name string) (float64, error) {
			v, err := strconv.ParseFloat(field(name), 64)
			if err != nil {
				return 0, fmt.Errorf("ingestion: line %d: column %q: %w", line, name, err)
			}
			return v, nil
		}

		row := Row{Name: field(song.KeyName), Artists: field(song.KeyArtists)}
		targets := []*float64{
			&row.Features.Danceability,
			&row.Features.Energy,
			&row.Features.Acousticness,
			&row.Features.Liveness,
			&row.Features.Tempo,
			&row.Features.Valence,
		}
		for i, key := range song.FeatureKeys {
			v, err := num(key)
			if err != nil {
				return nil, err
			}
			*targets[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
