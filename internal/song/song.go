// Package song defines the song-level data shared by the index, the
// ingestion job and the retrieval pipeline: the six acoustic features, the
// canonical document text embedded for each track, and the flat song-info
// record returned to callers.
package song

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Metadata keys stored alongside every indexed track.
const (
	KeyName         = "name"
	KeyArtists      = "artists"
	KeyDanceability = "danceability"
	KeyEnergy       = "energy"
	KeyAcousticness = "acousticness"
	KeyLiveness     = "liveness"
	KeyTempo        = "tempo"
	KeyValence      = "valence"
)

// FeatureKeys lists the acoustic feature columns in document order.
var FeatureKeys = []string{
	KeyDanceability,
	KeyEnergy,
	KeyAcousticness,
	KeyLiveness,
	KeyTempo,
	KeyValence,
}

// Features holds the six acoustic scalars that characterise a track's mood.
// Tempo is in BPM; the others are in [0, 1].
type Features struct {
	Danceability float64 `json:"danceability"`
	Energy       float64 `json:"energy"`
	Acousticness float64 `json:"acousticness"`
	Liveness     float64 `json:"liveness"`
	Tempo        float64 `json:"tempo"`
	Valence      float64 `json:"valence"`
}

// Document renders the canonical text that is embedded for a track. The
// layout and float rendering must stay byte-identical between ingestion and
// any index built elsewhere, otherwise query and corpus embeddings drift.
func Document(f Features) string {
	return fmt.Sprintf(
		"with danceability: %s,energy: %s,acousticness: %s,liveness: %s,tempo: %s,valence: %s",
		formatFloat(f.Danceability),
		formatFloat(f.Energy),
		formatFloat(f.Acousticness),
		formatFloat(f.Liveness),
		formatFloat(f.Tempo),
		formatFloat(f.Valence),
	)
}

// formatFloat renders v the way the corpus tooling does: shortest
// round-trip digits, with a trailing ".0" kept on integral values.
// Magnitudes below 1e-4 or at 1e16 and above switch to exponent form
// with a signed, two-digit exponent ("1.27e-05", "1e+16").
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if abs := math.Abs(v); v != 0 && (abs < 1e-4 || abs >= 1e16) {
		return padExponent(strconv.FormatFloat(v, 'e', -1, 64))
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// padExponent makes sure the exponent of an 'e' formatted number has at
// least two digits.
func padExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 || len(s)-i != 3 {
		return s
	}
	return s[:i+2] + "0" + s[i+2:]
}

// Metadata returns the metadata mapping stored with an indexed track.
func Metadata(name, artists string, f Features) map[string]any {
	return map[string]any{
		KeyName:         name,
		KeyArtists:      artists,
		KeyDanceability: f.Danceability,
		KeyEnergy:       f.Energy,
		KeyAcousticness: f.Acousticness,
		KeyLiveness:     f.Liveness,
		KeyTempo:        f.Tempo,
		KeyValence:      f.Valence,
	}
}
