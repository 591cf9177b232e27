package descriptor

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/54b3r/toonify-go/internal/song"
)

// ParseKind tags the outcome of ParseFeatures.
type ParseKind string

const (
	// Parsed means a JSON object with at least one feature was found.
	Parsed ParseKind = "parsed"
	// Unparsed means no usable object was found; only Raw is meaningful.
	Unparsed ParseKind = "unparsed"
)

// FeatureParse is the tagged result of reading the feature model output.
// Retrieval embeds Raw regardless of Kind; Features is for display and
// diagnostics only.
type FeatureParse struct {
	// Kind reports whether Features is populated.
	Kind ParseKind `json:"kind"`
	// Features holds the decoded values when Kind is Parsed. Fields the model
	// omitted are zero and listed in Missing.
	Features *song.Features `json:"features,omitempty"`
	// Missing lists feature keys absent from a parsed object.
	Missing []string `json:"missing,omitempty"`
	// Raw is the model output exactly as returned.
	Raw string `json:"-"`
}

// ParseFeatures extracts the first JSON object from text, tolerating code
// fences, surrounding prose, numbers quoted as strings and missing fields.
// It never fails: unusable text yields Kind Unparsed.
func ParseFeatures(text string) FeatureParse {
	out := FeatureParse{Kind: Unparsed, Raw: text}

	obj, ok := firstJSONObject(text)
	if !ok {
		return out
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return out
	}
	lower := make(map[string]any, len(fields))
	for k, v := range fields {
		lower[strings.ToLower(strings.TrimSpace(k))] = v
	}

	var (
		f     song.Features
		found int
	)
	targets := map[string]*float64{
		song.KeyDanceability: &f.Danceability,
		song.KeyEnergy:       &f.Energy,
		song.KeyAcousticness: &f.Acousticness,
		song.KeyLiveness:     &f.Liveness,
		song.KeyTempo:        &f.Tempo,
		song.KeyValence:      &f.Valence,
	}
	for _, key := range song.FeatureKeys {
		v, ok := numeric(lower[key])
		if !ok {
			out.Missing = append(out.Missing, key)
			continue
		}
		*targets[key] = v
		found++
	}
	if found == 0 {
		out.Missing = nil
		return out
	}
	out.Kind = Parsed
	out.Features = &f
	return out
}

// firstJSONObject returns the first balanced {...} span in s, skipping
// braces inside string literals.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// numeric accepts JSON numbers and numeric strings.
func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
