package song

import (
	"encoding/json"
	"strconv"
)

// Info is the flat song record returned by the retrieval pipeline.
// Feature fields are nil when the index entry did not carry them.
type Info struct {
	Name         *string  `json:"name"`
	Artists      *string  `json:"artists"`
	Danceability *float64 `json:"danceability"`
	Energy       *float64 `json:"energy"`
	Acousticness *float64 `json:"acousticness"`
	Liveness     *float64 `json:"liveness"`
	Valence      *float64 `json:"valence"`
	Tempo        *float64 `json:"tempo"`
}

// InfoFromMetadata maps an index metadata hit into an Info. Missing or
// unusable values resolve to nil; it never fails.
func InfoFromMetadata(md map[string]any) Info {
	return Info{
		Name:         stringField(md, KeyName),
		Artists:      stringField(md, KeyArtists),
		Danceability: floatField(md, KeyDanceability),
		Energy:       floatField(md, KeyEnergy),
		Acousticness: floatField(md, KeyAcousticness),
		Liveness:     floatField(md, KeyLiveness),
		Valence:      floatField(md, KeyValence),
		Tempo:        floatField(md, KeyTempo),
	}
}

// DisplayName returns the track name, or "" when unknown.
func (i Info) DisplayName() string {
	if i.Name == nil {
		return ""
	}
	return *i.Name
}

// DisplayArtists returns the artists string, or "" when unknown.
func (i Info) DisplayArtists() string {
	if i.Artists == nil {
		return ""
	}
	return *i.Artists
}

func stringField(md map[string]any, key string) *string {
	v, ok := md[key]
	if !ok || v == nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		return nil
	}
	return &s
}

func floatField(md map[string]any, key string) *float64 {
	v, ok := md[key]
	if !ok || v == nil {
		return nil
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}
