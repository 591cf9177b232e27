// Package playlist turns pipeline results into a Spotify playlist.
//
// The Assembler resolves each recommended song against the catalog search,
// creates a private playlist named from the run's short keywords and adds the
// resolved tracks. Songs the catalog cannot match are skipped.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/toonify-go/internal/logging"
	"github.com/54b3r/toonify-go/internal/pipeline"
	"github.com/54b3r/toonify-go/internal/song"
)

// DefaultName is used when a run produced no keywords.
const DefaultName = "Toonify mix"

// maxTracksPerRequest is the Web API limit for one add-tracks call.
const maxTracksPerRequest = 100

// ErrNoTracks is returned when no song could be matched in the catalog. No
// playlist is created in that case.
var ErrNoTracks = errors.New("playlist: no songs matched the catalog")

// Catalog is the streaming-service surface the Assembler needs. *Client
// implements it.
type Catalog interface {
	CurrentUser(ctx context.Context, token string) (string, error)
	SearchTrack(ctx context.Context, token, query string) (string, error)
	CreatePlaylist(ctx context.Context, token, userID, name, description string) (Playlist, error)
	AddTracks(ctx context.Context, token, playlistID string, uris []string) error
}

// Playlist identifies a created playlist.
type Playlist struct {
	// ID is the catalog's playlist identifier.
	ID string `json:"id"`
	// URL is the public link to the playlist.
	URL string `json:"url"`
	// Name is the playlist title.
	Name string `json:"name"`
}

// Summary reports the outcome of Assemble.
type Summary struct {
	Playlist
	// Requested is the number of songs in the result.
	Requested int `json:"requested"`
	// Added is the number of tracks added to the playlist.
	Added int `json:"added"`
	// Unresolved lists songs the catalog search did not match.
	Unresolved []string `json:"unresolved"`
}

// Assembler builds playlists from pipeline results.
type Assembler struct {
	catalog Catalog
}

// NewAssembler returns an Assembler backed by catalog.
func NewAssembler(catalog Catalog) *Assembler {
	return &Assembler{catalog: catalog}
}

// Assemble resolves res.Songs in the catalog and creates a private playlist
// for the token's owner. It returns ErrNoTracks without creating anything
// when no song resolves. When adding tracks fails after the playlist was
// created, the partial Summary is returned together with the error.
func (a *Assembler) Assemble(ctx context.Context, token string, res *pipeline.Result) (*Summary, error) {
	if token == "" {
		return nil, fmt.Errorf("playlist: %w: empty token", ErrUnauthorized)
	}
	if res == nil {
		return nil, ErrNoTracks
	}
	log := logging.FromContext(ctx)

	userID, err := a.catalog.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Requested: len(res.Songs), Unresolved: []string{}}
	seen := make(map[string]struct{}, len(res.Songs))
	uris := make([]string, 0, len(res.Songs))
	for _, s := range res.Songs {
		query, ok := SearchQuery(s)
		if !ok {
			sum.Unresolved = append(sum.Unresolved, s.DisplayName())
			continue
		}
		uri, err := a.catalog.SearchTrack(ctx, token, query)
		if err != nil {
			return nil, err
		}
		if uri == "" {
			log.Debug("playlist: no catalog match", slog.String("query", query))
			sum.Unresolved = append(sum.Unresolved, s.DisplayName())
			continue
		}
		if _, dup := seen[uri]; dup {
			continue
		}
		seen[uri] = struct{}{}
		uris = append(uris, uri)
	}
	if len(uris) == 0 {
		return nil, ErrNoTracks
	}

	name := Name(res.ShortKeywords)
	pl, err := a.catalog.CreatePlaylist(ctx, token, userID, name, description(res.ShortKeywords))
	if err != nil {
		return nil, err
	}
	sum.Playlist = pl

	for start := 0; start < len(uris); start += maxTracksPerRequest {
		end := min(start+maxTracksPerRequest, len(uris))
		if err := a.catalog.AddTracks(ctx, token, pl.ID, uris[start:end]); err != nil {
			log.Warn("playlist: add tracks failed",
				slog.String("playlist_id", pl.ID),
				slog.Int("added", sum.Added),
				slog.Any("error", err),
			)
			return sum, fmt.Errorf("playlist: add tracks to %s: %w", pl.ID, err)
		}
		sum.Added = end
	}

	log.Info("playlist: created",
		slog.String("playlist_id", pl.ID),
		slog.Int("added", sum.Added),
		slog.Int("unresolved", len(sum.Unresolved)),
	)
	return sum, nil
}

// Name builds the playlist title from short keywords.
func Name(shortKeywords []string) string {
	name := strings.TrimSpace(strings.Join(shortKeywords, " "))
	if name == "" {
		return DefaultName
	}
	return name
}

func description(shortKeywords []string) string {
	if len(shortKeywords) == 0 {
		return "Made by toonify from a picture."
	}
	return "Made by toonify from a picture: " + strings.Join(shortKeywords, ", ") + "."
}

// SearchQuery builds the catalog query for a song. It reports false when
// the song has no name.
func SearchQuery(s song.Info) (string, bool) {
	name := strings.TrimSpace(s.DisplayName())
	if name == "" {
		return "", false
	}
	q := "track:" + name
	if artist := FirstArtist(s.DisplayArtists()); artist != "" {
		q += " artist:" + artist
	}
	return q, true
}

// FirstArtist returns the first artist from a corpus artists field. It
// accepts plain names, "a;b" and "a, b" lists and Python list literals such
// as "['a', 'b']". Inside a list literal only the quoted element separator
// splits, so names containing commas survive.
func FirstArtist(artists string) string {
	s := strings.TrimSpace(artists)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = strings.TrimSpace(s[1 : len(s)-1])
		if i := listSeparator(s); i >= 0 {
			s = s[:i+1]
		}
		return strings.TrimSpace(strings.Trim(s, `'"`))
	}
	if i := strings.IndexAny(s, ";,"); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(strings.TrimSpace(s), `'"`)
}

// listSeparator returns the index of the closing quote of the first element
// in the body of a Python list literal, or -1 when it has a single element.
func listSeparator(s string) int {
	if s == "" || (s[0] != '\'' && s[0] != '"') {
		if i := strings.Index(s, ", "); i >= 0 {
			return i - 1
		}
		return -1
	}
	q := s[0]
	for i := 1; i < len(s)-1; i++ {
		if s[i] == q && strings.HasPrefix(s[i+1:], ", ") {
			return i
		}
	}
	return -1
}
