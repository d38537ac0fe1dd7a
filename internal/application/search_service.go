package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/movienight/internal/clients/overseerr"
	"github.com/example/movienight/internal/clients/plex"
	"github.com/example/movienight/internal/clients/tmdb"
)

// Search result sources.
const (
	SourcePlex      = "plex"
	SourceOverseerr = "overseerr"
	SourceTMDB      = "tmdb"
)

// MovieSearcher queries the movie sources.
type MovieSearcher interface {
	SearchPlex(ctx context.Context, query string) ([]plex.Movie, error)
	SearchOverseerr(ctx context.Context, query string) ([]overseerr.Result, error)
	TrendingOverseerr(ctx context.Context) ([]overseerr.Result, error)
	SearchTMDB(ctx context.Context, query string) ([]tmdb.Movie, error)
}

// SearchService merges library and discovery search results.
type SearchService struct {
	searcher MovieSearcher
	logger   *slog.Logger
}

// NewSearchService constructs a search service.
func NewSearchService(searcher MovieSearcher, logger *slog.Logger) *SearchService {
	return &SearchService{searcher: searcher, logger: defaultLogger(logger)}
}

// SearchMovies returns Plex library matches first, then Overseerr matches
// not already in the library. TMDB is searched when Overseerr is
// unconfigured or failing. An empty query lists Overseerr's trending movies.
// Source failures shrink the result rather than failing it.
func (s *SearchService) SearchMovies(ctx context.Context, principal Principal, query string) ([]SearchResult, error) {
	if s == nil {
		return nil, fmt.Errorf("SearchService is nil")
	}
	if err := requireMember(principal); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		trending, err := s.searcher.TrendingOverseerr(ctx)
		if err != nil {
			return []SearchResult{}, nil
		}
		return appendOverseerr(nil, trending, map[int64]bool{}), nil
	}

	var results []SearchResult
	inLibrary := make(map[int64]bool)

	if movies, err := s.searcher.SearchPlex(ctx, query); err == nil {
		for _, m := range movies {
			if m.Type != "" && m.Type != "movie" {
				continue
			}
			id := int64(m.TMDBID())
			if id != 0 {
				inLibrary[id] = true
			}
			results = append(results, SearchResult{
				Source:        SourcePlex,
				PlexRatingKey: m.RatingKey,
				TMDBID:        id,
				Title:         m.Title,
				Year:          m.Year,
				PosterURL:     m.Thumb,
				Overview:      m.Summary,
				InLibrary:     true,
			})
		}
	}

	if found, err := s.searcher.SearchOverseerr(ctx, query); err == nil {
		results = appendOverseerr(results, found, inLibrary)
	} else if movies, err := s.searcher.SearchTMDB(ctx, query); err == nil {
		for _, m := range movies {
			if inLibrary[int64(m.ID)] {
				continue
			}
			results = append(results, SearchResult{
				Source:    SourceTMDB,
				TMDBID:    int64(m.ID),
				Title:     m.Title,
				Year:      m.Year(),
				PosterURL: m.PosterURL(),
				Overview:  m.Overview,
			})
		}
	}

	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}

func appendOverseerr(results []SearchResult, found []overseerr.Result, inLibrary map[int64]bool) []SearchResult {
	for _, r := range found {
		if r.MediaType != "" && r.MediaType != "movie" {
			continue
		}
		if inLibrary[int64(r.ID)] {
			continue
		}
		results = append(results, SearchResult{
			Source:    SourceOverseerr,
			TMDBID:    int64(r.ID),
			Title:     r.Title,
			Year:      r.Year(),
			PosterURL: r.PosterURL(),
			Overview:  r.Overview,
		})
	}
	return results
}
