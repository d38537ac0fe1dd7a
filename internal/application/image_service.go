package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/example/movienight/internal/clients/tmdb"
	"github.com/example/movienight/internal/imagecache"
	"github.com/example/movienight/internal/metrics"
)

// ImageStore caches proxied images.
type ImageStore interface {
	Get(ctx context.Context, source, fetchURL string) (imagecache.Image, bool, error)
	Clear() (int, error)
	CollectGarbage() error
}

// PlexImageResolver turns a Plex thumb path into a fetchable URL.
type PlexImageResolver interface {
	PlexImageURL(thumb string) string
}

// ImageService proxies poster images through the cache.
type ImageService struct {
	store  ImageStore
	plex   PlexImageResolver
	logger *slog.Logger
}

// NewImageService constructs an image service.
func NewImageService(store ImageStore, plex PlexImageResolver, logger *slog.Logger) *ImageService {
	return &ImageService{store: store, plex: plex, logger: defaultLogger(logger)}
}

// Poster returns the image for src: a TMDB image URL or a Plex library
// thumb path. Upstream failures read as not found.
func (s *ImageService) Poster(ctx context.Context, principal Principal, src string) (imagecache.Image, error) {
	if s == nil {
		return imagecache.Image{}, fmt.Errorf("ImageService is nil")
	}
	if !principal.Authenticated() {
		return imagecache.Image{}, ErrUnauthenticated
	}

	fetchURL, err := s.resolve(strings.TrimSpace(src))
	if err != nil {
		return imagecache.Image{}, err
	}

	img, hit, err := s.store.Get(ctx, src, fetchURL)
	metrics.RecordImageCache(hit, err)
	if err != nil {
		serviceLogger(ctx, s.logger, "ImageService", "Poster").DebugContext(ctx, "image fetch failed", "src", src, "error", err)
		return imagecache.Image{}, ErrNotFound
	}
	return img, nil
}

func (s *ImageService) resolve(src string) (string, error) {
	switch {
	case src == "":
		return "", fieldError("src", "src is required")
	case strings.HasPrefix(src, "/library/"):
		if s.plex == nil {
			return "", ErrNotFound
		}
		fetchURL := s.plex.PlexImageURL(src)
		if fetchURL == "" {
			return "", ErrNotFound
		}
		return fetchURL, nil
	}

	u, err := url.Parse(src)
	base, _ := url.Parse(tmdb.ImageBaseURL)
	if err != nil || base == nil || u.Scheme != "https" || u.Host != base.Host {
		return "", fieldError("src", "unsupported image source")
	}
	return src, nil
}

// ClearCache drops every cached image. Requires canManageCaches.
func (s *ImageService) ClearCache(ctx context.Context, principal Principal) (removed int, err error) {
	if s == nil {
		err = fmt.Errorf("ImageService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "ImageService", "ClearCache", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to clear image cache", "")
			return
		}
		logger.InfoContext(ctx, "image cache cleared", "removed", removed)
	}()

	if err = requireApp(principal, canManageCaches); err != nil {
		return
	}
	removed, err = s.store.Clear()
	return
}

// CollectGarbage reclaims space held by expired images.
func (s *ImageService) CollectGarbage() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.CollectGarbage()
}
