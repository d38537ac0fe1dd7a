// Package imagecache keeps fetched poster images in a badger store so the
// proxy serves repeat requests without calling Plex or TMDB.
package imagecache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/example/movienight/internal/clients"
)

const (
	keyPrefix = "img:"
	// DefaultTTL is how long a fetched image is served from cache.
	DefaultTTL = 7 * 24 * time.Hour
	// MaxImageBytes bounds a single fetched image.
	MaxImageBytes = 10 << 20
)

var (
	// ErrNotImage is returned when the upstream body is not an image.
	ErrNotImage = errors.New("imagecache: response is not an image")
	// ErrTooLarge is returned when the upstream body exceeds MaxImageBytes.
	ErrTooLarge = errors.New("imagecache: image too large")
)

// Image is a cached image body.
type Image struct {
	ContentType string
	Data        []byte
}

// Fetcher retrieves an image from its origin.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Image, error)
}

// Options configures Open.
type Options struct {
	Dir      string
	InMemory bool
	TTL      time.Duration
	Fetcher  Fetcher
	Logger   *slog.Logger
}

// Cache is safe for concurrent use.
type Cache struct {
	db      *badger.DB
	ttl     time.Duration
	fetcher Fetcher
	logger  *slog.Logger
}

// Open opens or creates the badger store.
func Open(opts Options) (*Cache, error) {
	var badgerOpts badger.Options
	if opts.InMemory || opts.Dir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Dir)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open image cache: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{db: db, ttl: ttl, fetcher: fetcher, logger: logger}, nil
}

// Close releases the store.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(source string) []byte {
	sum := sha256.Sum256([]byte(source))
	return []byte(keyPrefix + hex.EncodeToString(sum[:]))
}

// Get returns the image for source, fetching and storing it on a miss.
// fetchURL is the origin URL; source is the stable cache identity.
func (c *Cache) Get(ctx context.Context, source, fetchURL string) (img Image, hit bool, err error) {
	key := cacheKey(source)

	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			img, err = decode(val)
			return err
		})
	})
	switch {
	case err == nil:
		return img, true, nil
	case !errors.Is(err, badger.ErrKeyNotFound):
		c.logger.Warn("image cache read failed", "error", err)
	}

	img, err = c.fetcher.Fetch(ctx, fetchURL)
	if err != nil {
		return Image{}, false, err
	}

	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, encode(img)).WithTTL(c.ttl))
	}); err != nil {
		c.logger.Warn("image cache write failed", "error", err)
	}
	return img, false, nil
}

// Clear removes every cached image and returns how many were dropped.
func (c *Cache) Clear() (int, error) {
	count := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count cached images: %w", err)
	}
	if err := c.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return 0, fmt.Errorf("clear image cache: %w", err)
	}
	return count, nil
}

// CollectGarbage reclaims value log space after expiries and clears.
func (c *Cache) CollectGarbage() error {
	err := c.db.RunValueLogGC(0.5)
	if err == nil || errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// encode stores the content type on the first line followed by the body.
func encode(img Image) []byte {
	buf := make([]byte, 0, len(img.ContentType)+1+len(img.Data))
	buf = append(buf, img.ContentType...)
	buf = append(buf, '\n')
	return append(buf, img.Data...)
}

func decode(val []byte) (Image, error) {
	idx := bytes.IndexByte(val, '\n')
	if idx < 0 {
		return Image{}, errors.New("imagecache: corrupt entry")
	}
	data := make([]byte, len(val)-idx-1)
	copy(data, val[idx+1:])
	return Image{ContentType: string(val[:idx]), Data: data}, nil
}

// HTTPFetcher fetches images over HTTP.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher using client, or a 10s client when nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = clients.NewHTTPClient(10 * time.Second)
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Image{}, fmt.Errorf("imagecache: create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("imagecache: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Image{}, clients.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Image{}, &clients.StatusError{Service: "image", StatusCode: resp.StatusCode}
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return Image{}, ErrNotImage
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("imagecache: read body: %w", err)
	}
	if len(data) > MaxImageBytes {
		return Image{}, ErrTooLarge
	}
	return Image{ContentType: contentType, Data: data}, nil
}
