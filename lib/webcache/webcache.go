package webcache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"landmash/lib/htmlutil"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("landmash/lib/webcache")

type page struct {
	Contents  []byte
	ExpiresAt int64
}

// Cache stores fetched pages keyed by their normalized url.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
	now func() time.Time
}

type Options struct {
	// Dir is the badger directory, an empty Dir keeps the cache in memory.
	Dir string
	TTL time.Duration
}

func Open(opts Options) (*Cache, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.Dir == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func key(rawUrl string) (string, error) {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return "", err
	}
	return htmlutil.Canonicalize(u), nil
}

// Get returns the cached contents for rawUrl, found is false on a miss or
// when the entry has expired.
func (c *Cache) Get(ctx context.Context, rawUrl string) (contents []byte, found bool, err error) {
	ctx, span := tracer.Start(ctx, "Get")
	defer span.End()

	k, err := key(rawUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create cache key")
		return nil, false, err
	}
	span.SetAttributes(attribute.String("cache_key", k))

	var cached page
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&cached)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read cached page")
		return nil, false, err
	}

	if c.now().Unix() >= cached.ExpiresAt {
		span.AddEvent("delete expired cache key")
		err = c.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(k))
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to delete expired page", "key", k, "err", err)
		}
		return nil, false, nil
	}

	span.SetAttributes(attribute.Int("content_length", len(cached.Contents)))
	return cached.Contents, true, nil
}

func (c *Cache) Set(ctx context.Context, rawUrl string, contents []byte) error {
	_, span := tracer.Start(ctx, "Set")
	defer span.End()

	k, err := key(rawUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create cache key")
		return err
	}

	var serialized bytes.Buffer
	err = gob.NewEncoder(&serialized).Encode(page{
		Contents:  contents,
		ExpiresAt: c.now().Add(c.ttl).Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize page")
		return err
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(k), serialized.Bytes())
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write cached page")
		return err
	}
	return nil
}
