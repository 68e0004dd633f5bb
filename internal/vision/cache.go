package vision

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/raine/listing-analyzer/internal/metrics"
	"github.com/raine/listing-analyzer/internal/storage"
	"github.com/rs/zerolog/log"
)

const cacheKeyPrefix = "vision:"

// CachedAnalyzer wraps an Analyzer with a result cache. Only successful
// analyses are stored; cache failures are logged and otherwise ignored.
type CachedAnalyzer struct {
	inner Analyzer
	cache storage.Cache
	ttl   time.Duration
}

// NewCachedAnalyzer creates a cached analyzer.
func NewCachedAnalyzer(inner Analyzer, cache storage.Cache, ttl time.Duration) *CachedAnalyzer {
	return &CachedAnalyzer{inner: inner, cache: cache, ttl: ttl}
}

// cacheKey hashes title, category and images. Every field is length
// prefixed so that ["ab","c"] and ["a","bc"] hash differently.
func cacheKey(in Input) string {
	h := sha256.New()
	writeField := func(b []byte) {
		binary.Write(h, binary.LittleEndian, int64(len(b)))
		h.Write(b)
	}
	writeField([]byte(in.Title))
	writeField([]byte(in.Category))
	binary.Write(h, binary.LittleEndian, int64(len(in.Images)))
	for _, img := range in.Images {
		writeField(img)
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Analyze implements Analyzer with caching.
func (c *CachedAnalyzer) Analyze(ctx context.Context, in Input) (Result, error) {
	if len(in.Images) == 0 {
		return c.inner.Analyze(ctx, in)
	}
	key := cacheKey(in)

	payload, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("failed to check analysis cache")
	case ok:
		var cached Result
		if err := json.Unmarshal(payload, &cached); err != nil {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			log.Warn().Err(err).Str("key", key).Msg("discarding unreadable analysis cache entry")
			break
		}
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		log.Debug().Str("key", key[:len(cacheKeyPrefix)+16]).Msg("analysis cache hit")
		return cached, nil
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	result, err := c.inner.Analyze(ctx, in)
	if err != nil {
		return Result{}, err
	}

	payload, err = json.Marshal(result)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode analysis result for cache")
		return result, nil
	}
	if err := c.cache.Set(ctx, key, payload, c.ttl); err != nil {
		log.Warn().Err(err).Msg("failed to cache analysis result")
	} else {
		log.Debug().Str("key", key[:len(cacheKeyPrefix)+16]).Msg("cached analysis result")
	}
	return result, nil
}
