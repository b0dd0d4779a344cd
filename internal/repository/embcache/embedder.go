// Package embcache caches embedding vectors in a shared key-value store.
//
// Keys are sha256(provider | dimensions | canonical text). Writes use SET NX,
// so the first vector stored for a key wins and later writers adopt it.
// Sub-batches are written as soon as the provider returns them, which makes
// the cache the resume point after a failure half-way through a batch.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/lexdex/internal/db"
	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/usecase/normalize"
)

const cacheKeyPrefix = "lexdex:emb:"

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// Options tune the cache.
type Options struct {
	// TTL of stored vectors. Zero keeps them forever.
	TTL time.Duration
	// L1Size is the number of vectors kept in process. Zero disables the L1.
	L1Size int
}

// CachedProvider caches the vectors of one embedding provider.
type CachedProvider struct {
	inner      domain.Provider
	store      store
	ttl        time.Duration
	l1         *lru.Cache[string, []float32]
	flight     singleflight.Group
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

var _ domain.Provider = (*CachedProvider)(nil)

// New creates a caching decorator.
// cacheTotal is a counter vec with labels provider, tier and result, passed explicitly.
func New(
	inner domain.Provider,
	s store,
	opts Options,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) (*CachedProvider, error) {
	c := &CachedProvider{
		inner:      inner,
		store:      s,
		ttl:        opts.TTL,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
	if opts.L1Size > 0 {
		l1, err := lru.New[string, []float32](opts.L1Size)
		if err != nil {
			return nil, fmt.Errorf("create l1 cache: %w", err)
		}
		c.l1 = l1
	}
	return c, nil
}

// Name returns the wrapped provider name.
func (c *CachedProvider) Name() string { return c.inner.Name() }

// Dimensions returns the wrapped provider dimensions.
func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }

// MaxBatchSize returns the wrapped provider batch limit.
func (c *CachedProvider) MaxBatchSize() int { return c.inner.MaxBatchSize() }

// Embed returns cached vectors and embeds only the misses.
// Token counts cover provider calls only; cache hits cost zero tokens.
func (c *CachedProvider) Embed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.cacheKey(t)
	}
	found := c.lookup(ctx, lo.Uniq(keys))

	var missKeys []string
	missText := map[string]string{}
	for i, k := range keys {
		if _, ok := found[k]; ok {
			continue
		}
		if _, seen := missText[k]; !seen {
			missText[k] = texts[i]
			missKeys = append(missKeys, k)
		}
	}

	var res domain.BatchEmbeddingResult
	size := c.inner.MaxBatchSize()
	if size <= 0 {
		size = len(missKeys)
	}
	for _, part := range lo.Chunk(missKeys, max(size, 1)) {
		sub, err := c.embedPart(ctx, part, missText)
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		for k, v := range sub.vectors {
			found[k] = v
		}
		res.PromptTokens += sub.promptTokens
		res.TotalTokens += sub.totalTokens
	}

	res.Embeddings = make([][]float32, len(texts))
	for i, k := range keys {
		res.Embeddings[i] = found[k]
	}
	return res, nil
}

type partResult struct {
	vectors      map[string][]float32
	promptTokens int
	totalTokens  int
}

// embedPart embeds one sub-batch of misses. Identical concurrent sub-batches
// share a single provider call, which runs detached from any one caller's
// context; each caller still stops waiting when its own context ends.
func (c *CachedProvider) embedPart(ctx context.Context, keys []string, texts map[string]string) (partResult, error) {
	fctx := context.WithoutCancel(ctx)
	led := false
	ch := c.flight.DoChan(strings.Join(keys, ","), func() (any, error) {
		led = true
		batch := make([]string, len(keys))
		for i, k := range keys {
			batch[i] = texts[k]
		}
		out, err := c.inner.Embed(fctx, batch)
		if err != nil {
			return partResult{}, fmt.Errorf("embed %d texts: %w", len(batch), err)
		}
		if err := domain.CheckShape(out, len(batch), c.inner.Dimensions()); err != nil {
			return partResult{}, fmt.Errorf("%s: %w", c.inner.Name(), err)
		}

		pr := partResult{
			vectors:      make(map[string][]float32, len(keys)),
			promptTokens: out.PromptTokens,
			totalTokens:  out.TotalTokens,
		}
		for i, k := range keys {
			pr.vectors[k] = c.store1(fctx, k, out.Embeddings[i])
		}
		return pr, nil
	})

	select {
	case <-ctx.Done():
		return partResult{}, fmt.Errorf("wait for shared embedding: %w", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return partResult{}, r.Err //nolint:wrapcheck // wrapped inside the flight
		}
		pr := r.Val.(partResult)
		if !led {
			// tokens are billed to the caller whose call ran
			pr.promptTokens, pr.totalTokens = 0, 0
		}
		return pr, nil
	}
}

// lookup resolves keys from the L1, then the store.
func (c *CachedProvider) lookup(ctx context.Context, keys []string) map[string][]float32 {
	found := make(map[string][]float32, len(keys))
	var rest []string
	for _, k := range keys {
		if c.l1 != nil {
			if v, ok := c.l1.Get(k); ok {
				found[k] = v
				c.inc("l1", "hit")
				continue
			}
		}
		rest = append(rest, k)
	}
	if len(rest) == 0 {
		return found
	}

	values, err := c.store.MGet(ctx, rest)
	if err != nil {
		c.logger.Warn("Failed to read cached embeddings",
			zap.String("provider", c.inner.Name()), zap.Int("keys", len(rest)), zap.Error(err))
		c.incN("kv", "miss", len(rest))
		return found
	}
	for i, k := range rest {
		if i >= len(values) || values[i] == nil {
			c.inc("kv", "miss")
			continue
		}
		vec, err := c.decode(values[i])
		if err != nil {
			c.logger.Warn("Failed to parse cached embedding", zap.String("key", k), zap.Error(err))
			c.inc("kv", "miss")
			continue
		}
		found[k] = vec
		c.remember(k, vec)
		c.inc("kv", "hit")
	}
	return found
}

// store1 writes vec with SET NX. When another writer got there first, the
// stored vector is adopted so every reader sees one vector per key.
func (c *CachedProvider) store1(ctx context.Context, key string, vec []float32) []float32 {
	ok, err := c.store.SetNX(ctx, key, vectorToCacheBytes(vec), c.ttl)
	if err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
		return vec
	}
	if !ok {
		data, err := c.store.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, db.ErrKeyNotFound) {
				c.logger.Warn("Failed to read back cached embedding", zap.String("key", key), zap.Error(err))
			}
			return vec
		}
		if stored, err := c.decode(data); err == nil {
			vec = stored
		}
	}
	c.remember(key, vec)
	return vec
}

func (c *CachedProvider) remember(key string, vec []float32) {
	if c.l1 != nil {
		c.l1.Add(key, vec)
	}
}

func (c *CachedProvider) decode(data []byte) ([]float32, error) {
	vec, err := bytesToVector(data)
	if err != nil {
		return nil, err
	}
	if dims := c.inner.Dimensions(); dims > 0 && len(vec) != dims {
		return nil, fmt.Errorf("cached vector has %d dimensions, want %d", len(vec), dims)
	}
	return vec, nil
}

func (c *CachedProvider) inc(tier, result string) { c.incN(tier, result, 1) }

func (c *CachedProvider) incN(tier, result string, n int) {
	if c.cacheTotal != nil && n > 0 {
		c.cacheTotal.WithLabelValues(c.inner.Name(), tier, result).Add(float64(n))
	}
}

func (c *CachedProvider) cacheKey(text string) string {
	return Key(c.inner.Name(), c.inner.Dimensions(), text)
}

// Key returns the cache key of text embedded by provider at dims.
func Key(provider string, dims int, text string) string {
	h := sha256.Sum256([]byte(provider + "|" + strconv.Itoa(dims) + "|" + normalize.CacheKeyText(text)))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not a positive multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
