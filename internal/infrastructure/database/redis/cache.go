package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

var ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "serialization failed")

const compoundKeySpace = "compound:"

// Serializer encodes cached records.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonSerializer) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// ReferenceCache is the shared Redis tier for reference records, keyed by
// structure string.
type ReferenceCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	ttl        time.Duration
	jitter     float64
	serializer Serializer
}

var _ compound.Cache = (*ReferenceCache)(nil)

type CacheOption func(*ReferenceCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *ReferenceCache) { c.prefix = prefix }
}

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *ReferenceCache) { c.ttl = ttl }
}

// WithJitter spreads expirations by +/- fraction of the TTL. Zero disables it.
func WithJitter(fraction float64) CacheOption {
	return func(c *ReferenceCache) { c.jitter = fraction }
}

func WithSerializer(s Serializer) CacheOption {
	return func(c *ReferenceCache) { c.serializer = s }
}

func NewReferenceCache(client *Client, log logging.Logger, opts ...CacheOption) *ReferenceCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &ReferenceCache{
		client:     client,
		logger:     log.Named("reference-cache"),
		prefix:     "ami:",
		ttl:        24 * time.Hour,
		jitter:     0.1,
		serializer: jsonSerializer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ReferenceCache) key(smiles string) string {
	return c.prefix + compoundKeySpace + smiles
}

func (c *ReferenceCache) jitterTTL(ttl time.Duration) time.Duration {
	if ttl == 0 || c.jitter == 0 {
		return ttl
	}
	delta := float64(ttl) * c.jitter * (rand.Float64()*2 - 1)
	return ttl + time.Duration(delta)
}

// GetMany fetches all structures in one MGET. Entries that fail to decode
// are logged and treated as misses.
func (c *ReferenceCache) GetMany(ctx context.Context, smiles []string) (map[string]*compound.ReferenceRecord, error) {
	out := make(map[string]*compound.ReferenceRecord, len(smiles))
	if len(smiles) == 0 {
		return out, nil
	}

	keys := make([]string, len(smiles))
	for i, s := range smiles {
		keys[i] = c.key(s)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read reference cache")
	}

	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		rec := &compound.ReferenceRecord{}
		if err := c.serializer.Unmarshal([]byte(raw), rec); err != nil {
			c.logger.Warn("Dropping undecodable cache entry",
				logging.String("key", keys[i]),
				logging.Err(err),
			)
			continue
		}
		out[smiles[i]] = rec
	}
	return out, nil
}

func (c *ReferenceCache) Set(ctx context.Context, rec *compound.ReferenceRecord) error {
	if rec == nil || rec.SMILES == "" {
		return nil
	}
	data, err := c.serializer.Marshal(rec)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	if err := c.client.Set(ctx, c.key(rec.SMILES), data, c.jitterTTL(c.ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to write reference cache")
	}
	return nil
}
