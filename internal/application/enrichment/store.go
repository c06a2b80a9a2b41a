// Package enrichment attaches reference chemistry data to predicted
// structures, consulting the local tiers before the external database.
package enrichment

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/common"
)

// Cache tier labels reported to metrics.
const (
	TierLocal    = "local"
	TierRemote   = "redis"
	TierDatabase = "postgres"
)

// ReferenceStore is the read/write view of known reference records.
type ReferenceStore interface {
	// Find returns the known records for smiles. Unknown structures are
	// absent from the map.
	Find(ctx context.Context, smiles []string) (map[string]*compound.ReferenceRecord, error)
	// Save persists r as the current record for r.SMILES.
	Save(ctx context.Context, r *compound.ReferenceRecord) error
}

// TieredStore reads through an in-process cache and an optional shared cache
// before the repository, and writes through all three. Only repository
// errors are returned; cache tier failures degrade to misses.
type TieredStore struct {
	local     *cache.Cache
	localSize int
	remote    compound.Cache
	repo      compound.Repository
	metrics   common.IntelligenceMetrics
	logger    logging.Logger
}

type StoreOption func(*TieredStore)

// WithRemoteCache enables the shared tier.
func WithRemoteCache(c compound.Cache) StoreOption {
	return func(s *TieredStore) { s.remote = c }
}

// WithLocalCache sizes the in-process tier. A non-positive size disables it.
func WithLocalCache(size int, ttl time.Duration) StoreOption {
	return func(s *TieredStore) {
		s.localSize = size
		if size > 0 {
			s.local = cache.New(ttl, ttl*2)
		} else {
			s.local = nil
		}
	}
}

func WithStoreMetrics(m common.IntelligenceMetrics) StoreOption {
	return func(s *TieredStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithStoreLogger(l logging.Logger) StoreOption {
	return func(s *TieredStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewTieredStore builds a store over repo. By default the local tier holds
// 10000 records for an hour and there is no shared tier.
func NewTieredStore(repo compound.Repository, opts ...StoreOption) *TieredStore {
	s := &TieredStore{
		repo:    repo,
		metrics: common.NewNoopIntelligenceMetrics(),
		logger:  logging.NewNopLogger(),
	}
	WithLocalCache(10000, time.Hour)(s)
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.Named("reference-store")
	return s
}

func (s *TieredStore) Find(ctx context.Context, smiles []string) (map[string]*compound.ReferenceRecord, error) {
	found := make(map[string]*compound.ReferenceRecord, len(smiles))
	missing := smiles

	if s.local != nil {
		missing = missing[:0:0]
		for _, smi := range smiles {
			if x, ok := s.local.Get(smi); ok {
				found[smi] = x.(*compound.ReferenceRecord).Clone()
				s.metrics.RecordCacheAccess(ctx, true, TierLocal)
				continue
			}
			s.metrics.RecordCacheAccess(ctx, false, TierLocal)
			missing = append(missing, smi)
		}
	}
	if len(missing) == 0 {
		return found, nil
	}

	if s.remote != nil {
		hits, err := s.remote.GetMany(ctx, missing)
		if err != nil {
			s.logger.Warn("shared cache read failed", logging.Int("keys", len(missing)), logging.Err(err))
			hits = nil
		}
		rest := missing[:0:0]
		for _, smi := range missing {
			if r, ok := hits[smi]; ok {
				found[smi] = r
				s.putLocal(r)
				s.metrics.RecordCacheAccess(ctx, true, TierRemote)
				continue
			}
			s.metrics.RecordCacheAccess(ctx, false, TierRemote)
			rest = append(rest, smi)
		}
		missing = rest
		if len(missing) == 0 {
			return found, nil
		}
	}

	rows, err := s.repo.FindBySMILES(ctx, missing)
	if err != nil {
		return found, err
	}
	for _, smi := range missing {
		r, ok := rows[smi]
		s.metrics.RecordCacheAccess(ctx, ok, TierDatabase)
		if !ok {
			continue
		}
		found[smi] = r
		s.putRemote(ctx, r)
		s.putLocal(r)
	}
	return found, nil
}

// Save upserts r and refreshes the cache tiers with the stored id.
func (s *TieredStore) Save(ctx context.Context, r *compound.ReferenceRecord) error {
	if err := s.repo.Upsert(ctx, r); err != nil {
		return err
	}
	s.putRemote(ctx, r)
	s.putLocal(r)
	return nil
}

func (s *TieredStore) putLocal(r *compound.ReferenceRecord) {
	if s.local == nil {
		return
	}
	if _, exists := s.local.Get(r.SMILES); !exists && s.local.ItemCount() >= s.localSize {
		s.local.DeleteExpired()
		if s.local.ItemCount() >= s.localSize {
			return
		}
	}
	s.local.Set(r.SMILES, r.Clone(), cache.DefaultExpiration)
}

func (s *TieredStore) putRemote(ctx context.Context, r *compound.ReferenceRecord) {
	if s.remote == nil {
		return
	}
	if err := s.remote.Set(ctx, r); err != nil {
		s.logger.Warn("shared cache write failed", logging.String("smiles", r.SMILES), logging.Err(err))
	}
}

// MemoryStore is a process-local ReferenceStore for runs without a database.
type MemoryStore struct {
	records *cache.Cache
}

// NewMemoryStore returns an empty store whose records never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: cache.New(cache.NoExpiration, 0)}
}

func (s *MemoryStore) Find(_ context.Context, smiles []string) (map[string]*compound.ReferenceRecord, error) {
	found := make(map[string]*compound.ReferenceRecord, len(smiles))
	for _, smi := range smiles {
		if x, ok := s.records.Get(smi); ok {
			found[smi] = x.(*compound.ReferenceRecord).Clone()
		}
	}
	return found, nil
}

func (s *MemoryStore) Save(_ context.Context, r *compound.ReferenceRecord) error {
	s.records.Set(r.SMILES, r.Clone(), cache.NoExpiration)
	return nil
}

// Len is the number of stored records.
func (s *MemoryStore) Len() int { return s.records.ItemCount() }
