package enrichment

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/config"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/chemdb/pubchem"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/common"
)

// Lookuper is the external chemistry database.
type Lookuper interface {
	Lookup(ctx context.Context, smiles string) (*pubchem.CompoundData, error)
	FetchDescription(ctx context.Context, cid int64) (string, error)
}

// Coordinator resolves reference records for a batch of structures. It
// never fails: a structure whose lookup fails gets a record holding only
// its SMILES.
type Coordinator struct {
	store         ReferenceStore
	client        Lookuper
	workers       int
	lookupTimeout time.Duration
	batchTimeout  time.Duration
	retries       int
	retryBackoff  time.Duration
	inflight      singleflight.Group
	metrics       common.IntelligenceMetrics
	logger        logging.Logger
}

type Option func(*Coordinator)

func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLookupTimeout bounds each structure's lookup, description included.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.lookupTimeout = d
		}
	}
}

// WithBatchTimeout bounds one FetchMissing run. Structures still pending
// when it expires get degraded records.
func WithBatchTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.batchTimeout = d
		}
	}
}

// WithRetries repeats transient lookup failures with exponential backoff.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.retries = n
		}
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

func WithMetrics(m common.IntelligenceMetrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// OptionsFromConfig maps the enrichment section onto coordinator options.
func OptionsFromConfig(cfg config.EnrichmentConfig) []Option {
	return []Option{
		WithWorkers(cfg.Workers),
		WithLookupTimeout(cfg.LookupTimeout),
		WithBatchTimeout(cfg.BatchTimeout),
		WithRetries(cfg.RetryMax, cfg.RetryBackoff),
	}
}

func NewCoordinator(store ReferenceStore, client Lookuper, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         store,
		client:        client,
		workers:       8,
		lookupTimeout: 15 * time.Second,
		retryBackoff:  500 * time.Millisecond,
		metrics:       common.NewNoopIntelligenceMetrics(),
		logger:        logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.Named("enrichment")
	return c
}

// Enrich returns one record per distinct structure.
func (c *Coordinator) Enrich(ctx context.Context, structures []string) map[string]*compound.ReferenceRecord {
	hits, misses := c.Partition(ctx, structures)
	for smi, r := range c.FetchMissing(ctx, misses) {
		hits[smi] = r
	}
	return hits
}

// Partition splits structures into known records and structures that need
// an external lookup. A store failure treats every structure as a miss.
func (c *Coordinator) Partition(ctx context.Context, structures []string) (map[string]*compound.ReferenceRecord, []string) {
	known, err := c.store.Find(ctx, structures)
	if err != nil {
		c.logger.Warn("reference store lookup failed", logging.Int("structures", len(structures)), logging.Err(err))
	}
	hits := make(map[string]*compound.ReferenceRecord, len(structures))
	var misses []string
	for _, smi := range structures {
		if _, seen := hits[smi]; seen {
			continue
		}
		if r, ok := known[smi]; ok && r != nil {
			hits[smi] = r
			continue
		}
		misses = append(misses, smi)
	}
	return hits, dedupe(misses)
}

// FetchMissing looks up every structure concurrently and persists each
// resulting record, degraded ones included.
func (c *Coordinator) FetchMissing(ctx context.Context, misses []string) map[string]*compound.ReferenceRecord {
	out := make(map[string]*compound.ReferenceRecord, len(misses))
	if len(misses) == 0 {
		return out
	}

	processor := common.NewBatchProcessor[string, *compound.ReferenceRecord](
		common.WithBatchName("enrichment"),
		common.WithMaxConcurrency(c.workers),
		common.WithItemTimeout(c.lookupTimeout),
		common.WithBatchTimeout(c.batchTimeout),
		common.WithRetryPolicy(c.retries, c.retryBackoff, pubchem.Transient),
		common.WithBatchMetrics(c.metrics),
		common.WithBatchLogger(c.logger),
	)
	res, err := processor.Process(ctx, misses, c.lookupShared)
	if err != nil {
		c.logger.Error("enrichment batch failed", logging.Err(err))
	}

	for i, smi := range misses {
		var item *common.ItemResult[*compound.ReferenceRecord]
		if res != nil && i < len(res.Results) {
			item = res.Results[i]
		}
		rec := c.settle(ctx, smi, item)
		if err := c.store.Save(ctx, rec); err != nil {
			c.logger.Warn("failed to persist reference record", logging.String("smiles", smi), logging.Err(err))
		}
		out[smi] = rec
	}
	return out
}

// lookupShared collapses concurrent lookups of one structure across runs.
func (c *Coordinator) lookupShared(ctx context.Context, smiles string) (*compound.ReferenceRecord, error) {
	v, err, _ := c.inflight.Do(smiles, func() (interface{}, error) {
		return c.lookup(ctx, smiles)
	})
	if err != nil {
		return nil, err
	}
	return v.(*compound.ReferenceRecord).Clone(), nil
}

func (c *Coordinator) lookup(ctx context.Context, smiles string) (*compound.ReferenceRecord, error) {
	data, err := c.client.Lookup(ctx, smiles)
	if err != nil {
		return nil, err
	}

	var description string
	if data.CID > 0 {
		description, err = c.client.FetchDescription(ctx, data.CID)
		if err != nil {
			c.logger.Debug("description fetch failed", logging.Int64("cid", data.CID), logging.Err(err))
			description = ""
		}
	}
	return recordFrom(smiles, data, description), nil
}

// settle turns a worker outcome into a record and reports it.
func (c *Coordinator) settle(ctx context.Context, smiles string, item *common.ItemResult[*compound.ReferenceRecord]) *compound.ReferenceRecord {
	var ms float64
	if item != nil {
		ms = item.DurationMs
	}
	switch {
	case item != nil && item.OK() && item.Result != nil:
		c.metrics.RecordEnrichment(ctx, common.EnrichmentFound, ms)
		return item.Result
	case item == nil:
		c.metrics.RecordEnrichment(ctx, common.EnrichmentError, ms)
	case item.Status == common.ItemStatusTimeout:
		c.metrics.RecordEnrichment(ctx, common.EnrichmentTimeout, ms)
		c.logger.Warn("reference lookup timed out", logging.String("smiles", smiles), logging.Duration("timeout", c.lookupTimeout))
	case stderrors.Is(item.Error, pubchem.ErrNotFound):
		c.metrics.RecordEnrichment(ctx, common.EnrichmentNotFound, ms)
	default:
		c.metrics.RecordEnrichment(ctx, common.EnrichmentError, ms)
		c.logger.Warn("reference lookup failed", logging.String("smiles", smiles), logging.Err(item.Error))
	}
	return compound.NewReferenceRecord(smiles)
}

func recordFrom(smiles string, d *pubchem.CompoundData, description string) *compound.ReferenceRecord {
	r := compound.NewReferenceRecord(smiles)
	if d == nil {
		return r
	}
	if d.CID > 0 {
		cid := d.CID
		r.CID = &cid
	}
	r.MolecularFormula = compound.StringPtr(d.MolecularFormula)
	r.MolecularWeight = d.MolecularWeight
	r.IUPACName = compound.StringPtr(d.IUPACName)
	r.InChI = compound.StringPtr(d.InChI)
	r.InChIKey = compound.StringPtr(d.InChIKey)
	r.Synonyms = compound.StringPtr(strings.Join(d.Synonyms, ", "))
	r.Description = compound.StringPtr(description)
	r.StructureImage = compound.StringPtr(d.StructureImage())
	return r
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
