package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// ModelEntry is one loaded artifact. Entries are immutable; reloading an
// identifier swaps in a new entry.
type ModelEntry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	SizeBytes int64     `json:"size_bytes"`
	Features  int       `json:"features"`
	LoadedAt  time.Time `json:"loaded_at"`

	Estimator Estimator `json:"-"`
}

// ModelRegistry maps artifact file names to loaded estimators. It is safe for
// concurrent use; readers never observe a partially loaded entry.
type ModelRegistry struct {
	dir     string
	slots   sync.Map // id -> *atomic.Pointer[ModelEntry]
	metrics IntelligenceMetrics
	logger  logging.Logger
}

// NewModelRegistry creates a registry rooted at dir.
func NewModelRegistry(dir string, metrics IntelligenceMetrics, logger logging.Logger) (*ModelRegistry, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrCodeValidation, "model directory is required")
	}
	if metrics == nil {
		metrics = NewNoopIntelligenceMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ModelRegistry{
		dir:     dir,
		metrics: metrics,
		logger:  logger.Named("model-registry"),
	}, nil
}

// Dir is the directory artifacts are loaded from.
func (r *ModelRegistry) Dir() string { return r.dir }

// Path returns the on-disk location of artifact id.
func (r *ModelRegistry) Path(id string) string { return filepath.Join(r.dir, id) }

// LoadAll loads every supported artifact in the model directory, creating the
// directory when missing. Individual failures are logged and skipped.
func (r *ModelRegistry) LoadAll(ctx context.Context) (int, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeModelLoadFailed, "create model directory")
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeModelLoadFailed, "list model directory")
	}

	loaded := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return loaded, ctx.Err()
		}
		if !e.Type().IsRegular() || !SupportedArtifact(e.Name()) {
			continue
		}
		if err := r.Load(ctx, e.Name()); err != nil {
			r.logger.Warn("failed to load model", logging.String("model", e.Name()), logging.Err(err))
			continue
		}
		loaded++
	}
	r.logger.Info("model registry loaded", logging.Int("models", loaded), logging.String("dir", r.dir))
	return loaded, nil
}

// Load reads artifact id from the model directory and installs it,
// replacing any previous entry with the same id.
func (r *ModelRegistry) Load(ctx context.Context, id string) error {
	start := time.Now()
	entry, err := r.read(id)
	r.metrics.RecordModelLoad(ctx, id, msSince(start), err == nil)
	if err != nil {
		return err
	}
	r.install(entry)
	r.logger.Info("model loaded",
		logging.String("model", id),
		logging.String("kind", entry.Kind),
		logging.Int("features", entry.Features))
	return nil
}

func (r *ModelRegistry) read(id string) (*ModelEntry, error) {
	if id == "" || filepath.Base(id) != id || id == "." || id == ".." {
		return nil, errors.New(errors.ErrCodeModelNotFound, "invalid model identifier").WithDetail(id)
	}
	if !SupportedArtifact(id) {
		return nil, errors.New(errors.ErrCodeModelFormatUnsupported, "Unsupported model format.").WithDetail(id)
	}

	path := r.Path(id)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeModelNotFound, "Model file '%s' not found in '%s'.", id, r.dir)
		}
		return nil, errors.Wrap(err, errors.ErrCodeModelLoadFailed, "open artifact").WithDetail(id)
	}
	defer f.Close()

	h := sha256.New()
	counter := &countingReader{r: io.TeeReader(f, h)}
	est, err := DecodeArtifact(id, counter)
	if err != nil {
		return nil, err
	}
	// Drain so the checksum covers the whole file.
	if _, err := io.Copy(io.Discard, counter); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelLoadFailed, "read artifact").WithDetail(id)
	}

	return &ModelEntry{
		ID:        id,
		Kind:      est.Kind(),
		Path:      path,
		Checksum:  hex.EncodeToString(h.Sum(nil)),
		SizeBytes: counter.n,
		Features:  est.NumFeatures(),
		LoadedAt:  time.Now().UTC(),
		Estimator: est,
	}, nil
}

func (r *ModelRegistry) install(e *ModelEntry) {
	slot, _ := r.slots.LoadOrStore(e.ID, new(atomic.Pointer[ModelEntry]))
	slot.(*atomic.Pointer[ModelEntry]).Store(e)
}

// Put installs an already built estimator under id. It is used by callers
// that obtain artifacts from somewhere other than the model directory.
func (r *ModelRegistry) Put(id string, est Estimator) {
	r.install(&ModelEntry{
		ID:        id,
		Kind:      est.Kind(),
		Path:      r.Path(id),
		Features:  est.NumFeatures(),
		LoadedAt:  time.Now().UTC(),
		Estimator: est,
	})
}

// Get returns the estimator registered under id.
func (r *ModelRegistry) Get(id string) (Estimator, bool) {
	e, ok := r.Entry(id)
	if !ok {
		return nil, false
	}
	return e.Estimator, true
}

// Entry returns the full entry registered under id.
func (r *ModelRegistry) Entry(id string) (*ModelEntry, bool) {
	slot, ok := r.slots.Load(id)
	if !ok {
		return nil, false
	}
	e := slot.(*atomic.Pointer[ModelEntry]).Load()
	return e, e != nil
}

// Unload removes id from the registry. It reports whether an entry existed.
func (r *ModelRegistry) Unload(id string) bool {
	slot, ok := r.slots.LoadAndDelete(id)
	if !ok {
		return false
	}
	existed := slot.(*atomic.Pointer[ModelEntry]).Swap(nil) != nil
	if existed {
		r.logger.Info("model unloaded", logging.String("model", id))
	}
	return existed
}

// List returns the loaded entries ordered by id.
func (r *ModelRegistry) List() []*ModelEntry {
	var out []*ModelEntry
	r.slots.Range(func(_, v any) bool {
		if e := v.(*atomic.Pointer[ModelEntry]).Load(); e != nil {
			out = append(out, e)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len is the number of loaded models.
func (r *ModelRegistry) Len() int { return len(r.List()) }

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
