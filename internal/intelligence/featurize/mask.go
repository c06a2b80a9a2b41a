package featurize

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// MaskRegistry holds the ordered fingerprint bit indices selected for each
// scheme. A scheme whose mask failed to load is disabled; the others keep
// working.
type MaskRegistry struct {
	mu       sync.RWMutex
	masks    map[Scheme][]int
	failures map[Scheme]error
	logger   logging.Logger
}

// NewMaskRegistry returns an empty registry. Call Load or LoadFiles to
// populate it.
func NewMaskRegistry(logger logging.Logger) *MaskRegistry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &MaskRegistry{
		masks:    make(map[Scheme][]int),
		failures: make(map[Scheme]error),
		logger:   logger.Named("mask-registry"),
	}
}

// LoadFiles loads every scheme that has a path in paths. Failures are logged
// and recorded; they never abort the remaining schemes.
func (r *MaskRegistry) LoadFiles(paths map[Scheme]string) {
	for _, s := range Schemes() {
		path, ok := paths[s]
		if !ok || path == "" {
			continue
		}
		if err := r.LoadFile(s, path); err != nil {
			r.logger.Error("feature mask disabled",
				logging.String("scheme", s.String()),
				logging.String("path", path),
				logging.Err(err))
		}
	}
}

// LoadFile reads a JSON mask file for scheme s.
func (r *MaskRegistry) LoadFile(s Scheme, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return r.fail(s, fmt.Errorf("read mask: %w", err))
	}
	return r.Load(s, data)
}

// Load parses a JSON mask (a flat or nested array of integers) for scheme s
// and validates every index against the scheme's bit length.
func (r *MaskRegistry) Load(s Scheme, data []byte) error {
	if !s.Valid() {
		return errors.New(errors.ErrCodeEncodingUnavailable, "Unsupported model descriptor.").WithDetail(string(s))
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return r.fail(s, fmt.Errorf("decode mask: %w", err))
	}
	indices, err := flattenIndices(raw, nil)
	if err != nil {
		return r.fail(s, err)
	}
	for _, idx := range indices {
		if idx >= s.Bits() {
			return r.fail(s, fmt.Errorf("mask index %d out of range for %d-bit %s", idx, s.Bits(), s))
		}
	}

	r.mu.Lock()
	r.masks[s] = indices
	delete(r.failures, s)
	r.mu.Unlock()

	r.logger.Info("feature mask loaded", logging.String("scheme", s.String()), logging.Int("features", len(indices)))
	return nil
}

func (r *MaskRegistry) fail(s Scheme, cause error) error {
	appErr := errors.Wrap(cause, errors.ErrCodeEncodingUnavailable, "feature mask unavailable").WithDetail(s.String())
	r.mu.Lock()
	delete(r.masks, s)
	r.failures[s] = appErr
	r.mu.Unlock()
	return appErr
}

// Mask returns the ordered indices for s. A disabled or unknown scheme is a
// configuration error.
func (r *MaskRegistry) Mask(s Scheme) ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.masks[s]; ok {
		return m, nil
	}
	if err, ok := r.failures[s]; ok {
		return nil, err
	}
	return nil, errors.New(errors.ErrCodeEncodingUnavailable, "feature mask unavailable").WithDetail(s.String())
}

// Enabled reports whether s has a usable mask.
func (r *MaskRegistry) Enabled(s Scheme) bool {
	r.mu.RLock()
	_, ok := r.masks[s]
	r.mu.RUnlock()
	return ok
}

// Width is the encoded vector length for s, or 0 when s is disabled.
func (r *MaskRegistry) Width(s Scheme) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.masks[s])
}

func flattenIndices(v interface{}, out []int) ([]int, error) {
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			var err error
			if out, err = flattenIndices(e, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	case float64:
		if t < 0 || t != math.Trunc(t) {
			return nil, fmt.Errorf("mask entry %v is not a non-negative integer", t)
		}
		return append(out, int(t)), nil
	default:
		return nil, fmt.Errorf("mask entry of type %T is not an integer", v)
	}
}
