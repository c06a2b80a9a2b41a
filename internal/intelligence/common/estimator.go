package common

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// Estimator kinds understood by DecodeArtifact.
const (
	KindLinear = "linear"
	KindForest = "forest"
	KindGBM    = "gbm"
)

// Supported artifact extensions.
const (
	ExtJSON = ".json"
	ExtGob  = ".gob"
)

// Estimator is a trained regressor mapping feature rows to potency values.
type Estimator interface {
	// Predict returns one value per row of x.
	Predict(x [][]float64) ([]float64, error)
	// NumFeatures is the expected row width, or 0 when the artifact does not
	// pin it.
	NumFeatures() int
	// Kind names the estimator family.
	Kind() string
}

// Artifact is the serialized form of every estimator family. Fields not used
// by a kind are left empty.
type Artifact struct {
	Kind         string    `json:"kind"`
	NFeatures    int       `json:"n_features,omitempty"`
	Weights      []float64 `json:"weights,omitempty"`
	Intercept    float64   `json:"intercept,omitempty"`
	Trees        []Tree    `json:"trees,omitempty"`
	LearningRate float64   `json:"learning_rate,omitempty"`
	BaseScore    float64   `json:"base_score,omitempty"`
}

// Tree is a binary regression tree in array form. Node i is a leaf when
// Left[i] is negative; otherwise rows with x[Feature[i]] <= Threshold[i] go
// to Left[i] and the rest to Right[i].
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`
}

// SupportedArtifact reports whether name has a loadable extension.
func SupportedArtifact(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ExtJSON, ExtGob:
		return true
	}
	return false
}

// DecodeArtifact reads an estimator from r. The format is chosen by the
// extension of name.
func DecodeArtifact(name string, r io.Reader) (Estimator, error) {
	var a Artifact
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ExtJSON:
		if err := json.NewDecoder(r).Decode(&a); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeModelLoadFailed, "decode json artifact").WithDetail(name)
		}
	case ExtGob:
		if err := gob.NewDecoder(r).Decode(&a); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeModelLoadFailed, "decode gob artifact").WithDetail(name)
		}
	default:
		return nil, errors.New(errors.ErrCodeModelFormatUnsupported, "Unsupported model format.").WithDetail(name)
	}
	est, err := a.Build()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelLoadFailed, "invalid artifact").WithDetail(name)
	}
	return est, nil
}

// EncodeArtifact serializes a in the format implied by name.
func EncodeArtifact(name string, a *Artifact) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(name)) {
	case ExtJSON:
		if err := json.NewEncoder(&buf).Encode(a); err != nil {
			return nil, err
		}
	case ExtGob:
		if err := gob.NewEncoder(&buf).Encode(a); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New(errors.ErrCodeModelFormatUnsupported, "Unsupported model format.").WithDetail(name)
	}
	return buf.Bytes(), nil
}

// Build validates the artifact and returns the matching estimator.
func (a *Artifact) Build() (Estimator, error) {
	switch a.Kind {
	case KindLinear:
		if len(a.Weights) == 0 {
			return nil, fmt.Errorf("linear artifact has no weights")
		}
		if a.NFeatures != 0 && a.NFeatures != len(a.Weights) {
			return nil, fmt.Errorf("n_features %d does not match %d weights", a.NFeatures, len(a.Weights))
		}
		return &LinearRegressor{Weights: a.Weights, Intercept: a.Intercept}, nil
	case KindForest, KindGBM:
		if len(a.Trees) == 0 {
			return nil, fmt.Errorf("%s artifact has no trees", a.Kind)
		}
		for i := range a.Trees {
			if err := a.Trees[i].validate(a.NFeatures); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		if a.Kind == KindForest {
			return &ForestRegressor{Trees: a.Trees, NFeatures: a.NFeatures}, nil
		}
		lr := a.LearningRate
		if lr == 0 {
			lr = 0.1
		}
		return &GBMRegressor{Trees: a.Trees, LearningRate: lr, BaseScore: a.BaseScore, NFeatures: a.NFeatures}, nil
	case "":
		return nil, fmt.Errorf("artifact kind is required")
	default:
		return nil, fmt.Errorf("unknown artifact kind %q", a.Kind)
	}
}

func (t *Tree) validate(nFeatures int) error {
	n := len(t.Value)
	if n == 0 {
		return fmt.Errorf("no nodes")
	}
	if len(t.Feature) != n || len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n {
		return fmt.Errorf("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		if t.Left[i] < 0 {
			continue
		}
		// Children must come after their parent, which also rules out cycles.
		if t.Left[i] <= i || t.Left[i] >= n || t.Right[i] <= i || t.Right[i] >= n {
			return fmt.Errorf("node %d has invalid children", i)
		}
		if t.Feature[i] < 0 || (nFeatures > 0 && t.Feature[i] >= nFeatures) {
			return fmt.Errorf("node %d splits on invalid feature %d", i, t.Feature[i])
		}
	}
	return nil
}

func (t *Tree) predict(row []float64) (float64, error) {
	i := 0
	for t.Left[i] >= 0 {
		f := t.Feature[i]
		if f >= len(row) {
			return 0, fmt.Errorf("split feature %d outside row of width %d", f, len(row))
		}
		if row[f] <= t.Threshold[i] {
			i = t.Left[i]
		} else {
			i = t.Right[i]
		}
	}
	return t.Value[i], nil
}

func checkWidth(x [][]float64, want int) error {
	if want == 0 {
		return nil
	}
	for i, row := range x {
		if len(row) != want {
			return fmt.Errorf("row %d has %d features, model expects %d", i, len(row), want)
		}
	}
	return nil
}

// LinearRegressor computes intercept + w·x.
type LinearRegressor struct {
	Weights   []float64
	Intercept float64
}

func (m *LinearRegressor) Kind() string     { return KindLinear }
func (m *LinearRegressor) NumFeatures() int { return len(m.Weights) }

func (m *LinearRegressor) Predict(x [][]float64) ([]float64, error) {
	if err := checkWidth(x, len(m.Weights)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		y := m.Intercept
		for j, w := range m.Weights {
			y += w * row[j]
		}
		out[i] = y
	}
	return out, nil
}

// ForestRegressor averages the outputs of its trees.
type ForestRegressor struct {
	Trees     []Tree
	NFeatures int
}

func (m *ForestRegressor) Kind() string     { return KindForest }
func (m *ForestRegressor) NumFeatures() int { return m.NFeatures }

func (m *ForestRegressor) Predict(x [][]float64) ([]float64, error) {
	if err := checkWidth(x, m.NFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		var sum float64
		for k := range m.Trees {
			v, err := m.Trees[k].predict(row)
			if err != nil {
				return nil, err
			}
			sum += v
		}
		out[i] = sum / float64(len(m.Trees))
	}
	return out, nil
}

// GBMRegressor sums scaled tree outputs on top of a base score.
type GBMRegressor struct {
	Trees        []Tree
	LearningRate float64
	BaseScore    float64
	NFeatures    int
}

func (m *GBMRegressor) Kind() string     { return KindGBM }
func (m *GBMRegressor) NumFeatures() int { return m.NFeatures }

func (m *GBMRegressor) Predict(x [][]float64) ([]float64, error) {
	if err := checkWidth(x, m.NFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		y := m.BaseScore
		for k := range m.Trees {
			v, err := m.Trees[k].predict(row)
			if err != nil {
				return nil, err
			}
			y += m.LearningRate * v
		}
		out[i] = y
	}
	return out, nil
}

// AllFinite reports whether every value is a real number.
func AllFinite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
