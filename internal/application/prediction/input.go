// Package prediction runs potency prediction batches: input normalization,
// inference, enrichment, result composition and persistence.
package prediction

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	domain "github.com/turtacn/AntiMalaria-Intelligence/internal/domain/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// Input validation messages returned to API callers verbatim.
const (
	msgMissingFields = "model_descriptor and model_method are required."
	msgNoInput       = "Provide either a 'smiles' field or a 'file' (CSV)."
	msgEmptyInput    = "No valid SMILES strings provided."
	msgFileType      = "Only CSV files are supported."
	msgSMILESShape   = "SMILES input must be a comma-separated string or a list of strings."
)

// Upload is a CSV file submitted with a batch.
type Upload struct {
	Name string
	Body io.Reader
}

// BatchInput is a prediction request. Exactly one of File and SMILES is
// used; File wins when both are set.
type BatchInput struct {
	UserID          string
	ModelMethod     string
	ModelDescriptor string
	// SMILES holds text entries, already split on commas.
	SMILES []string
	File   *Upload
}

// Validate checks the model selection fields.
func (in *BatchInput) Validate() error {
	if strings.TrimSpace(in.ModelMethod) == "" || strings.TrimSpace(in.ModelDescriptor) == "" {
		return errors.New(errors.ErrCodePredictionMissingFields, msgMissingFields)
	}
	if in.File == nil && len(in.SMILES) == 0 {
		return errors.New(errors.ErrCodePredictionEmptyInput, msgNoInput)
	}
	return nil
}

// Structures reads the input and returns the normalized, deduplicated
// structures together with where they came from.
func (in *BatchInput) Structures() ([]string, domain.InputSource, error) {
	var (
		raw    []string
		source domain.InputSource
		err    error
	)
	if in.File != nil {
		source = domain.InputSourceCSV
		raw, err = ReadCSV(in.File)
		if err != nil {
			return nil, source, err
		}
	} else {
		source = domain.InputSourceText
		raw = in.SMILES
	}

	structures := Normalize(raw)
	if len(structures) == 0 {
		return nil, source, errors.New(errors.ErrCodePredictionEmptyInput, msgEmptyInput)
	}
	return structures, source, nil
}

// CheckLength rejects the first structure longer than max bytes. A
// non-positive max disables the check.
func CheckLength(structures []string, max int) error {
	if max <= 0 {
		return nil
	}
	for _, s := range structures {
		if len(s) > max {
			head := s
			if len(head) > 32 {
				head = head[:32] + "..."
			}
			return errors.Newf(errors.ErrCodePredictionTooLong,
				"A SMILES string may be at most %d characters long.", max).WithDetail(head)
		}
	}
	return nil
}

// SplitText splits a comma-separated SMILES string.
func SplitText(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// DecodeSMILESField accepts the JSON form of the smiles field: either a
// comma-separated string or an array whose string elements are kept.
func DecodeSMILESField(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return SplitText(text), nil
	}
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.New(errors.ErrCodeBadRequest, msgSMILESShape)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// ReadCSV returns the first column of every row, skipping blank cells. A
// UTF-8 byte order mark is dropped.
func ReadCSV(f *Upload) ([]string, error) {
	if !strings.HasSuffix(f.Name, ".csv") {
		return nil, errors.New(errors.ErrCodePredictionFileType, msgFileType)
	}
	r := csv.NewReader(transform.NewReader(f.Body, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var out []string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.New(errors.ErrCodePredictionFileParse, "Failed to parse CSV: "+err.Error())
		}
		if len(row) == 0 {
			continue
		}
		if cell := strings.TrimSpace(row[0]); cell != "" {
			out = append(out, cell)
		}
	}
	return out, nil
}

// Normalize applies NFC, trims each entry, drops empties and removes
// duplicates keeping first occurrences.
func Normalize(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		s := strings.TrimSpace(norm.NFC.String(e))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
