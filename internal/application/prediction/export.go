package prediction

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"

	"github.com/google/uuid"

	domain "github.com/turtacn/AntiMalaria-Intelligence/internal/domain/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// ExportHeader is the fixed column order of exported predictions.
var ExportHeader = []string{
	"SMILES", "IUPAC_Name", "Molecular_Formula", "Molecular_Weight",
	"Predicted_IC50", "Predicted_Category", "PubChem_CID",
}

// ExportFileName is the attachment name for an exported batch.
func ExportFileName(id uuid.UUID) string {
	return "prediction_" + id.String() + ".csv"
}

// ExportCSV renders a stored batch. Unlike Get, a batch owned by someone
// else is reported as forbidden.
func (s *serviceImpl) ExportCSV(ctx context.Context, id uuid.UUID, requester Requester) ([]byte, error) {
	b, err := s.predictions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(b) {
		return nil, errors.Forbidden("You do not have permission to download this prediction.")
	}
	return WriteCSV(b)
}

// WriteCSV renders b's results in result order. Missing reference fields
// are written as empty cells.
func WriteCSV(b *domain.Batch) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ExportHeader); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to write CSV header")
	}
	for _, r := range b.Results {
		row := []string{
			r.SMILES, "", "", "",
			strconv.FormatFloat(r.PIC50, 'f', -1, 64),
			string(r.Category), "",
		}
		if c := r.Compound; c != nil {
			row[1] = deref(c.IUPACName)
			row[2] = deref(c.MolecularFormula)
			if c.MolecularWeight != nil {
				row[3] = strconv.FormatFloat(*c.MolecularWeight, 'f', -1, 64)
			}
			if c.CID != nil {
				row[6] = strconv.FormatInt(*c.CID, 10)
			}
		}
		if err := w.Write(row); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to write CSV row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to flush CSV")
	}
	return buf.Bytes(), nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
