package repositories

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

// queryExecutor is *sql.DB or the *sql.Tx of a batch save.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const compoundColumns = `id, smiles, cid, molecular_formula, molecular_weight, iupac_name,
	inchi, inchikey, synonyms, description, structure_image, created_at`

// joinedCompoundColumns selects compoundColumns through the alias c.
const joinedCompoundColumns = `c.id, c.smiles, c.cid, c.molecular_formula, c.molecular_weight, c.iupac_name,
	c.inchi, c.inchikey, c.synonyms, c.description, c.structure_image, c.created_at`

// compoundDest returns scan targets for compoundColumns in order.
func compoundDest(rec *compound.ReferenceRecord) []interface{} {
	return []interface{}{
		&rec.ID, &rec.SMILES, &rec.CID, &rec.MolecularFormula, &rec.MolecularWeight, &rec.IUPACName,
		&rec.InChI, &rec.InChIKey, &rec.Synonyms, &rec.Description, &rec.StructureImage, &rec.CreatedAt,
	}
}

// conditions collects AND-ed filters; each "?" becomes the next positional
// parameter.
type conditions struct {
	clauses []string
	args    []interface{}
}

func (c *conditions) add(clause string, arg interface{}) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, strings.Replace(clause, "?", "$"+strconv.Itoa(len(c.args)), 1))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// page returns the LIMIT/OFFSET suffix and the full argument list for it.
func (c *conditions) page(p common.Pagination) (string, []interface{}) {
	n := len(c.args)
	args := append(append(make([]interface{}, 0, n+2), c.args...), p.PageSize, p.Offset())
	return ` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2), args
}

func errPredictionNotFound() error {
	return errors.New(errors.ErrCodePredictionNotFound, "Prediction not found.")
}

func errResultNotFound() error {
	return errors.New(errors.ErrCodeResultNotFound, "Prediction compound not found.")
}

func errCompoundNotFound() error {
	return errors.New(errors.ErrCodeNotFound, "compound not found")
}

// nullUUID stores uuid.Nil as NULL, e.g. a batch whose model was deleted.
func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
