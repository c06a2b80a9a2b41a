package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

type postgresCompoundRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresCompoundRepo returns the compounds table implementation of
// compound.Repository.
func NewPostgresCompoundRepo(conn *postgres.Connection, log logging.Logger) compound.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresCompoundRepo{
		conn:     conn,
		log:      log.Named("compound-repo"),
		executor: conn.DB(),
	}
}

func (r *postgresCompoundRepo) FindBySMILES(ctx context.Context, smiles []string) (map[string]*compound.ReferenceRecord, error) {
	out := make(map[string]*compound.ReferenceRecord, len(smiles))
	if len(smiles) == 0 {
		return out, nil
	}

	query := `SELECT ` + compoundColumns + ` FROM compounds WHERE smiles = ANY($1)`
	rows, err := r.executor.QueryContext(ctx, query, pq.Array(smiles))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query compounds")
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanCompound(rows)
		if err != nil {
			return nil, err
		}
		out[rec.SMILES] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate compounds")
	}
	r.log.Debug("compounds loaded", logging.Int("requested", len(smiles)), logging.Int("found", len(out)))
	return out, nil
}

// Upsert keeps existing reference fields when the incoming record has none,
// so a degraded lookup never erases data from an earlier successful one.
func (r *postgresCompoundRepo) Upsert(ctx context.Context, rec *compound.ReferenceRecord) error {
	if rec == nil || rec.SMILES == "" {
		return errors.New(errors.ErrCodeValidation, "compound smiles is required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO compounds (` + compoundColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (smiles) DO UPDATE SET
			cid               = COALESCE(EXCLUDED.cid, compounds.cid),
			molecular_formula = COALESCE(EXCLUDED.molecular_formula, compounds.molecular_formula),
			molecular_weight  = COALESCE(EXCLUDED.molecular_weight, compounds.molecular_weight),
			iupac_name        = COALESCE(EXCLUDED.iupac_name, compounds.iupac_name),
			inchi             = COALESCE(EXCLUDED.inchi, compounds.inchi),
			inchikey          = COALESCE(EXCLUDED.inchikey, compounds.inchikey),
			synonyms          = COALESCE(EXCLUDED.synonyms, compounds.synonyms),
			description       = COALESCE(EXCLUDED.description, compounds.description),
			structure_image   = COALESCE(EXCLUDED.structure_image, compounds.structure_image)
		RETURNING id, created_at
	`
	err := r.executor.QueryRowContext(ctx, query,
		rec.ID, rec.SMILES, rec.CID, rec.MolecularFormula, rec.MolecularWeight, rec.IUPACName,
		rec.InChI, rec.InChIKey, rec.Synonyms, rec.Description, rec.StructureImage, rec.CreatedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert compound")
	}
	return nil
}

// Library groups the stored results by structure. With a UserID only that
// user's batches count toward Predictions and LastPredictedAt.
func (r *postgresCompoundRepo) Library(ctx context.Context, f compound.LibraryFilter) ([]*compound.LibraryEntry, int64, error) {
	p := f.Pagination.Normalize()
	var cond conditions
	if f.UserID != "" {
		cond.add("p.user_id = ?", f.UserID)
	}
	from := `
		FROM prediction_compounds pc
		JOIN predictions p ON p.id = pc.prediction_id`

	var total int64
	err := r.executor.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT pc.compound_id)`+from+cond.where(), cond.args...).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count library")
	}

	limit, args := cond.page(p)
	query := `SELECT ` + joinedCompoundColumns + `, COUNT(*), MAX(p.created_at)` + from + `
		JOIN compounds c ON c.id = pc.compound_id` + cond.where() + `
		GROUP BY c.id
		ORDER BY MAX(p.created_at) DESC, c.smiles` + limit
	rows, err := r.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query library")
	}
	defer rows.Close()

	var out []*compound.LibraryEntry
	for rows.Next() {
		e := &compound.LibraryEntry{Compound: &compound.ReferenceRecord{}}
		dest := append(compoundDest(e.Compound), &e.Predictions, &e.LastPredictedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan library entry")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate library")
	}
	r.log.Debug("library loaded", logging.String("user_id", f.UserID), logging.Int("entries", len(out)), logging.Int64("total", total))
	return out, total, nil
}

// ensureCompound returns the id of the compounds row for smiles,
// inserting a structure-only row when none exists.
func ensureCompound(ctx context.Context, exec queryExecutor, smiles string, candidate uuid.UUID) (uuid.UUID, error) {
	if candidate == uuid.Nil {
		candidate = uuid.New()
	}
	var id uuid.UUID
	err := exec.QueryRowContext(ctx, `
		INSERT INTO compounds (id, smiles, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (smiles) DO UPDATE SET smiles = EXCLUDED.smiles
		RETURNING id
	`, candidate, smiles, time.Now().UTC()).Scan(&id)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to ensure compound")
	}
	return id, nil
}

func scanCompound(row scanner) (*compound.ReferenceRecord, error) {
	rec := &compound.ReferenceRecord{}
	if err := row.Scan(compoundDest(rec)...); err != nil {
		if err == sql.ErrNoRows {
			return nil, errCompoundNotFound()
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan compound")
	}
	return rec, nil
}
