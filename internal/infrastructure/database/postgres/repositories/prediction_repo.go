package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

const predictionColumns = `id, user_id, ml_model_id, input_source_type, created_at, completed_at`

type postgresPredictionRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

// NewPostgresPredictionRepo returns the predictions table implementation of
// prediction.Repository.
func NewPostgresPredictionRepo(conn *postgres.Connection, log logging.Logger) prediction.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresPredictionRepo{conn: conn, log: log.Named("prediction-repo")}
}

// SaveBatch writes the batch header, makes sure every result's structure has
// a compounds row, and stores the results with their input position.
func (r *postgresPredictionRepo) SaveBatch(ctx context.Context, b *prediction.Batch) error {
	if b == nil || b.ID == uuid.Nil {
		return errors.New(errors.ErrCodeValidation, "prediction batch id is required")
	}

	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO predictions (`+predictionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, b.ID, b.UserID, nullUUID(b.MLModelID), string(b.InputSourceType), b.CreatedAt, b.CompletedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert prediction")
		}

		for i, res := range b.Results {
			var candidate uuid.UUID
			if res.Compound != nil {
				candidate = res.Compound.ID
			}
			compoundID, err := ensureCompound(ctx, tx, res.SMILES, candidate)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO prediction_compounds (id, prediction_id, compound_id, position, ic50, lelp, category)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, uuid.New(), b.ID, compoundID, i, res.PIC50, res.LELP, string(res.Category))
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert prediction result")
			}
		}

		r.log.Debug("prediction saved",
			logging.String("prediction_id", b.ID.String()),
			logging.Int("results", len(b.Results)),
		)
		return nil
	})
}

func (r *postgresPredictionRepo) Get(ctx context.Context, id uuid.UUID) (*prediction.Batch, error) {
	db := r.conn.DB()
	b, err := scanPrediction(db.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT pc.ic50, pc.lelp, pc.category, `+joinedCompoundColumns+`
		FROM prediction_compounds pc
		JOIN compounds c ON c.id = pc.compound_id
		WHERE pc.prediction_id = $1
		ORDER BY pc.position
	`, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query prediction results")
	}
	defer rows.Close()

	for rows.Next() {
		res := &prediction.Result{Compound: &compound.ReferenceRecord{}}
		var category string
		dest := append([]interface{}{&res.PIC50, &res.LELP, &category}, compoundDest(res.Compound)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan prediction result")
		}
		res.SMILES = res.Compound.SMILES
		res.Category = prediction.Category(category)
		b.Results = append(b.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate prediction results")
	}
	return b, nil
}

func (r *postgresPredictionRepo) List(ctx context.Context, f prediction.ListFilter) ([]*prediction.Batch, int64, error) {
	p := f.Pagination.Normalize()
	db := r.conn.DB()

	var cond conditions
	if f.UserID != "" {
		cond.add("user_id = ?", f.UserID)
	}

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`+cond.where(), cond.args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count predictions")
	}

	limit, args := cond.page(p)
	query := `SELECT ` + predictionColumns + ` FROM predictions` + cond.where() + ` ORDER BY created_at DESC` + limit

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list predictions")
	}
	defer rows.Close()

	var out []*prediction.Batch
	for rows.Next() {
		b, err := scanPrediction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate predictions")
	}
	return out, total, nil
}

func (r *postgresPredictionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn.DB().ExecContext(ctx, `DELETE FROM predictions WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete prediction")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errPredictionNotFound()
	}
	return nil
}

const resultColumns = `pc.id, pc.prediction_id, p.user_id, pc.position, p.created_at,
	pc.ic50, pc.lelp, pc.category, ` + joinedCompoundColumns

const resultFrom = `
	FROM prediction_compounds pc
	JOIN predictions p ON p.id = pc.prediction_id
	JOIN compounds c ON c.id = pc.compound_id`

func (r *postgresPredictionRepo) ListResults(ctx context.Context, f prediction.ResultFilter) ([]*prediction.ResultRecord, int64, error) {
	p := f.Pagination.Normalize()
	db := r.conn.DB()

	var cond conditions
	if f.UserID != "" {
		cond.add("p.user_id = ?", f.UserID)
	}
	if f.PredictionID != uuid.Nil {
		cond.add("pc.prediction_id = ?", f.PredictionID)
	}

	var total int64
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM prediction_compounds pc
		JOIN predictions p ON p.id = pc.prediction_id`+cond.where(), cond.args...).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count prediction compounds")
	}

	limit, args := cond.page(p)
	query := `SELECT ` + resultColumns + resultFrom + cond.where() +
		` ORDER BY p.created_at DESC, pc.prediction_id, pc.position` + limit
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list prediction compounds")
	}
	defer rows.Close()

	var out []*prediction.ResultRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate prediction compounds")
	}
	return out, total, nil
}

func (r *postgresPredictionRepo) GetResult(ctx context.Context, id uuid.UUID) (*prediction.ResultRecord, error) {
	return scanResult(r.conn.DB().QueryRowContext(ctx,
		`SELECT `+resultColumns+resultFrom+` WHERE pc.id = $1`, id))
}

func (r *postgresPredictionRepo) DeleteResult(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn.DB().ExecContext(ctx, `DELETE FROM prediction_compounds WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete prediction compound")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errResultNotFound()
	}
	r.log.Debug("prediction compound deleted", logging.String("result_id", id.String()))
	return nil
}

func scanResult(row scanner) (*prediction.ResultRecord, error) {
	rec := &prediction.ResultRecord{Result: prediction.Result{Compound: &compound.ReferenceRecord{}}}
	var category string
	dest := append([]interface{}{
		&rec.ID, &rec.PredictionID, &rec.UserID, &rec.Position, &rec.CreatedAt,
		&rec.PIC50, &rec.LELP, &category,
	}, compoundDest(rec.Compound)...)
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, errResultNotFound()
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan prediction compound")
	}
	rec.SMILES = rec.Compound.SMILES
	rec.Category = prediction.Category(category)
	return rec, nil
}

func scanPrediction(row scanner) (*prediction.Batch, error) {
	b := &prediction.Batch{}
	var (
		modelID uuid.NullUUID
		source  string
	)
	if err := row.Scan(&b.ID, &b.UserID, &modelID, &source, &b.CreatedAt, &b.CompletedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errPredictionNotFound()
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan prediction")
	}
	if modelID.Valid {
		b.MLModelID = modelID.UUID
	}
	b.InputSourceType = prediction.InputSource(source)
	return b, nil
}
