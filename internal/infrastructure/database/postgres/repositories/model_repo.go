package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/mlmodel"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

const modelColumns = `id, name, method, descriptor, version, file_name, is_active, created_at`

type postgresModelRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

// NewPostgresModelRepo returns the ml_models table implementation of
// mlmodel.Repository.
func NewPostgresModelRepo(conn *postgres.Connection, log logging.Logger) mlmodel.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresModelRepo{conn: conn, log: log.Named("model-repo")}
}

// Create assigns the next version for the (method, descriptor) pair under a
// row lock on the pair, then inserts m inactive.
func (r *postgresModelRepo) Create(ctx context.Context, m *mlmodel.Model) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		var current int
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(version), 0) FROM ml_models
			WHERE method = $1 AND descriptor = $2
		`, m.Method, m.Descriptor).Scan(&current)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read model version")
		}

		m.Version = current + 1
		m.Name = mlmodel.DisplayName(m.Method, m.Descriptor, m.Version)
		m.IsActive = false

		err = tx.QueryRowContext(ctx, `
			INSERT INTO ml_models (id, name, method, descriptor, version, file_name, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, FALSE)
			RETURNING created_at
		`, m.ID, m.Name, m.Method, m.Descriptor, m.Version, m.FileName).Scan(&m.CreatedAt)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				return errors.Wrap(err, errors.ErrCodeModelAlreadyExists, "model already exists")
			}
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create model")
		}
		return nil
	})
}

func (r *postgresModelRepo) GetByID(ctx context.Context, id uuid.UUID) (*mlmodel.Model, error) {
	row := r.conn.DB().QueryRowContext(ctx, `SELECT `+modelColumns+` FROM ml_models WHERE id = $1`, id)
	return scanModel(row)
}

func (r *postgresModelRepo) GetActive(ctx context.Context, method, descriptor string) (*mlmodel.Model, error) {
	row := r.conn.DB().QueryRowContext(ctx, `
		SELECT `+modelColumns+` FROM ml_models
		WHERE method = $1 AND descriptor = $2 AND is_active
	`, method, descriptor)
	m, err := scanModel(row)
	if err != nil && errors.IsCode(err, errors.ErrCodeNotFound) {
		return nil, errors.Newf(errors.ErrCodeModelNotFound,
			"No active model found for %s with %s.", method, descriptor)
	}
	return m, err
}

func (r *postgresModelRepo) List(ctx context.Context) ([]*mlmodel.Model, error) {
	rows, err := r.conn.DB().QueryContext(ctx, `
		SELECT `+modelColumns+` FROM ml_models
		ORDER BY method, descriptor, version DESC
	`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list models")
	}
	defer rows.Close()

	var out []*mlmodel.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate models")
	}
	return out, nil
}

// Activate clears the active flag on the rest of the pair before setting it
// on id, so the partial unique index never sees two active rows.
func (r *postgresModelRepo) Activate(ctx context.Context, id uuid.UUID) (*mlmodel.Model, error) {
	var activated *mlmodel.Model
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		m, err := scanModel(tx.QueryRowContext(ctx,
			`SELECT `+modelColumns+` FROM ml_models WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE ml_models SET is_active = FALSE
			WHERE method = $1 AND descriptor = $2 AND id <> $3 AND is_active
		`, m.Method, m.Descriptor, m.ID); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to deactivate models")
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE ml_models SET is_active = TRUE WHERE id = $1`, m.ID); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to activate model")
		}

		m.IsActive = true
		activated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("model activated",
		logging.String("model_id", activated.ID.String()),
		logging.String("name", activated.Name),
	)
	return activated, nil
}

func (r *postgresModelRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn.DB().ExecContext(ctx, `DELETE FROM ml_models WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete model")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeNotFound, "Model not found.")
	}
	return nil
}

func scanModel(row scanner) (*mlmodel.Model, error) {
	m := &mlmodel.Model{}
	err := row.Scan(&m.ID, &m.Name, &m.Method, &m.Descriptor, &m.Version, &m.FileName, &m.IsActive, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrCodeNotFound, "Model not found.")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan model")
	}
	return m, nil
}
