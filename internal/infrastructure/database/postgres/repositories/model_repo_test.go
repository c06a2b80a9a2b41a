package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/mlmodel"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

var modelRowColumns = []string{"id", "name", "method", "descriptor", "version", "file_name", "is_active", "created_at"}

type ModelRepoTestSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	repo mlmodel.Repository
}

func (s *ModelRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)

	log := logging.NewNopLogger()
	s.repo = NewPostgresModelRepo(postgres.NewConnectionWithDB(s.db, log), log)
}

func (s *ModelRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *ModelRepoTestSuite) TestCreate_AssignsNextVersion() {
	m := mlmodel.NewModel("rf", "ECFP", "rf_ecfp_v3.json")
	created := time.Now()

	s.mock.ExpectBegin()
	s.mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\) FROM ml_models").
		WithArgs("rf", "ECFP").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))
	s.mock.ExpectQuery("INSERT INTO ml_models").
		WithArgs(m.ID, "rf_ECFP_v3", "rf", "ECFP", 3, "rf_ecfp_v3.json").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	s.mock.ExpectCommit()

	s.Require().NoError(s.repo.Create(context.Background(), m))
	s.Equal(3, m.Version)
	s.Equal("rf_ECFP_v3", m.Name)
	s.False(m.IsActive)
}

func (s *ModelRepoTestSuite) TestCreate_DuplicateFile() {
	m := mlmodel.NewModel("rf", "ECFP", "rf_ecfp.json")

	s.mock.ExpectBegin()
	s.mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(0))
	s.mock.ExpectQuery("INSERT INTO ml_models").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "ml_models_file_name_key"})
	s.mock.ExpectRollback()

	err := s.repo.Create(context.Background(), m)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeModelAlreadyExists))
}

func (s *ModelRepoTestSuite) TestGetActive() {
	id := uuid.New()
	s.mock.ExpectQuery("SELECT .* FROM ml_models WHERE method = \\$1 AND descriptor = \\$2 AND is_active").
		WithArgs("rf", "ECFP").
		WillReturnRows(sqlmock.NewRows(modelRowColumns).
			AddRow(id, "rf_ECFP_v1", "rf", "ECFP", 1, "rf_ecfp.json", true, time.Now()))

	m, err := s.repo.GetActive(context.Background(), "rf", "ECFP")
	s.Require().NoError(err)
	s.Equal(id, m.ID)
	s.True(m.IsActive)
}

func (s *ModelRepoTestSuite) TestGetActive_NoneActive() {
	s.mock.ExpectQuery("SELECT .* FROM ml_models").WillReturnError(sql.ErrNoRows)

	_, err := s.repo.GetActive(context.Background(), "rf", "PUBCHEMFP")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeModelNotFound))
	s.True(pkgerrors.IsNotFound(err))
}

func (s *ModelRepoTestSuite) TestList() {
	s.mock.ExpectQuery("SELECT .* FROM ml_models ORDER BY method, descriptor, version DESC").
		WillReturnRows(sqlmock.NewRows(modelRowColumns).
			AddRow(uuid.New(), "rf_ECFP_v2", "rf", "ECFP", 2, "b.json", false, time.Now()).
			AddRow(uuid.New(), "rf_ECFP_v1", "rf", "ECFP", 1, "a.json", true, time.Now()))

	models, err := s.repo.List(context.Background())
	s.Require().NoError(err)
	s.Len(models, 2)
	s.Equal(2, models[0].Version)
}

func (s *ModelRepoTestSuite) TestActivate_DeactivatesRestOfPair() {
	id := uuid.New()

	s.mock.ExpectBegin()
	s.mock.ExpectQuery("SELECT .* FROM ml_models WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(modelRowColumns).
			AddRow(id, "gbm_PUBCHEMFP_v2", "gbm", "PUBCHEMFP", 2, "gbm.json", false, time.Now()))
	s.mock.ExpectExec("UPDATE ml_models SET is_active = FALSE").
		WithArgs("gbm", "PUBCHEMFP", id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("UPDATE ml_models SET is_active = TRUE WHERE id = \\$1").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	m, err := s.repo.Activate(context.Background(), id)
	s.Require().NoError(err)
	s.True(m.IsActive)
	s.Equal("gbm_PUBCHEMFP_v2", m.Name)
}

func (s *ModelRepoTestSuite) TestActivate_UnknownModel() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery("SELECT .* FROM ml_models WHERE id").WillReturnError(sql.ErrNoRows)
	s.mock.ExpectRollback()

	_, err := s.repo.Activate(context.Background(), uuid.New())
	s.True(pkgerrors.IsNotFound(err))
}

func (s *ModelRepoTestSuite) TestDelete() {
	id := uuid.New()
	s.mock.ExpectExec("DELETE FROM ml_models WHERE id = \\$1").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.NoError(s.repo.Delete(context.Background(), id))
}

func (s *ModelRepoTestSuite) TestDelete_Missing() {
	s.mock.ExpectExec("DELETE FROM ml_models").WillReturnResult(sqlmock.NewResult(0, 0))
	s.True(pkgerrors.IsNotFound(s.repo.Delete(context.Background(), uuid.New())))
}

func TestModelRepoTestSuite(t *testing.T) {
	suite.Run(t, new(ModelRepoTestSuite))
}
