package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

var compoundRowColumns = []string{
	"id", "smiles", "cid", "molecular_formula", "molecular_weight", "iupac_name",
	"inchi", "inchikey", "synonyms", "description", "structure_image", "created_at",
}

type CompoundRepoTestSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	repo compound.Repository
}

func (s *CompoundRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)

	log := logging.NewNopLogger()
	s.repo = NewPostgresCompoundRepo(postgres.NewConnectionWithDB(s.db, log), log)
}

func (s *CompoundRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *CompoundRepoTestSuite) TestFindBySMILES_Empty() {
	got, err := s.repo.FindBySMILES(context.Background(), nil)
	s.NoError(err)
	s.Empty(got)
}

func (s *CompoundRepoTestSuite) TestFindBySMILES_KeysByStructure() {
	ethanol := uuid.New()
	s.mock.ExpectQuery("SELECT .* FROM compounds WHERE smiles = ANY").
		WithArgs(pq.Array([]string{"CCO", "CCN"})).
		WillReturnRows(sqlmock.NewRows(compoundRowColumns).AddRow(
			ethanol, "CCO", int64(702), "C2H6O", 46.07, "ethanol",
			"InChI=1S/C2H6O/c1-2-3/h3H,2H2,1H3", "LFQSCWFLJHTTHZ-UHFFFAOYSA-N",
			"ethanol, alcohol", nil, nil, time.Now(),
		))

	got, err := s.repo.FindBySMILES(context.Background(), []string{"CCO", "CCN"})
	s.Require().NoError(err)
	s.Len(got, 1)

	rec := got["CCO"]
	s.Require().NotNil(rec)
	s.Equal(ethanol, rec.ID)
	s.Require().NotNil(rec.CID)
	s.Equal(int64(702), *rec.CID)
	s.Require().NotNil(rec.MolecularWeight)
	s.InDelta(46.07, *rec.MolecularWeight, 1e-9)
	s.Nil(rec.Description)
	s.Nil(rec.StructureImage)
	s.NotContains(got, "CCN")
}

func (s *CompoundRepoTestSuite) TestFindBySMILES_QueryError() {
	s.mock.ExpectQuery("SELECT .* FROM compounds").WillReturnError(errors.New("db down"))

	_, err := s.repo.FindBySMILES(context.Background(), []string{"CCO"})
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func (s *CompoundRepoTestSuite) TestUpsert_WritesBackStoredID() {
	stored := uuid.New()
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := compound.NewReferenceRecord("CCO")
	cid := int64(702)
	rec.CID = &cid

	s.mock.ExpectQuery("INSERT INTO compounds .* ON CONFLICT \\(smiles\\) DO UPDATE SET").
		WithArgs(rec.ID, "CCO", &cid, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(stored, created))

	s.Require().NoError(s.repo.Upsert(context.Background(), rec))
	s.Equal(stored, rec.ID)
	s.Equal(created, rec.CreatedAt)
}

func (s *CompoundRepoTestSuite) TestUpsert_AssignsMissingID() {
	rec := &compound.ReferenceRecord{SMILES: "CCN"}

	s.mock.ExpectQuery("INSERT INTO compounds").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now()))

	s.Require().NoError(s.repo.Upsert(context.Background(), rec))
	s.NotEqual(uuid.Nil, rec.ID)
}

func (s *CompoundRepoTestSuite) TestUpsert_RequiresSMILES() {
	err := s.repo.Upsert(context.Background(), &compound.ReferenceRecord{})
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func (s *CompoundRepoTestSuite) TestUpsert_DatabaseError() {
	s.mock.ExpectQuery("INSERT INTO compounds").WillReturnError(errors.New("constraint"))

	err := s.repo.Upsert(context.Background(), compound.NewReferenceRecord("CCO"))
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func (s *CompoundRepoTestSuite) TestLibrary_ScopedToUser() {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	s.mock.ExpectQuery("SELECT COUNT\\(DISTINCT pc.compound_id\\) FROM prediction_compounds pc JOIN predictions p ON p.id = pc.prediction_id WHERE p.user_id = \\$1$").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	s.mock.ExpectQuery("SELECT c.id, .* COUNT\\(\\*\\), MAX\\(p.created_at\\) .* WHERE p.user_id = \\$1 GROUP BY c.id ORDER BY MAX\\(p.created_at\\) DESC, c.smiles LIMIT \\$2 OFFSET \\$3").
		WithArgs("user-1", 10, 0).
		WillReturnRows(sqlmock.NewRows(append(append([]string{}, compoundRowColumns...), "count", "max")).
			AddRow(uuid.New(), "CCO", int64(702), "C2H6O", 46.07, "ethanol", nil, nil, nil, nil, nil, earlier, int64(3), now).
			AddRow(uuid.New(), "CCN", nil, nil, nil, nil, nil, nil, nil, nil, nil, earlier, int64(1), earlier))

	entries, total, err := s.repo.Library(context.Background(), compound.LibraryFilter{
		UserID:     "user-1",
		Pagination: common.Pagination{Page: 1, PageSize: 10},
	})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Require().Len(entries, 2)

	s.Equal("CCO", entries[0].Compound.SMILES)
	s.Equal(int64(3), entries[0].Predictions)
	s.True(entries[0].Compound.Resolved())
	s.WithinDuration(now, entries[0].LastPredictedAt, time.Second)
	s.Equal(int64(1), entries[1].Predictions)
	s.False(entries[1].Compound.Resolved())
}

func (s *CompoundRepoTestSuite) TestLibrary_AllUsers() {
	s.mock.ExpectQuery("SELECT COUNT\\(DISTINCT pc.compound_id\\) FROM prediction_compounds pc JOIN predictions p ON p.id = pc.prediction_id$").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	s.mock.ExpectQuery("GROUP BY c.id .* LIMIT \\$1 OFFSET \\$2").
		WithArgs(common.DefaultPageSize, 0).
		WillReturnRows(sqlmock.NewRows(append(append([]string{}, compoundRowColumns...), "count", "max")))

	entries, total, err := s.repo.Library(context.Background(), compound.LibraryFilter{})
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(entries)
}

func (s *CompoundRepoTestSuite) TestLibrary_CountError() {
	s.mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("timeout"))

	_, _, err := s.repo.Library(context.Background(), compound.LibraryFilter{UserID: "u"})
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestCompoundRepoTestSuite(t *testing.T) {
	suite.Run(t, new(CompoundRepoTestSuite))
}
