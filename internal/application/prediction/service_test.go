package prediction

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/mlmodel"
	domain "github.com/turtacn/AntiMalaria-Intelligence/internal/domain/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/featurize"
	pkgerrors "github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type MockModelRepository struct{ mock.Mock }

func (m *MockModelRepository) Create(ctx context.Context, mdl *mlmodel.Model) error {
	return m.Called(ctx, mdl).Error(0)
}

func (m *MockModelRepository) GetByID(ctx context.Context, id uuid.UUID) (*mlmodel.Model, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mlmodel.Model), args.Error(1)
}

func (m *MockModelRepository) GetActive(ctx context.Context, method, descriptor string) (*mlmodel.Model, error) {
	args := m.Called(ctx, method, descriptor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mlmodel.Model), args.Error(1)
}

func (m *MockModelRepository) List(ctx context.Context) ([]*mlmodel.Model, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*mlmodel.Model), args.Error(1)
}

func (m *MockModelRepository) Activate(ctx context.Context, id uuid.UUID) (*mlmodel.Model, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mlmodel.Model), args.Error(1)
}

func (m *MockModelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockPredictionRepository struct{ mock.Mock }

func (m *MockPredictionRepository) SaveBatch(ctx context.Context, b *domain.Batch) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockPredictionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Batch), args.Error(1)
}

func (m *MockPredictionRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.Batch, int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]*domain.Batch), args.Get(1).(int64), args.Error(2)
}

func (m *MockPredictionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPredictionRepository) ListResults(ctx context.Context, f domain.ResultFilter) ([]*domain.ResultRecord, int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]*domain.ResultRecord), args.Get(1).(int64), args.Error(2)
}

func (m *MockPredictionRepository) GetResult(ctx context.Context, id uuid.UUID) (*domain.ResultRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ResultRecord), args.Error(1)
}

func (m *MockPredictionRepository) DeleteResult(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockCompoundRepository struct{ mock.Mock }

func (m *MockCompoundRepository) FindBySMILES(ctx context.Context, smiles []string) (map[string]*compound.ReferenceRecord, error) {
	args := m.Called(ctx, smiles)
	return args.Get(0).(map[string]*compound.ReferenceRecord), args.Error(1)
}

func (m *MockCompoundRepository) Upsert(ctx context.Context, r *compound.ReferenceRecord) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockCompoundRepository) Library(ctx context.Context, f compound.LibraryFilter) ([]*compound.LibraryEntry, int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]*compound.LibraryEntry), args.Get(1).(int64), args.Error(2)
}

type MockPredictor struct{ mock.Mock }

func (m *MockPredictor) Predict(ctx context.Context, structures []string, modelID string, scheme featurize.Scheme) ([]float64, error) {
	args := m.Called(ctx, structures, modelID, scheme)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

type MockEnricher struct{ mock.Mock }

func (m *MockEnricher) Enrich(ctx context.Context, structures []string) map[string]*compound.ReferenceRecord {
	return m.Called(ctx, structures).Get(0).(map[string]*compound.ReferenceRecord)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) PublishEvent(ctx context.Context, topic string, ev common.DomainEvent) error {
	return m.Called(ctx, topic, ev).Error(0)
}

// ---------------------------------------------------------------------------
// Suite
// ---------------------------------------------------------------------------

type ServiceTestSuite struct {
	suite.Suite
	models      *MockModelRepository
	predictions *MockPredictionRepository
	compounds   *MockCompoundRepository
	engine      *MockPredictor
	enricher    *MockEnricher
	publisher   *MockPublisher
	svc         Service
	model       *mlmodel.Model
}

func (s *ServiceTestSuite) SetupTest() {
	s.models = new(MockModelRepository)
	s.predictions = new(MockPredictionRepository)
	s.compounds = new(MockCompoundRepository)
	s.engine = new(MockPredictor)
	s.enricher = new(MockEnricher)
	s.publisher = new(MockPublisher)
	s.svc = NewService(Dependencies{
		Models:      s.models,
		Predictions: s.predictions,
		Compounds:   s.compounds,
		Engine:      s.engine,
		Enricher:    s.enricher,
		Composer:    NewComposer(2, nil),
		Publisher:   s.publisher,
		Logger:      logging.NewNopLogger(),
	})

	s.model = mlmodel.NewModel("rf", "ECFP", "rf_ecfp_v1.json")
	s.model.Name = mlmodel.DisplayName("rf", "ECFP", 1)
	s.model.Version = 1
	s.model.IsActive = true
}

func (s *ServiceTestSuite) TearDownTest() {
	s.models.AssertExpectations(s.T())
	s.predictions.AssertExpectations(s.T())
	s.compounds.AssertExpectations(s.T())
	s.engine.AssertExpectations(s.T())
	s.enricher.AssertExpectations(s.T())
}

func textInput(smiles string) *BatchInput {
	return &BatchInput{UserID: "user-1", ModelMethod: "rf", ModelDescriptor: "ECFP", SMILES: SplitText(smiles)}
}

func (s *ServiceTestSuite) TestRunBatch_EndToEnd() {
	ctx := context.Background()
	structures := []string{"CCO", "CCN"}
	ethanol := resolvedRecord(s.T(), "CCO", 702, "ethanol")
	amine := compound.NewReferenceRecord("CCN")

	s.models.On("GetActive", ctx, "rf", "ECFP").Return(s.model, nil)
	s.engine.On("Predict", ctx, structures, "rf_ecfp_v1.json", featurize.SchemeECFP).Return([]float64{5.67, 45.23}, nil)
	s.enricher.On("Enrich", ctx, structures).Return(map[string]*compound.ReferenceRecord{"CCO": ethanol, "CCN": amine})
	s.predictions.On("SaveBatch", ctx, mock.AnythingOfType("*prediction.Batch")).Return(nil)
	s.publisher.On("PublishEvent", ctx, domain.EventPredictionCompleted, mock.AnythingOfType("*prediction.CompletedEvent")).Return(nil)

	batch, err := s.svc.RunBatch(ctx, textInput("CCO, CCN,CCO"))
	s.Require().NoError(err)

	s.Equal("user-1", batch.UserID)
	s.Equal(s.model.ID, batch.MLModelID)
	s.Equal(domain.InputSourceText, batch.InputSourceType)
	s.NotNil(batch.CompletedAt)
	s.Require().Len(batch.Results, 2)

	s.Equal("CCO", batch.Results[0].SMILES)
	s.Equal(5.67, batch.Results[0].PIC50)
	s.Equal(domain.CategoryStrong, batch.Results[0].Category)
	s.Same(ethanol, batch.Results[0].Compound)

	s.Equal("CCN", batch.Results[1].SMILES)
	s.Equal(domain.CategoryVeryStrong, batch.Results[1].Category)

	ev := s.publisher.Calls[0].Arguments.Get(2).(*domain.CompletedEvent)
	s.Equal(2, ev.Structures)
	s.Equal(map[string]int{"strong": 1, "very strong": 1}, ev.Categories)
}

func (s *ServiceTestSuite) TestRunBatch_InvalidSMILESAbortsBeforePersistence() {
	ctx := context.Background()
	invalid := pkgerrors.New(pkgerrors.ErrCodeMoleculeInvalidSMILES, "Invalid SMILES input of C1CC")

	s.models.On("GetActive", ctx, "rf", "ECFP").Return(s.model, nil)
	s.engine.On("Predict", ctx, []string{"CCO", "C1CC"}, "rf_ecfp_v1.json", featurize.SchemeECFP).Return(nil, invalid)

	_, err := s.svc.RunBatch(ctx, textInput("CCO,C1CC"))
	s.Require().Error(err)
	s.Contains(err.Error(), "Invalid SMILES input of C1CC")
	s.True(pkgerrors.IsValidation(err))
	s.predictions.AssertNotCalled(s.T(), "SaveBatch", mock.Anything, mock.Anything)
	s.enricher.AssertNotCalled(s.T(), "Enrich", mock.Anything, mock.Anything)
	s.publisher.AssertNotCalled(s.T(), "PublishEvent", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) TestRunBatch_NoActiveModel() {
	ctx := context.Background()
	s.models.On("GetActive", ctx, "svm", "ECFP").
		Return(nil, pkgerrors.New(pkgerrors.ErrCodeModelNotFound, "No active model for svm/ECFP."))

	in := textInput("CCO")
	in.ModelMethod = "svm"
	_, err := s.svc.RunBatch(ctx, in)
	s.True(pkgerrors.IsNotFound(err))
}

func (s *ServiceTestSuite) TestRunBatch_ValidationErrors() {
	_, err := s.svc.RunBatch(context.Background(), &BatchInput{SMILES: []string{"CCO"}})
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodePredictionMissingFields))

	_, err = s.svc.RunBatch(context.Background(), &BatchInput{ModelMethod: "rf", ModelDescriptor: "ECFP", SMILES: []string{" ", ""}})
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodePredictionEmptyInput))
}

func (s *ServiceTestSuite) TestRunBatch_TooManyStructures() {
	svc := NewService(Dependencies{Models: s.models, Predictions: s.predictions, Engine: s.engine, Enricher: s.enricher, MaxStructures: 1})
	_, err := svc.RunBatch(context.Background(), textInput("CCO,CCN"))
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodePredictionTooLarge))
}

func (s *ServiceTestSuite) TestRunBatch_OversizedStructureRejectedBeforeInference() {
	svc := NewService(Dependencies{Models: s.models, Predictions: s.predictions, Engine: s.engine, Enricher: s.enricher, MaxSMILESLength: 16})
	_, err := svc.RunBatch(context.Background(), textInput("CCO,"+strings.Repeat("C", 17)))
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodePredictionTooLong))
	s.True(pkgerrors.IsValidation(err))
	s.models.AssertNotCalled(s.T(), "GetActive", mock.Anything, mock.Anything, mock.Anything)
	s.engine.AssertNotCalled(s.T(), "Predict", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) TestRunBatch_PublishFailureIsIgnored() {
	ctx := context.Background()
	s.models.On("GetActive", ctx, "rf", "ECFP").Return(s.model, nil)
	s.engine.On("Predict", ctx, []string{"CCO"}, "rf_ecfp_v1.json", featurize.SchemeECFP).Return([]float64{4.2}, nil)
	s.enricher.On("Enrich", ctx, []string{"CCO"}).Return(map[string]*compound.ReferenceRecord{})
	s.predictions.On("SaveBatch", ctx, mock.Anything).Return(nil)
	s.publisher.On("PublishEvent", ctx, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	batch, err := s.svc.RunBatch(ctx, textInput("CCO"))
	s.Require().NoError(err)
	s.Equal(domain.CategoryModerate, batch.Results[0].Category)
}

func (s *ServiceTestSuite) TestRunBatch_SaveFailure() {
	ctx := context.Background()
	s.models.On("GetActive", ctx, "rf", "ECFP").Return(s.model, nil)
	s.engine.On("Predict", ctx, []string{"CCO"}, "rf_ecfp_v1.json", featurize.SchemeECFP).Return([]float64{4.2}, nil)
	s.enricher.On("Enrich", ctx, []string{"CCO"}).Return(map[string]*compound.ReferenceRecord{})
	s.predictions.On("SaveBatch", ctx, mock.Anything).
		Return(pkgerrors.New(pkgerrors.ErrCodeDatabaseError, "failed to insert prediction"))

	_, err := s.svc.RunBatch(ctx, textInput("CCO"))
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
	s.publisher.AssertNotCalled(s.T(), "PublishEvent", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) storedBatch(owner string) *domain.Batch {
	b := domain.NewBatch(owner, s.model.ID, domain.InputSourceCSV)
	b.Complete([]*domain.Result{
		Compose("CCO", 5.67, resolvedRecord(s.T(), "CCO", 702, "ethanol")),
		Compose("CCN", 45.23, compound.NewReferenceRecord("CCN")),
	})
	return b
}

func (s *ServiceTestSuite) TestExportCSV_RoundTripPreservesOrder() {
	ctx := context.Background()
	b := s.storedBatch("user-1")
	s.predictions.On("Get", ctx, b.ID).Return(b, nil)

	data, err := s.svc.ExportCSV(ctx, b.ID, Requester{UserID: "user-1"})
	s.Require().NoError(err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	s.Equal("SMILES,IUPAC_Name,Molecular_Formula,Molecular_Weight,Predicted_IC50,Predicted_Category,PubChem_CID",
		strings.Join(rows[0], ","))
	s.Equal([]string{"CCO", "ethanol", "C2H6O", "46.07", "5.67", "strong", "702"}, rows[1])
	s.Equal([]string{"CCN", "", "", "", "45.23", "very strong", ""}, rows[2])
}

func (s *ServiceTestSuite) TestExportCSV_AdminMayDownload() {
	ctx := context.Background()
	b := s.storedBatch("user-1")
	s.predictions.On("Get", ctx, b.ID).Return(b, nil)

	_, err := s.svc.ExportCSV(ctx, b.ID, Requester{UserID: "admin", IsAdmin: true})
	s.NoError(err)
}

func (s *ServiceTestSuite) TestExportCSV_Forbidden() {
	ctx := context.Background()
	b := s.storedBatch("user-1")
	s.predictions.On("Get", ctx, b.ID).Return(b, nil)

	_, err := s.svc.ExportCSV(ctx, b.ID, Requester{UserID: "user-2"})
	s.True(pkgerrors.IsForbidden(err))
	s.Contains(err.Error(), "You do not have permission to download this prediction.")
}

func (s *ServiceTestSuite) TestExportCSV_NotFound() {
	ctx := context.Background()
	id := uuid.New()
	s.predictions.On("Get", ctx, id).Return(nil, pkgerrors.New(pkgerrors.ErrCodePredictionNotFound, "Prediction not found."))

	_, err := s.svc.ExportCSV(ctx, id, Requester{UserID: "user-1"})
	s.True(pkgerrors.IsNotFound(err))
}

func (s *ServiceTestSuite) TestGet_ScopedToOwner() {
	ctx := context.Background()
	b := s.storedBatch("user-1")
	s.predictions.On("Get", ctx, b.ID).Return(b, nil)

	got, err := s.svc.Get(ctx, b.ID, Requester{UserID: "user-1"})
	s.Require().NoError(err)
	s.Equal(b.ID, got.ID)

	_, err = s.svc.Get(ctx, b.ID, Requester{UserID: "user-2"})
	s.True(pkgerrors.IsNotFound(err))
}

func (s *ServiceTestSuite) TestList_ScopesNonAdmins() {
	ctx := context.Background()
	b := s.storedBatch("user-1")
	s.predictions.On("List", ctx, domain.ListFilter{UserID: "user-1", Pagination: common.Pagination{Page: 1, PageSize: 20}}).
		Return([]*domain.Batch{b}, int64(1), nil)
	s.predictions.On("List", ctx, domain.ListFilter{Pagination: common.Pagination{Page: 2, PageSize: 5}}).
		Return([]*domain.Batch{}, int64(6), nil)

	page, err := s.svc.List(ctx, Requester{UserID: "user-1"}, common.Pagination{})
	s.Require().NoError(err)
	s.Equal(int64(1), page.Total)
	s.Len(page.Items, 1)

	page, err = s.svc.List(ctx, Requester{UserID: "root", IsAdmin: true}, common.Pagination{Page: 2, PageSize: 5})
	s.Require().NoError(err)
	s.Equal(2, page.TotalPages)

	_, err = s.svc.List(ctx, Requester{}, common.Pagination{})
	s.True(pkgerrors.IsUnauthorized(err))
}

func (s *ServiceTestSuite) TestDelete() {
	ctx := context.Background()
	b := s.storedBatch("user-1")
	s.predictions.On("Get", ctx, b.ID).Return(b, nil)
	s.predictions.On("Delete", ctx, b.ID).Return(nil).Once()

	s.True(pkgerrors.IsNotFound(s.svc.Delete(ctx, b.ID, Requester{UserID: "user-2"})))
	s.NoError(s.svc.Delete(ctx, b.ID, Requester{UserID: "user-1"}))
}

func storedResult(userID string) *domain.ResultRecord {
	return &domain.ResultRecord{
		ID:           uuid.New(),
		PredictionID: uuid.New(),
		UserID:       userID,
		Position:     0,
		Result:       domain.Result{SMILES: "CCO", PIC50: 5.67, Category: domain.CategoryStrong},
	}
}

func (s *ServiceTestSuite) TestListResults_ScopesNonAdmins() {
	ctx := context.Background()
	batchID := uuid.New()
	rec := storedResult("user-1")

	s.predictions.On("ListResults", ctx, domain.ResultFilter{
		UserID: "user-1", PredictionID: batchID, Pagination: common.Pagination{Page: 1, PageSize: 20},
	}).Return([]*domain.ResultRecord{rec}, int64(1), nil)
	s.predictions.On("ListResults", ctx, domain.ResultFilter{
		Pagination: common.Pagination{Page: 1, PageSize: 20},
	}).Return([]*domain.ResultRecord{}, int64(41), nil)

	page, err := s.svc.ListResults(ctx, Requester{UserID: "user-1"}, batchID, common.Pagination{})
	s.Require().NoError(err)
	s.Equal(int64(1), page.Total)
	s.Equal(rec, page.Items[0])

	page, err = s.svc.ListResults(ctx, Requester{UserID: "root", IsAdmin: true}, uuid.Nil, common.Pagination{})
	s.Require().NoError(err)
	s.Equal(3, page.TotalPages)

	_, err = s.svc.ListResults(ctx, Requester{}, uuid.Nil, common.Pagination{})
	s.True(pkgerrors.IsUnauthorized(err))
}

func (s *ServiceTestSuite) TestGetResult_HidesOtherUsersResults() {
	ctx := context.Background()
	rec := storedResult("user-1")
	s.predictions.On("GetResult", ctx, rec.ID).Return(rec, nil)

	got, err := s.svc.GetResult(ctx, rec.ID, Requester{UserID: "user-1"})
	s.Require().NoError(err)
	s.Equal(rec, got)

	_, err = s.svc.GetResult(ctx, rec.ID, Requester{UserID: "user-2"})
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeResultNotFound))

	got, err = s.svc.GetResult(ctx, rec.ID, Requester{UserID: "root", IsAdmin: true})
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)
}

func (s *ServiceTestSuite) TestDeleteResult() {
	ctx := context.Background()
	rec := storedResult("user-1")
	s.predictions.On("GetResult", ctx, rec.ID).Return(rec, nil)
	s.predictions.On("DeleteResult", ctx, rec.ID).Return(nil).Once()

	s.True(pkgerrors.IsNotFound(s.svc.DeleteResult(ctx, rec.ID, Requester{UserID: "user-2"})))
	s.NoError(s.svc.DeleteResult(ctx, rec.ID, Requester{UserID: "user-1"}))

	missing := uuid.New()
	s.predictions.On("GetResult", ctx, missing).
		Return(nil, pkgerrors.New(pkgerrors.ErrCodeResultNotFound, "Prediction compound not found."))
	s.True(pkgerrors.IsNotFound(s.svc.DeleteResult(ctx, missing, Requester{UserID: "root", IsAdmin: true})))
}

func (s *ServiceTestSuite) TestLibrary_ScopesNonAdmins() {
	ctx := context.Background()
	entry := &compound.LibraryEntry{Compound: resolvedRecord(s.T(), "CCO", 702, "ethanol"), Predictions: 3}
	s.compounds.On("Library", ctx, compound.LibraryFilter{UserID: "user-1", Pagination: common.Pagination{Page: 1, PageSize: 20}}).
		Return([]*compound.LibraryEntry{entry}, int64(1), nil)
	s.compounds.On("Library", ctx, compound.LibraryFilter{Pagination: common.Pagination{Page: 1, PageSize: 20}}).
		Return([]*compound.LibraryEntry{entry}, int64(1), nil)

	page, err := s.svc.Library(ctx, Requester{UserID: "user-1"}, common.Pagination{})
	s.Require().NoError(err)
	s.Require().Len(page.Items, 1)
	s.Equal(int64(3), page.Items[0].Predictions)

	_, err = s.svc.Library(ctx, Requester{UserID: "root", IsAdmin: true}, common.Pagination{})
	s.NoError(err)

	_, err = s.svc.Library(ctx, Requester{}, common.Pagination{})
	s.True(pkgerrors.IsUnauthorized(err))
}

func TestLibrary_WithoutCompoundStore(t *testing.T) {
	svc := NewService(Dependencies{})
	_, err := svc.Library(context.Background(), Requester{UserID: "user-1"}, common.Pagination{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeInternal))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func resolvedRecord(t *testing.T, smiles string, cid int64, name string) *compound.ReferenceRecord {
	t.Helper()
	r := compound.NewReferenceRecord(smiles)
	r.CID = &cid
	r.IUPACName = compound.StringPtr(name)
	r.MolecularFormula = compound.StringPtr("C2H6O")
	mw := 46.07
	r.MolecularWeight = &mw
	return r
}
