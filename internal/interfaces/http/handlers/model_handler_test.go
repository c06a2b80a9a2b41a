package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/application/modelmgmt"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/mlmodel"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/auth/token"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// --- Mock Model Service ---

type mockModelService struct {
	mock.Mock
}

func (m *mockModelService) Upload(ctx context.Context, in *modelmgmt.UploadInput) (*mlmodel.Model, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mlmodel.Model), args.Error(1)
}

func (m *mockModelService) Activate(ctx context.Context, id uuid.UUID) (*mlmodel.Model, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mlmodel.Model), args.Error(1)
}

func (m *mockModelService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockModelService) Get(ctx context.Context, id uuid.UUID) (*modelmgmt.ModelView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*modelmgmt.ModelView), args.Error(1)
}

func (m *mockModelService) List(ctx context.Context) ([]*modelmgmt.ModelView, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*modelmgmt.ModelView), args.Error(1)
}

func (m *mockModelService) Sync(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func newTestModelRouter() (http.Handler, *mockModelService) {
	svc := new(mockModelService)
	h := NewModelHandler(svc, token.RequireRole("admin"), 0, logging.NewNopLogger())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, svc
}

func uploadRequest(t *testing.T, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/models/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestListModels(t *testing.T) {
	r, svc := newTestModelRouter()
	m := mlmodel.NewModel("rf", "ECFP", "rf_ecfp.json")
	svc.On("List", mock.Anything).Return([]*modelmgmt.ModelView{{Model: m, Loaded: true, Kind: "linear", Features: 3}}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodGet, "/models/", nil), "u1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeTestEnvelope(t, rec)
	assert.Equal(t, "Models retrieved successfully.", env.Message)
	var views []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, true, views[0]["loaded"])
	assert.Equal(t, float64(3), views[0]["features"])
}

func TestUploadModel_Success(t *testing.T) {
	r, svc := newTestModelRouter()
	created := mlmodel.NewModel("rf", "ECFP", "rf_ecfp_1234abcd.json")
	var received []byte
	svc.On("Upload", mock.Anything, mock.MatchedBy(func(in *modelmgmt.UploadInput) bool {
		if in.Method != "rf" || in.Descriptor != "ECFP" || in.FileName != "model.json" || in.Body == nil {
			return false
		}
		received, _ = io.ReadAll(in.Body)
		return true
	})).Return(created, nil)

	req := uploadRequest(t, map[string]string{"method": "rf", "descriptor": "ECFP"}, "model.json", []byte(`{"kind":"linear"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withIdentity(req, "root", "admin"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Model created successfully.", decodeTestEnvelope(t, rec).Message)
	assert.Equal(t, `{"kind":"linear"}`, string(received))
	svc.AssertExpectations(t)
}

func TestUploadModel_MissingFileIsPassedThrough(t *testing.T) {
	r, svc := newTestModelRouter()
	svc.On("Upload", mock.Anything, mock.MatchedBy(func(in *modelmgmt.UploadInput) bool {
		return in.Body == nil && in.FileName == ""
	})).Return(nil, errors.New(errors.ErrCodeValidation, "model file is required"))

	req := uploadRequest(t, map[string]string{"method": "rf", "descriptor": "ECFP"}, "", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withIdentity(req, "root", "admin"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "model file is required", decodeTestEnvelope(t, rec).Message)
}

func TestModelMutations_RequireAdmin(t *testing.T) {
	r, svc := newTestModelRouter()
	id := uuid.New().String()

	for _, req := range []*http.Request{
		uploadRequest(t, map[string]string{"method": "rf", "descriptor": "ECFP"}, "model.json", []byte("{}")),
		httptest.NewRequest(http.MethodPost, "/models/"+id+"/activate", nil),
		httptest.NewRequest(http.MethodDelete, "/models/"+id, nil),
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, withIdentity(req, "u1", "user"))
		assert.Equal(t, http.StatusForbidden, rec.Code, req.URL.Path)
	}
	svc.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestActivateAndDeleteModel(t *testing.T) {
	r, svc := newTestModelRouter()
	m := mlmodel.NewModel("rf", "ECFP", "rf.json")
	m.IsActive = true
	svc.On("Activate", mock.Anything, m.ID).Return(m, nil)
	svc.On("Delete", mock.Anything, m.ID).Return(nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodPost, "/models/"+m.ID.String()+"/activate", nil), "root", "admin"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Model activated successfully.", decodeTestEnvelope(t, rec).Message)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodDelete, "/models/"+m.ID.String(), nil), "root", "admin"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Model deleted successfully.", decodeTestEnvelope(t, rec).Message)

	svc.AssertExpectations(t)
}

func TestGetModel_NotFound(t *testing.T) {
	r, svc := newTestModelRouter()
	id := uuid.New()
	svc.On("Get", mock.Anything, id).Return(nil, errors.New(errors.ErrCodeModelNotFound, "model not found"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodGet, "/models/"+id.String(), nil), "u1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(errors.ErrCodeModelNotFound), decodeTestEnvelope(t, rec).Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodGet, "/models/bogus", nil), "u1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
