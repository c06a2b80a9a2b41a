package minio

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/config"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

type MockMinIOAPI struct {
	mock.Mock
}

func (m *MockMinIOAPI) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]minio.BucketInfo), args.Error(1)
}

func (m *MockMinIOAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *MockMinIOAPI) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	return args.Get(0).(<-chan minio.ObjectInfo)
}

func (m *MockMinIOAPI) FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, filePath, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockMinIOAPI) FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error {
	args := m.Called(ctx, bucketName, objectName, filePath, opts)
	return args.Error(0)
}

func (m *MockMinIOAPI) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Error(0)
}

type ClientTestSuite struct {
	suite.Suite
	api    *MockMinIOAPI
	client *MinIOClient
}

func (s *ClientTestSuite) SetupTest() {
	s.api = new(MockMinIOAPI)
	s.client = NewMinIOClientWithAPI(s.api, "ami-models", logging.NewNopLogger())
}

func (s *ClientTestSuite) TestEnsureBucket_Exists() {
	s.api.On("BucketExists", mock.Anything, "ami-models").Return(true, nil)

	s.NoError(s.client.EnsureBucket(context.Background()))
	s.api.AssertNotCalled(s.T(), "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ClientTestSuite) TestEnsureBucket_Creates() {
	s.api.On("BucketExists", mock.Anything, "ami-models").Return(false, nil)
	s.api.On("MakeBucket", mock.Anything, "ami-models", mock.Anything).Return(nil)

	s.NoError(s.client.EnsureBucket(context.Background()))
	s.api.AssertExpectations(s.T())
}

func (s *ClientTestSuite) TestEnsureBucket_Error() {
	s.api.On("BucketExists", mock.Anything, "ami-models").Return(false, errors.New("dial tcp"))

	err := s.client.EnsureBucket(context.Background())
	s.Error(err)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeStorageError))
}

func (s *ClientTestSuite) TestHealthCheck() {
	s.api.On("BucketExists", mock.Anything, "ami-models").Return(true, nil).Once()
	s.NoError(s.client.HealthCheck(context.Background()))

	s.api.On("BucketExists", mock.Anything, "ami-models").Return(false, nil).Once()
	s.Error(s.client.HealthCheck(context.Background()))
}

func (s *ClientTestSuite) TestClose_RejectsFurtherUse() {
	s.NoError(s.client.Close())

	_, err := s.client.API()
	s.ErrorIs(err, ErrMinIOClientClosed)
	s.ErrorIs(s.client.HealthCheck(context.Background()), ErrMinIOClientClosed)
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func TestNewMinIOClient_RequiresEndpointAndBucket(t *testing.T) {
	_, err := NewMinIOClient(config.MinIOConfig{Endpoint: "localhost:9000"}, nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = NewMinIOClient(config.MinIOConfig{Bucket: "models"}, nil)
	assert.True(t, apperrors.IsValidation(err))
}
