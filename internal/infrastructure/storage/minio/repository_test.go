package minio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

type ArtifactMirrorTestSuite struct {
	suite.Suite
	api    *MockMinIOAPI
	mirror ArtifactMirror
	dir    string
}

func (s *ArtifactMirrorTestSuite) SetupTest() {
	s.api = new(MockMinIOAPI)
	client := NewMinIOClientWithAPI(s.api, "ami-models", logging.NewNopLogger())
	s.mirror = NewArtifactMirror(client, logging.NewNopLogger())
	s.dir = s.T().TempDir()
}

func listing(objs ...minio.ObjectInfo) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(objs))
	for _, o := range objs {
		ch <- o
	}
	close(ch)
	return ch
}

func (s *ArtifactMirrorTestSuite) TestPut_Success() {
	s.api.On("FPutObject", mock.Anything, "ami-models", "models/rf_ecfp.json", "/tmp/rf_ecfp.json",
		mock.MatchedBy(func(o minio.PutObjectOptions) bool { return o.ContentType == "application/json" })).
		Return(minio.UploadInfo{Bucket: "ami-models", Key: "models/rf_ecfp.json", Size: 42}, nil)

	s.NoError(s.mirror.Put(context.Background(), "rf_ecfp.json", "/tmp/rf_ecfp.json"))
	s.api.AssertExpectations(s.T())
}

func (s *ArtifactMirrorTestSuite) TestPut_Failure() {
	s.api.On("FPutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("connection reset"))

	err := s.mirror.Put(context.Background(), "rf_ecfp.json", "/tmp/rf_ecfp.json")
	s.Error(err)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeStorageError))
	s.Contains(err.Error(), "connection reset")
}

func (s *ArtifactMirrorTestSuite) TestPut_RejectsPathNames() {
	err := s.mirror.Put(context.Background(), "../etc/passwd", "/tmp/x")
	s.True(apperrors.IsValidation(err))
	s.api.AssertNotCalled(s.T(), "FPutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ArtifactMirrorTestSuite) TestRemove() {
	s.api.On("RemoveObject", mock.Anything, "ami-models", "models/gbm.json", mock.Anything).Return(nil)
	s.NoError(s.mirror.Remove(context.Background(), "gbm.json"))

	s.api.On("RemoveObject", mock.Anything, "ami-models", "models/other.json", mock.Anything).
		Return(errors.New("access denied"))
	s.Error(s.mirror.Remove(context.Background(), "other.json"))
}

func (s *ArtifactMirrorTestSuite) TestSyncTo_FetchesMissingAndChanged() {
	// same size as the object: skipped
	s.Require().NoError(os.WriteFile(filepath.Join(s.dir, "current.json"), []byte("12345"), 0o644))
	// stale local copy: refetched
	s.Require().NoError(os.WriteFile(filepath.Join(s.dir, "stale.json"), []byte("1"), 0o644))

	s.api.On("ListObjects", mock.Anything, "ami-models", mock.MatchedBy(func(o minio.ListObjectsOptions) bool {
		return o.Prefix == "models/" && o.Recursive
	})).Return(listing(
		minio.ObjectInfo{Key: "models/current.json", Size: 5},
		minio.ObjectInfo{Key: "models/stale.json", Size: 9},
		minio.ObjectInfo{Key: "models/new.gob", Size: 3},
		minio.ObjectInfo{Key: "models/", Size: 0},
	))
	s.api.On("FGetObject", mock.Anything, "ami-models", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) {
			_ = os.WriteFile(args.String(3), []byte("fetched"), 0o644)
		})

	fetched, err := s.mirror.SyncTo(context.Background(), s.dir)
	s.Require().NoError(err)
	s.Equal([]string{"stale.json", "new.gob"}, fetched)

	s.api.AssertCalled(s.T(), "FGetObject", mock.Anything, "ami-models", "models/new.gob", filepath.Join(s.dir, "new.gob"), mock.Anything)
	s.api.AssertNotCalled(s.T(), "FGetObject", mock.Anything, "ami-models", "models/current.json", mock.Anything, mock.Anything)
	s.FileExists(filepath.Join(s.dir, "new.gob"))
}

func (s *ArtifactMirrorTestSuite) TestSyncTo_ListError() {
	s.api.On("ListObjects", mock.Anything, "ami-models", mock.Anything).
		Return(listing(minio.ObjectInfo{Err: errors.New("bucket gone")}))

	fetched, err := s.mirror.SyncTo(context.Background(), s.dir)
	s.Error(err)
	s.Empty(fetched)
}

func (s *ArtifactMirrorTestSuite) TestSyncTo_DownloadError() {
	s.api.On("ListObjects", mock.Anything, "ami-models", mock.Anything).
		Return(listing(minio.ObjectInfo{Key: "models/a.json", Size: 1}))
	s.api.On("FGetObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("timeout"))

	_, err := s.mirror.SyncTo(context.Background(), s.dir)
	s.Error(err)
	s.Contains(err.Error(), "download failed")
}

func TestArtifactMirrorTestSuite(t *testing.T) {
	suite.Run(t, new(ArtifactMirrorTestSuite))
}
