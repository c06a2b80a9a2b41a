package minio

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

const artifactPrefix = "models/"

var (
	ErrUploadFailed   = errors.New(errors.ErrCodeStorageError, "upload failed")
	ErrDownloadFailed = errors.New(errors.ErrCodeStorageError, "download failed")
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid request")
)

// ArtifactMirror keeps a copy of every uploaded model artifact in object
// storage so that other replicas, and this one after a restart, can
// recover the model directory.
type ArtifactMirror interface {
	// Put uploads the local file at localPath under artifact name.
	Put(ctx context.Context, name, localPath string) error
	// Remove deletes artifact name. A missing object is not an error.
	Remove(ctx context.Context, name string) error
	// SyncTo downloads every mirrored artifact that is missing from dir or
	// differs from it in size, returning the names it fetched.
	SyncTo(ctx context.Context, dir string) ([]string, error)
}

type minioArtifactMirror struct {
	client *MinIOClient
	logger logging.Logger
}

// NewArtifactMirror returns an ArtifactMirror backed by client's bucket.
func NewArtifactMirror(client *MinIOClient, log logging.Logger) ArtifactMirror {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &minioArtifactMirror{client: client, logger: log.Named("artifact-mirror")}
}

func objectKey(name string) string { return artifactPrefix + name }

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}

func (m *minioArtifactMirror) Put(ctx context.Context, name, localPath string) error {
	if !validName(name) || localPath == "" {
		return ErrInvalidRequest.WithDetail(name)
	}
	api, err := m.client.API()
	if err != nil {
		return err
	}

	info, err := api.FPutObject(ctx, m.client.Bucket(), objectKey(name), localPath, minio.PutObjectOptions{
		ContentType: contentType(name),
	})
	if err != nil {
		return ErrUploadFailed.WithCause(err).WithDetail(name)
	}
	m.logger.Info("artifact mirrored",
		logging.String("artifact", name),
		logging.Int64("size", info.Size),
		logging.String("etag", info.ETag))
	return nil
}

func (m *minioArtifactMirror) Remove(ctx context.Context, name string) error {
	if !validName(name) {
		return ErrInvalidRequest.WithDetail(name)
	}
	api, err := m.client.API()
	if err != nil {
		return err
	}
	if err := api.RemoveObject(ctx, m.client.Bucket(), objectKey(name), minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeStorageError, "remove artifact").WithDetail(name)
	}
	return nil
}

func (m *minioArtifactMirror) SyncTo(ctx context.Context, dir string) ([]string, error) {
	api, err := m.client.API()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "create model directory")
	}

	var fetched []string
	objects := api.ListObjects(ctx, m.client.Bucket(), minio.ListObjectsOptions{
		Prefix:    artifactPrefix,
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return fetched, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "list artifacts")
		}
		name := path.Base(strings.TrimPrefix(obj.Key, artifactPrefix))
		if !validName(name) {
			continue
		}
		local := filepath.Join(dir, name)
		if fi, err := os.Stat(local); err == nil && fi.Size() == obj.Size {
			continue
		}
		if err := api.FGetObject(ctx, m.client.Bucket(), obj.Key, local, minio.GetObjectOptions{}); err != nil {
			return fetched, ErrDownloadFailed.WithCause(err).WithDetail(name)
		}
		fetched = append(fetched, name)
	}

	if len(fetched) > 0 {
		m.logger.Info("artifacts synced from object storage",
			logging.Int("fetched", len(fetched)),
			logging.String("dir", dir))
	}
	return fetched, nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
