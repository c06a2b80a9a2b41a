package modelmgmt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/mlmodel"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/common"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/testutil"
)

func newReplicatorFixture(t *testing.T, mirror *MockMirror) (*Replicator, *common.ModelRegistry, string) {
	t.Helper()
	dir := t.TempDir()
	reg, err := common.NewModelRegistry(dir, nil, logging.NewNopLogger())
	require.NoError(t, err)
	var am minio.ArtifactMirror
	if mirror != nil {
		am = mirror
	}
	return NewReplicator(reg, am, "replica-a", logging.NewNopLogger()), reg, dir
}

func lifecycleMessage(t *testing.T, eventType, source, fileName string) *kafka.Message {
	t.Helper()
	m := mlmodel.NewModel("rf", "ECFP", fileName)
	env, err := kafka.NewEventEnvelope(mlmodel.NewLifecycleEvent(eventType, m), source)
	require.NoError(t, err)
	msg, err := env.ToMessage("ami." + kafka.TopicModelLifecycle)
	require.NoError(t, err)
	return msg
}

func TestReplicator_LoadsUploadFromPeer(t *testing.T) {
	r, reg, dir := newReplicatorFixture(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "peer.json"), linearArtifact("peer.json"), 0o600))

	err := r.Handle(context.Background(), lifecycleMessage(t, mlmodel.EventModelUploaded, "replica-b", "peer.json"))
	require.NoError(t, err)
	_, ok := reg.Entry("peer.json")
	assert.True(t, ok)
}

func TestReplicator_SkipsOwnEvents(t *testing.T) {
	r, reg, dir := newReplicatorFixture(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "own.json"), linearArtifact("own.json"), 0o600))

	require.NoError(t, r.Handle(context.Background(), lifecycleMessage(t, mlmodel.EventModelUploaded, "replica-a", "own.json")))
	assert.Zero(t, reg.Len())
}

func TestReplicator_FetchesMissingArtifactFromMirror(t *testing.T) {
	mirror := new(MockMirror)
	r, reg, dir := newReplicatorFixture(t, mirror)
	mirror.On("SyncTo", mock.Anything, dir).
		Run(func(mock.Arguments) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "remote.gob"), linearArtifact("remote.gob"), 0o600))
		}).Return([]string{"remote.gob"}, nil).Once()

	require.NoError(t, r.Handle(context.Background(), lifecycleMessage(t, mlmodel.EventModelActivated, "replica-b", "remote.gob")))
	_, ok := reg.Entry("remote.gob")
	assert.True(t, ok)

	// Already loaded: a second activation needs neither the mirror nor a reload.
	require.NoError(t, r.Handle(context.Background(), lifecycleMessage(t, mlmodel.EventModelActivated, "replica-b", "remote.gob")))
	mirror.AssertExpectations(t)
}

func TestReplicator_MissingArtifactIsRetried(t *testing.T) {
	r, _, _ := newReplicatorFixture(t, nil)
	err := r.Handle(context.Background(), lifecycleMessage(t, mlmodel.EventModelUploaded, "replica-b", "absent.json"))
	assert.Error(t, err)
}

func TestReplicator_UnloadsDeletedModel(t *testing.T) {
	r, reg, dir := newReplicatorFixture(t, nil)
	path := filepath.Join(dir, "old.json")
	require.NoError(t, os.WriteFile(path, linearArtifact("old.json"), 0o600))
	require.NoError(t, reg.Load(context.Background(), "old.json"))

	require.NoError(t, r.Handle(context.Background(), lifecycleMessage(t, mlmodel.EventModelDeleted, "replica-b", "old.json")))
	assert.Zero(t, reg.Len())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReplicator_DropsMalformedMessages(t *testing.T) {
	reg, err := common.NewModelRegistry(t.TempDir(), nil, logging.NewNopLogger())
	require.NoError(t, err)
	logger := testutil.NewMockLogger()
	r := NewReplicator(reg, nil, "replica-a", logger)

	assert.NoError(t, r.Handle(context.Background(), &kafka.Message{Value: []byte("{not json")}))
	assert.NoError(t, r.Handle(context.Background(), lifecycleMessage(t, mlmodel.EventModelUploaded, "replica-b", "")))

	warnings := logger.AtLevel(logging.LevelWarn)
	require.Len(t, warnings, 2)
	assert.Equal(t, "model-replicator", warnings[0].Logger)
	assert.Contains(t, warnings[0].Message, "malformed")
	assert.Contains(t, warnings[1].Message, "without artifact")
	assert.Zero(t, reg.Len())
}
