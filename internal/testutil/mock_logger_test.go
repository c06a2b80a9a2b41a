package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/testutil"
)

var _ logging.Logger = (*testutil.MockLogger)(nil)

func TestMockLogger_Records(t *testing.T) {
	logger := testutil.NewMockLogger()
	logger.Info("model loaded", logging.String("model", "rf_ecfp.json"))
	logger.Warn("enrichment timed out")

	msgs := logger.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, logging.LevelInfo, msgs[0].Level)
	assert.Equal(t, "rf_ecfp.json", msgs[0].Field("model"))
	assert.Nil(t, msgs[0].Field("missing"))

	_, ok := logger.Find(logging.LevelWarn, "timed out")
	assert.True(t, ok)
	_, ok = logger.Find(logging.LevelError, "timed out")
	assert.False(t, ok)

	logger.Clear()
	assert.Empty(t, logger.Messages())
}

func TestMockLogger_ChildrenShareRecord(t *testing.T) {
	root := testutil.NewMockLogger()
	child := root.Named("engine").With(logging.String("scheme", "ECFP")).Named("encode")
	child.Error("encode failed", logging.Int("index", 3))

	msgs := root.AtLevel(logging.LevelError)
	require.Len(t, msgs, 1)
	assert.Equal(t, "engine.encode", msgs[0].Logger)
	assert.Equal(t, "ECFP", msgs[0].Field("scheme"))
	assert.Equal(t, 3, msgs[0].Field("index"))
}
