package mlmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewModel(t *testing.T) {
	m := NewModel("RF", "ECFP", "rf_ecfp.json")
	assert.False(t, m.IsActive)
	assert.Zero(t, m.Version)
	assert.Equal(t, "rf_ecfp.json", m.FileName)
	assert.Equal(t, "RF_ECFP_v3", DisplayName("RF", "ECFP", 3))
}

func TestNewLifecycleEvent(t *testing.T) {
	m := NewModel("GBM", "PUBCHEMFP", "gbm.gob")
	m.Version = 2
	ev := NewLifecycleEvent(EventModelUploaded, m)
	assert.Equal(t, EventModelUploaded, ev.EventType())
	assert.Equal(t, m.ID.String(), ev.AggregateID())
	assert.Equal(t, "gbm.gob", ev.FileName)
	assert.Equal(t, 2, ev.Version)
}
