package client

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amierrors "github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

const resultID = "9d2f4b1e-6a0c-4f7e-8b3d-2c5a1e9f0b44"

func TestPredictionCompounds_List(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/prediction_compounds", r.URL.Path)
		assert.Equal(t, predictionID, r.URL.Query().Get("prediction"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		writeEnvelope(w, http.StatusOK, `{"items":[
			{"id":"`+resultID+`","prediction_id":"`+predictionID+`","user_id":"u1","position":0,
			 "smiles":"c1ccccc1","pic50":5.5,"lelp":1.343,"category":"moderate","compound":{"smiles":"c1ccccc1","cid":241}}
		],"total":21,"page":2,"page_size":20,"total_pages":2}`)
	})

	page, err := c.PredictionCompounds().List(context.Background(), predictionID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(21), page.Total)
	require.Len(t, page.Items, 1)
	got := page.Items[0]
	assert.Equal(t, resultID, got.ID)
	assert.Equal(t, "c1ccccc1", got.SMILES)
	assert.InDelta(t, 1.343, *got.LELP, 1e-9)
	assert.Equal(t, int64(241), *got.Compound.CID)
}

func TestPredictionCompounds_GetAndDelete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/prediction_compounds/"+resultID, r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			writeEnvelope(w, http.StatusOK, `{"id":"`+resultID+`","position":3,"smiles":"CCO","pic50":7.2,"category":"strong"}`)
		case http.MethodDelete:
			writeEnvelope(w, http.StatusOK, `null`)
		}
	})

	got, err := c.PredictionCompounds().Get(context.Background(), resultID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Position)
	assert.Equal(t, CategoryStrong, got.Category)

	assert.NoError(t, c.PredictionCompounds().Delete(context.Background(), resultID))
}

func TestPredictionCompounds_Library(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/prediction_compounds/lib/", r.URL.Path)
		writeEnvelope(w, http.StatusOK, `{"items":[{"compound":{"smiles":"CCO","cid":702},"predictions":4}],"total":1,"page":1,"page_size":20,"total_pages":1}`)
	})

	page, err := c.PredictionCompounds().Library(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(4), page.Items[0].Predictions)
	assert.Equal(t, "CCO", page.Items[0].Compound.SMILES)
}

func TestPredictionCompounds_ValidatesIDs(t *testing.T) {
	c, err := NewClient("http://unused.example.com", "token")
	require.NoError(t, err)
	rc := c.PredictionCompounds()

	_, err = rc.Get(context.Background(), "nope")
	assert.True(t, amierrors.IsValidation(err))
	assert.True(t, amierrors.IsValidation(rc.Delete(context.Background(), "")))
	_, err = rc.List(context.Background(), "42", 0, 0)
	assert.True(t, amierrors.IsValidation(err))
}
