package handlers

import (
	"encoding/json"
	stdliberrors "errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/application/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	domain "github.com/turtacn/AntiMalaria-Intelligence/internal/domain/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

const defaultMaxUpload = 32 << 20

// PredictionHandler serves /api/v1/predictions.
type PredictionHandler struct {
	svc       prediction.Service
	adminRole string
	maxUpload int64
	logger    logging.Logger
}

// NewPredictionHandler creates a PredictionHandler. maxUpload bounds the
// request body; zero selects 32 MiB.
func NewPredictionHandler(svc prediction.Service, adminRole string, maxUpload int64, logger logging.Logger) *PredictionHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &PredictionHandler{svc: svc, adminRole: adminRole, maxUpload: maxUpload, logger: logger.Named("prediction_handler")}
}

// RegisterRoutes mounts the prediction endpoints on r.
func (h *PredictionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/predictions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/predict", h.Predict)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
		r.Get("/{id}/download", h.Download)
	})
}

// PredictItem is one row of the predict response.
type PredictItem struct {
	SMILES   string                    `json:"smiles"`
	PIC50    float64                   `json:"pic50"`
	LELP     *float64                  `json:"lelp"`
	Category domain.Category           `json:"category"`
	Compound *compound.ReferenceRecord `json:"compound"`
}

type predictRequest struct {
	ModelMethod     string          `json:"model_method"`
	ModelDescriptor string          `json:"model_descriptor"`
	SMILES          json.RawMessage `json:"smiles"`
}

// Predict handles POST /api/v1/predictions/predict. It accepts a multipart
// form with an optional CSV file, a JSON body or a urlencoded form.
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeInput(w, r)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	in.UserID = requesterFrom(r, h.adminRole).UserID

	batch, err := h.svc.RunBatch(r.Context(), in)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	items := make([]PredictItem, 0, len(batch.Results))
	for _, res := range batch.Results {
		rec := res.Compound
		if rec == nil {
			rec = compound.NewReferenceRecord(res.SMILES)
		}
		items = append(items, PredictItem{
			SMILES:   res.SMILES,
			PIC50:    res.PIC50,
			LELP:     res.LELP,
			Category: res.Category,
			Compound: rec,
		})
	}
	writeSuccess(w, http.StatusOK, fmt.Sprintf("Prediction complete and saved for %d SMILES.", len(items)), items)
}

func (h *PredictionHandler) decodeInput(w http.ResponseWriter, r *http.Request) (*prediction.BatchInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, bodyError(err, "invalid JSON body")
		}
		smiles, err := prediction.DecodeSMILESField(req.SMILES)
		if err != nil {
			return nil, err
		}
		return &prediction.BatchInput{
			ModelMethod:     req.ModelMethod,
			ModelDescriptor: req.ModelDescriptor,
			SMILES:          smiles,
		}, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			return nil, bodyError(err, "invalid multipart body")
		}
		in := formInput(r)
		file, header, err := r.FormFile("file")
		switch {
		case err == nil:
			// The multipart parser keeps the part open until the request ends.
			in.File = &prediction.Upload{Name: header.Filename, Body: file}
		case !stdliberrors.Is(err, http.ErrMissingFile):
			return nil, bodyError(err, "invalid file part")
		}
		return in, nil

	default:
		if err := r.ParseForm(); err != nil {
			return nil, bodyError(err, "invalid form body")
		}
		return formInput(r), nil
	}
}

func formInput(r *http.Request) *prediction.BatchInput {
	in := &prediction.BatchInput{
		ModelMethod:     r.FormValue("model_method"),
		ModelDescriptor: r.FormValue("model_descriptor"),
	}
	values := r.Form["smiles"]
	if r.MultipartForm != nil && len(r.MultipartForm.Value["smiles"]) > 0 {
		values = r.MultipartForm.Value["smiles"]
	}
	switch len(values) {
	case 0:
	case 1:
		in.SMILES = prediction.SplitText(values[0])
	default:
		in.SMILES = values
	}
	return in
}

func bodyError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if stdliberrors.As(err, &tooLarge) {
		return errors.Newf(errors.ErrCodePredictionTooLarge, "Request body exceeds %d bytes.", tooLarge.Limit)
	}
	return errors.Wrap(err, errors.ErrCodeBadRequest, message)
}

// List handles GET /api/v1/predictions.
func (h *PredictionHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), requesterFrom(r, h.adminRole), parsePagination(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Predictions retrieved successfully.", page)
}

// Get handles GET /api/v1/predictions/{id}.
func (h *PredictionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id", errors.ErrCodePredictionNotFound)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	batch, err := h.svc.Get(r.Context(), id, requesterFrom(r, h.adminRole))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Prediction retrieved successfully.", batch)
}

// Delete handles DELETE /api/v1/predictions/{id}.
func (h *PredictionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id", errors.ErrCodePredictionNotFound)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id, requesterFrom(r, h.adminRole)); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Prediction deleted successfully.", nil)
}

// Download handles GET /api/v1/predictions/{id}/download.
func (h *PredictionHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id", errors.ErrCodePredictionNotFound)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	data, err := h.svc.ExportCSV(r.Context(), id, requesterFrom(r, h.adminRole))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", prediction.ExportFileName(id)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
