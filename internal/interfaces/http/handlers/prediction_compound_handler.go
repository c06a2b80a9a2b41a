package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/application/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// PredictionCompoundHandler serves /api/v1/prediction_compounds: single
// stored results and the caller's compound library.
type PredictionCompoundHandler struct {
	svc       prediction.Service
	adminRole string
	logger    logging.Logger
}

func NewPredictionCompoundHandler(svc prediction.Service, adminRole string, logger logging.Logger) *PredictionCompoundHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &PredictionCompoundHandler{svc: svc, adminRole: adminRole, logger: logger.Named("prediction_compound_handler")}
}

func (h *PredictionCompoundHandler) RegisterRoutes(r chi.Router) {
	r.Route("/prediction_compounds", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/lib", h.Library)
		r.Get("/lib/", h.Library)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
	})
}

// List handles GET /api/v1/prediction_compounds. The optional prediction
// query parameter restricts the page to one batch.
func (h *PredictionCompoundHandler) List(w http.ResponseWriter, r *http.Request) {
	var batchID uuid.UUID
	if v := r.URL.Query().Get("prediction"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeAppError(w, h.logger, errors.New(errors.ErrCodeBadRequest, "prediction must be a UUID.").WithDetail(v))
			return
		}
		batchID = id
	}
	page, err := h.svc.ListResults(r.Context(), requesterFrom(r, h.adminRole), batchID, parsePagination(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Prediction compounds retrieved successfully.", page)
}

func (h *PredictionCompoundHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id", errors.ErrCodeResultNotFound)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	rec, err := h.svc.GetResult(r.Context(), id, requesterFrom(r, h.adminRole))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Prediction compound retrieved successfully.", rec)
}

func (h *PredictionCompoundHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id", errors.ErrCodeResultNotFound)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := h.svc.DeleteResult(r.Context(), id, requesterFrom(r, h.adminRole)); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Prediction compound deleted successfully.", nil)
}

// Library handles GET /api/v1/prediction_compounds/lib/.
func (h *PredictionCompoundHandler) Library(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Library(r.Context(), requesterFrom(r, h.adminRole), parsePagination(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Prediction compound library retrieved successfully.", page)
}
