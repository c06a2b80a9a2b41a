package handlers

import (
	stdliberrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/application/modelmgmt"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// ModelHandler serves /api/v1/models. Mutations require the admin role.
type ModelHandler struct {
	svc       modelmgmt.Service
	adminOnly func(http.Handler) http.Handler
	maxUpload int64
	logger    logging.Logger
}

// NewModelHandler creates a ModelHandler. adminOnly guards the mutating
// routes; nil leaves them open.
func NewModelHandler(svc modelmgmt.Service, adminOnly func(http.Handler) http.Handler, maxUpload int64, logger logging.Logger) *ModelHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if adminOnly == nil {
		adminOnly = func(next http.Handler) http.Handler { return next }
	}
	return &ModelHandler{svc: svc, adminOnly: adminOnly, maxUpload: maxUpload, logger: logger.Named("model_handler")}
}

// RegisterRoutes mounts the model endpoints on r.
func (h *ModelHandler) RegisterRoutes(r chi.Router) {
	r.Route("/models", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Group(func(r chi.Router) {
			r.Use(h.adminOnly)
			r.Post("/", h.Upload)
			r.Post("/{id}/activate", h.Activate)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// List handles GET /api/v1/models.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.List(r.Context())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Models retrieved successfully.", views)
}

// Get handles GET /api/v1/models/{id}.
func (h *ModelHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id", errors.ErrCodeModelNotFound)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	view, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Model retrieved successfully.", view)
}

// Upload handles POST /api/v1/models with multipart fields file, method
// and descriptor.
func (h *ModelHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeAppError(w, h.logger, uploadError(err))
		return
	}
	in := &modelmgmt.UploadInput{
		Method:     r.FormValue("method"),
		Descriptor: r.FormValue("descriptor"),
	}
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		in.FileName = header.Filename
		in.Body = file
	case !stdliberrors.Is(err, http.ErrMissingFile):
		writeAppError(w, h.logger, uploadError(err))
		return
	}

	m, err := h.svc.Upload(r.Context(), in)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Model created successfully.", m)
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if stdliberrors.As(err, &tooLarge) {
		return errors.Newf(errors.ErrCodeValidation, "model artifact exceeds %d bytes", tooLarge.Limit)
	}
	return errors.Wrap(err, errors.ErrCodeBadRequest, "invalid multipart body")
}

// Activate handles POST /api/v1/models/{id}/activate.
func (h *ModelHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id", errors.ErrCodeModelNotFound)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	m, err := h.svc.Activate(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Model activated successfully.", m)
}

// Delete handles DELETE /api/v1/models/{id}.
func (h *ModelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id", errors.ErrCodeModelNotFound)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Model deleted successfully.", nil)
}
