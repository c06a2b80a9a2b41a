// Package handlers implements the REST endpoints of the prediction service.
package handlers

import (
	"encoding/json"
	stdliberrors "errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/application/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/auth/token"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

// requesterFrom reads the authenticated identity placed in the context by
// the auth middleware.
func requesterFrom(r *http.Request, adminRole string) prediction.Requester {
	uid, _ := token.UserIDFromContext(r.Context())
	return prediction.Requester{UserID: uid, IsAdmin: adminRole != "" && token.HasRole(r.Context(), adminRole)}
}

// parsePagination extracts page and page_size from query parameters.
func parsePagination(r *http.Request) common.Pagination {
	var p common.Pagination
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Page = n
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.PageSize = n
		}
	}
	return p.Normalize()
}

// parseID reads a UUID path parameter. A malformed id cannot name anything,
// so it is reported as not found.
func parseID(r *http.Request, param string, notFound errors.ErrorCode) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, errors.New(notFound, errors.DefaultMessageForCode(notFound)).WithDetail(chi.URLParam(r, param))
	}
	return id, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	writeJSON(w, statusCode, common.NewSuccessResponse(message, data))
}

// writeAppError maps err onto its HTTP status and an error envelope. Server
// side failures are logged and masked.
func writeAppError(w http.ResponseWriter, logger logging.Logger, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	message := errors.DefaultMessageForCode(code)
	var ae *errors.AppError
	if stdliberrors.As(err, &ae) {
		message = ae.Message
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", logging.String("code", code.String()), logging.Err(err))
		if status == http.StatusInternalServerError {
			code = errors.ErrCodeInternal
			message = "internal server error"
		}
	}
	writeJSON(w, status, common.NewErrorResponse(code.String(), message))
}
