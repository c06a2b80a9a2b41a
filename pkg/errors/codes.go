package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
	ErrCodeNotImplemented     ErrorCode = "COMMON_016"
	ErrCodeStorageError       ErrorCode = "COMMON_017"
	ErrCodeMessagingError     ErrorCode = "COMMON_018"
)

// Aliases used by call sites that predate the module-prefixed codes.
const (
	CodeUnknown        = ErrorCode("")
	CodeOK             = ErrorCode("OK")
	CodeInternal       = ErrCodeInternal
	CodeInvalidParam   = ErrCodeBadRequest
	CodeUnauthorized   = ErrCodeUnauthorized
	CodeForbidden      = ErrCodeForbidden
	CodeNotFound       = ErrCodeNotFound
	CodeConflict       = ErrCodeConflict
	CodeRateLimit      = ErrCodeTooManyRequests
	CodeNotImplemented = ErrCodeNotImplemented
)

// Molecule Module Error Codes
const (
	ErrCodeMoleculeInvalidSMILES       ErrorCode = "MOL_001"
	ErrCodeFingerprintGenerationFailed ErrorCode = "MOL_002"
	ErrCodeFingerprintTypeUnsupported  ErrorCode = "MOL_003"
)

// Model Module Error Codes
const (
	ErrCodeModelNotFound          ErrorCode = "MDL_001"
	ErrCodeModelLoadFailed        ErrorCode = "MDL_002"
	ErrCodeEncodingUnavailable    ErrorCode = "MDL_003"
	ErrCodeInferenceFailed        ErrorCode = "MDL_004"
	ErrCodeModelFormatUnsupported ErrorCode = "MDL_005"
	ErrCodeModelAlreadyExists     ErrorCode = "MDL_006"
)

// Prediction Module Error Codes
const (
	ErrCodePredictionMissingFields ErrorCode = "PRD_001"
	ErrCodePredictionEmptyInput    ErrorCode = "PRD_002"
	ErrCodePredictionFileType      ErrorCode = "PRD_003"
	ErrCodePredictionFileParse     ErrorCode = "PRD_004"
	ErrCodePredictionNotFound      ErrorCode = "PRD_005"
	ErrCodePredictionTooLarge      ErrorCode = "PRD_006"
	ErrCodePredictionTooLong       ErrorCode = "PRD_007"
	ErrCodeResultNotFound          ErrorCode = "PRD_008"
)

// Enrichment Module Error Codes
const (
	ErrCodeEnrichmentNotFound    ErrorCode = "ENR_001"
	ErrCodeEnrichmentUpstream    ErrorCode = "ENR_002"
	ErrCodeEnrichmentRateLimited ErrorCode = "ENR_003"
	ErrCodeEnrichmentRejected    ErrorCode = "ENR_004"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeFeatureDisabled:    http.StatusForbidden,
	ErrCodeNotImplemented:     http.StatusNotImplemented,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusInternalServerError,

	ErrCodeMoleculeInvalidSMILES:       http.StatusBadRequest,
	ErrCodeFingerprintGenerationFailed: http.StatusInternalServerError,
	ErrCodeFingerprintTypeUnsupported:  http.StatusBadRequest,

	ErrCodeModelNotFound:          http.StatusNotFound,
	ErrCodeModelLoadFailed:        http.StatusServiceUnavailable,
	ErrCodeEncodingUnavailable:    http.StatusServiceUnavailable,
	ErrCodeInferenceFailed:        http.StatusInternalServerError,
	ErrCodeModelFormatUnsupported: http.StatusBadRequest,
	ErrCodeModelAlreadyExists:     http.StatusConflict,

	ErrCodePredictionMissingFields: http.StatusBadRequest,
	ErrCodePredictionEmptyInput:    http.StatusBadRequest,
	ErrCodePredictionFileType:      http.StatusBadRequest,
	ErrCodePredictionFileParse:     http.StatusBadRequest,
	ErrCodePredictionNotFound:      http.StatusNotFound,
	ErrCodePredictionTooLarge:      http.StatusRequestEntityTooLarge,
	ErrCodePredictionTooLong:       http.StatusBadRequest,
	ErrCodeResultNotFound:          http.StatusNotFound,

	ErrCodeEnrichmentNotFound:    http.StatusNotFound,
	ErrCodeEnrichmentUpstream:    http.StatusBadGateway,
	ErrCodeEnrichmentRateLimited: http.StatusTooManyRequests,
	ErrCodeEnrichmentRejected:    http.StatusBadGateway,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeFeatureDisabled:    "feature disabled",
	ErrCodeNotImplemented:     "not implemented",
	ErrCodeStorageError:       "object storage error",
	ErrCodeMessagingError:     "message queue error",

	ErrCodeMoleculeInvalidSMILES:       "invalid SMILES",
	ErrCodeFingerprintGenerationFailed: "fingerprint generation failed",
	ErrCodeFingerprintTypeUnsupported:  "unsupported fingerprint type",

	ErrCodeModelNotFound:          "model not found",
	ErrCodeModelLoadFailed:        "model failed to load",
	ErrCodeEncodingUnavailable:    "encoding scheme unavailable",
	ErrCodeInferenceFailed:        "inference failed",
	ErrCodeModelFormatUnsupported: "unsupported model artifact format",
	ErrCodeModelAlreadyExists:     "model already exists",

	ErrCodePredictionMissingFields: "model_descriptor and model_method are required.",
	ErrCodePredictionEmptyInput:    "No valid SMILES strings provided.",
	ErrCodePredictionFileType:      "Only CSV files are supported.",
	ErrCodePredictionFileParse:     "could not read CSV file",
	ErrCodePredictionNotFound:      "Prediction not found.",
	ErrCodePredictionTooLarge:      "too many structures in one batch",
	ErrCodePredictionTooLong:       "SMILES string too long",
	ErrCodeResultNotFound:          "Prediction compound not found.",

	ErrCodeEnrichmentNotFound:    "compound not found in reference database",
	ErrCodeEnrichmentUpstream:    "reference database unavailable",
	ErrCodeEnrichmentRateLimited: "reference database rate limit exceeded",
	ErrCodeEnrichmentRejected:    "reference database rejected the request",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
