// Package httpapi exposes spec.md §6's blueprint and run lifecycle contract
// over HTTP: gin handlers for CreateBlueprint/GetBlueprint/PatchBlueprint/
// PutBlueprint/DeleteBlueprint and StartRun/GetRun/RunEvents, wired onto
// internal/blueprint.Store and internal/engine.Engine. Grounded on
// internal/infrastructure/api/rest's handler/middleware/error-translation
// idiom, retargeted from workflow/execution CRUD onto blueprint/run
// lifecycle and internal/apperrors.Kind instead of pkg/models sentinels.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/flowcore/internal/apperrors"
)

// APIError is the response envelope for any non-2xx response, mirroring
// rest.APIError's Code/Message/Details/HTTPStatus shape.
type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// kindStatus maps spec.md §6's literal error codes onto apperrors.Kind:
// 428 PreconditionRequired, 409 Conflict, 422 Validation, 404 NotFound.
var kindStatus = map[apperrors.Kind]struct {
	code   string
	status int
}{
	apperrors.KindValidation:           {"VALIDATION_FAILED", http.StatusUnprocessableEntity},
	apperrors.KindNotFound:             {"NOT_FOUND", http.StatusNotFound},
	apperrors.KindPreconditionRequired: {"PRECONDITION_REQUIRED", http.StatusPreconditionRequired},
	apperrors.KindConflict:             {"CONFLICT", http.StatusConflict},
	apperrors.KindTimeout:              {"TIMEOUT", http.StatusGatewayTimeout},
	apperrors.KindTokenBudget:          {"TOKEN_BUDGET_EXCEEDED", http.StatusUnprocessableEntity},
	apperrors.KindDepthExceeded:        {"DEPTH_EXCEEDED", http.StatusUnprocessableEntity},
	apperrors.KindCancelled:            {"CANCELLED", http.StatusConflict},
	apperrors.KindUpstream:             {"UPSTREAM_ERROR", http.StatusBadGateway},
	apperrors.KindDimensionMismatch:    {"DIMENSION_MISMATCH", http.StatusUnprocessableEntity},
	apperrors.KindInternal:             {"INTERNAL_ERROR", http.StatusInternalServerError},
}

// TranslateError maps an apperrors.Error (or any other error) onto an
// APIError, defaulting to 500 when the cause carries no recognized Kind.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	entry, ok := kindStatus[apperrors.KindOf(err)]
	if !ok {
		entry = kindStatus[apperrors.KindInternal]
	}
	return NewAPIError(entry.code, err.Error(), entry.status)
}

func respondJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

func respondError(c *gin.Context, err error) {
	apiErr := TranslateError(err)
	if apiErr.Details == nil {
		apiErr.Details = make(map[string]interface{})
	}
	apiErr.Details["request_id"] = requestID(c)
	c.JSON(apiErr.HTTPStatus, apiErr)
}
