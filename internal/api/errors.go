package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/middleware"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error     string           `json:"error"`
	Kind      domain.ErrorKind `json:"kind"`
	Field     string           `json:"field,omitempty"`
	Details   string           `json:"details,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

// statusFor maps an error kind to the HTTP status returned to clients
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindUnsupportedLanguage:
		return http.StatusBadRequest
	case domain.KindAuthentication, domain.KindUpstreamClient:
		return http.StatusBadGateway
	case domain.KindConfiguration, domain.KindExhaustedRetries, domain.KindUnavailable, domain.KindTransientUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	resp := ErrorResponse{
		Kind:      kind,
		RequestID: c.GetString(middleware.RequestIDKey),
	}

	var validationErr *domain.ValidationError
	var riskErr *domain.RiskError
	switch {
	case errors.As(err, &validationErr):
		resp.Error = validationErr.Message
		resp.Field = validationErr.Field
	case errors.As(err, &riskErr):
		resp.Error = riskErr.Message
		resp.Details = riskErr.Details
	default:
		// Unclassified failures are logged in full but not echoed back
		resp.Error = "internal server error"
	}

	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, resp)
}
