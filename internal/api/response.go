package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/pkg/errors"
)

const codeInternal = "INTERNAL_ERROR"

// ErrorBody is the payload of every failed request.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

var statusByCode = map[string]int{
	errors.CodeValidation:         http.StatusBadRequest,
	errors.CodeNotFound:           http.StatusNotFound,
	errors.CodeConflict:           http.StatusConflict,
	errors.CodeMissingCredentials: http.StatusPreconditionFailed,
	errors.CodeEmptyResponse:      http.StatusBadGateway,
	errors.CodeMalformedResponse:  http.StatusBadGateway,
	errors.CodeInvalidFormat:      http.StatusBadGateway,
	errors.CodeProviderError:      http.StatusBadGateway,
	errors.CodeServiceUnavailable: http.StatusServiceUnavailable,
	errors.CodeCache:              http.StatusInternalServerError,
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	se, ok := errors.As(err)
	if !ok {
		logger.Error("Unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorEnvelope{
			Error: ErrorBody{Message: err.Error(), Code: codeInternal},
		})
		return
	}

	status, known := statusByCode[se.Code]
	if !known {
		status = se.StatusCode
	}
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: ErrorBody{Message: se.Message, Code: se.Code}})
}

func badRequest(c *gin.Context, logger *zap.Logger, field, message string) {
	writeError(c, logger, errors.NewValidationError(message, field, nil))
}
