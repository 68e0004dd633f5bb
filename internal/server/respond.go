package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/workerpool"
	"github.com/rs/zerolog/log"
)

// Error codes returned in ErrorBody.Code.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternal       = "INTERNAL"
	CodeUnavailable    = "UNAVAILABLE"
)

const codeKey = "rpcCode"

// ErrorBody is the error object of a failed call.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope wraps every RPC reply. Failed calls carry Error and a
// zero-valued Result.
type Envelope struct {
	Error  *ErrorBody `json:"error,omitempty"`
	Result any        `json:"result"`
}

func succeed(c *gin.Context, result any) {
	c.Set(codeKey, "OK")
	c.JSON(http.StatusOK, Envelope{Result: result})
}

// fail maps err to a status and code and aborts the request.
func fail(c *gin.Context, err error) {
	status, code, message := classify(err)
	c.Set(codeKey, code)

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("requestId", requestIDFrom(c)).
		Str("path", c.Request.URL.Path).
		Int("status", status).
		Str("code", code).
		Msg("rpc failed")

	c.AbortWithStatusJSON(status, Envelope{
		Error:  &ErrorBody{Code: code, Message: message},
		Result: zeroResult(operationName(c)),
	})
}

func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, workerpool.ErrUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable, "service is busy, try again later"
	case errors.Is(err, faults.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest, err.Error()
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}
