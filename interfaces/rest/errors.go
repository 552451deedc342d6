package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusCode maps a service error onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, registry.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusCode(err), ErrorResponse{
		Error: err.Error(),
		Kind:  registry.ErrorKind(err),
	})
}

func abortBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: err.Error(),
		Kind:  "validation",
	})
}
