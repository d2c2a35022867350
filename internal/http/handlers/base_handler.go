// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/dispatch"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeDispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispatch.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrInvalidState), errors.Is(err, dispatch.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrStaleDecision):
		writeError(c, http.StatusGone, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
