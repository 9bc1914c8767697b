// Package handlers provides the HTTP handlers for the local API surface.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goodhang/authcore/pkg/errors"
)

// respondError maps an error onto the wire: AppErrors carry their own kind,
// code, and user-facing message; anything else is a masked server error.
func respondError(c *gin.Context, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		c.AbortWithStatusJSON(appErr.HTTPStatus(), gin.H{
			"error":             appErr.Code(),
			"error_kind":        string(appErr.Kind()),
			"error_description": appErr.Message(),
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":             "internal_error",
		"error_description": "An unexpected error occurred.",
	})
}
