package api

import (
	"quote-service/internal/common/errors"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// Internal error details never leave the process.
func errorBody(err *errors.StandardError) ErrorResponse {
	resp := ErrorResponse{
		Success: false,
		Error:   err.Message,
		Code:    string(err.Code),
	}
	if err.Category != errors.CategoryInternal {
		resp.Details = err.Details
	}
	return resp
}

func respondError(c *gin.Context, err error) {
	stdErr := errors.Normalize(err)
	c.JSON(stdErr.HTTPStatus(), errorBody(stdErr))
}

func abortWithError(c *gin.Context, err error) {
	stdErr := errors.Normalize(err)
	c.AbortWithStatusJSON(stdErr.HTTPStatus(), errorBody(stdErr))
}
