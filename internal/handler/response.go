package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/careloop/consult-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// HTTPStatus maps an application error code to its HTTP status.
func HTTPStatus(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized:
		return http.StatusForbidden
	case apperrors.ErrPreconditionFailed:
		return http.StatusPreconditionFailed
	case apperrors.ErrConflict:
		return http.StatusConflict
	case apperrors.ErrDoctorUnavailable, apperrors.ErrNoDoctorAvailable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error writes an error response with the status derived from the
// application error code.
func Error(c *gin.Context, err error) {
	c.JSON(HTTPStatus(apperrors.CodeOf(err)), NewErrorResponse(err.Error()))
}
