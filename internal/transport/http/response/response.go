package response

import (
	"github.com/gin-gonic/gin"

	"bytebits/internal/validate"
)

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeEmailExists        = 40001
	CodeUsernameExists     = 40002
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeNotVerified        = 40102
	CodeForbidden          = 40300
	CodeNotFound           = 40400
	CodeInvalidToken       = 40003
	CodeInternalServer     = 50000
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

// OKMessage is OK with a caller-supplied message, for endpoints whose
// user-facing text is part of the contract.
func OKMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: message,
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// ValidationError emits the field-error body contract:
// {"errors":[{"msg","path","location"}]}.
func ValidationError(c *gin.Context, httpStatus int, errs []validate.FieldError) {
	c.JSON(httpStatus, gin.H{"errors": errs})
}
