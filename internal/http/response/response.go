package response

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/marr05/RAG-TO-AWS/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes the error envelope with the status and code apierr assigns to err.
func RespondError(c *gin.Context, err error) {
	ae := apierr.From(err)
	if ae == nil {
		ae = apierr.New(http.StatusInternalServerError, "internal_error", nil)
	}
	msg := "unknown error"
	if ae.Err != nil {
		// errors.Join separates taxonomy and cause with a newline.
		msg = strings.ReplaceAll(ae.Err.Error(), "\n", ": ")
	}
	_ = c.Error(err)
	c.JSON(ae.Status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    ae.Code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
