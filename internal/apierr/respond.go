package apierr

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is the body of an error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError under the "error" key.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Respond writes err as a JSON error envelope. Server errors are logged and
// their details withheld from the client.
func Respond(c *gin.Context, err error) {
	status, code := StatusOf(err)
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", msg,
		)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}
