package httpx

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jimdaga/givethnotes/internal/apierr"
)

// ParamID parses a positive integer path parameter.
func ParamID(c *gin.Context, name string) (uint, error) {
	return parseID(name, c.Param(name))
}

// QueryID parses a required positive integer query parameter.
func QueryID(c *gin.Context, name string) (uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, apierr.Invalid("%s query param is required", name)
	}
	return parseID(name, raw)
}

func parseID(name, raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apierr.Invalid("%s must be a positive integer", name)
	}
	return uint(id), nil
}
