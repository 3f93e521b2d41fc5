package careerpaths

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/auth"
	"github.com/jimdaga/givethnotes/internal/httpx"
)

type careerPathRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
}

func (r careerPathRequest) input() Input {
	return Input{Title: r.Title, Description: r.Description, ImageURL: r.ImageURL}
}

// RegisterRoutes mounts the career path endpoints on rg.
func RegisterRoutes(rg *gin.RouterGroup, svc *Service) {
	rg.POST("/career-paths", CreateHandler(svc))
	rg.GET("/career-paths", ListHandler(svc))
	rg.GET("/career-paths/:id", GetHandler(svc))
	rg.PUT("/career-paths/:id", UpdateHandler(svc))
	rg.DELETE("/career-paths/:id", DeleteHandler(svc))
}

// CreateHandler creates a career path and opens today's entry for it.
func CreateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}
		var req careerPathRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.Respond(c, apierr.Invalid("malformed JSON body"))
			return
		}

		path, err := svc.Create(c.Request.Context(), userID, req.input())
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, path)
	}
}

// ListHandler returns the caller's career paths, newest first.
func ListHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}
		paths, err := svc.List(c.Request.Context(), userID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, paths)
	}
}

// GetHandler returns one career path.
func GetHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		path, err := svc.Get(c.Request.Context(), userID, id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, path)
	}
}

// UpdateHandler replaces the editable fields of a career path.
func UpdateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		var req careerPathRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.Respond(c, apierr.Invalid("malformed JSON body"))
			return
		}

		path, err := svc.Update(c.Request.Context(), userID, id, req.input())
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, path)
	}
}

// DeleteHandler deletes a career path with its entries and blocks.
func DeleteHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if err := svc.Delete(c.Request.Context(), userID, id); err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Career path deleted successfully"})
	}
}
