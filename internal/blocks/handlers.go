package blocks

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/auth"
	"github.com/jimdaga/givethnotes/internal/httpx"
)

type appendBlockRequest struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

type updateBlockRequest struct {
	Content json.RawMessage `json:"content"`
}

// RegisterRoutes mounts the block endpoints on rg.
func RegisterRoutes(rg *gin.RouterGroup, store *Store) {
	rg.GET("/journal-entries/:id/blocks", ListBlocksHandler(store))
	rg.POST("/journal-entries/:id/blocks", AppendBlockHandler(store))
	rg.PUT("/journal-entries/:id/blocks/:position", UpdateBlockHandler(store))
	rg.DELETE("/journal-entries/:id/blocks/:position", RemoveBlockHandler(store))
	rg.POST("/career-paths/:id/blocks", AppendToCareerPathHandler(store))
}

// ListBlocksHandler returns the entry's blocks in position order.
func ListBlocksHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}
		entryID, err := httpx.ParamID(c, "id")
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		blocks, err := store.List(c.Request.Context(), userID, entryID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, blocks)
	}
}

// AppendBlockHandler adds a block at the end of an entry
func AppendBlockHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}
		entryID, err := httpx.ParamID(c, "id")
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		in, err := bindNewBlock(c)
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		block, err := store.Append(c.Request.Context(), userID, entryID, in)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, block)
	}
}

// AppendToCareerPathHandler adds a block to the career path's current entry
func AppendToCareerPathHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}
		careerPathID, err := httpx.ParamID(c, "id")
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		in, err := bindNewBlock(c)
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		block, err := store.AppendToCareerPath(c.Request.Context(), userID, careerPathID, in)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, block)
	}
}

// UpdateBlockHandler replaces the content of the block at :position.
func UpdateBlockHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}
		entryID, position, err := entryAndPosition(c)
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		var req updateBlockRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Content) == 0 {
			apierr.Respond(c, apierr.Invalid("content is required"))
			return
		}

		block, err := store.Update(c.Request.Context(), userID, entryID, position, datatypes.JSON(req.Content))
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, block)
	}
}

// RemoveBlockHandler deletes a block and closes the gap it leaves
func RemoveBlockHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}
		entryID, position, err := entryAndPosition(c)
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		if err := store.Remove(c.Request.Context(), userID, entryID, position); err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Block deleted and positions updated"})
	}
}

func bindNewBlock(c *gin.Context) (NewBlock, error) {
	var req appendBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return NewBlock{}, apierr.Invalid("malformed JSON body")
	}
	if req.Type == "" || len(req.Content) == 0 {
		return NewBlock{}, apierr.Invalid("type and content are required")
	}
	return NewBlock{Type: req.Type, Content: datatypes.JSON(req.Content)}, nil
}

func entryAndPosition(c *gin.Context) (uint, int, error) {
	entryID, err := httpx.ParamID(c, "id")
	if err != nil {
		return 0, 0, err
	}
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil || position < 1 {
		return 0, 0, apierr.Invalid("position must be a positive integer")
	}
	return entryID, position, nil
}
