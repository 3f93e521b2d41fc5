package journal

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/auth"
	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/httpx"
	"github.com/jimdaga/givethnotes/internal/models"
)

// EntryResponse is the JSON shape of a journal entry.
type EntryResponse struct {
	ID           uint       `json:"id"`
	CareerPathID uint       `json:"career_path_id"`
	EntryDate    string     `json:"entry_date"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// NewEntryResponse renders an entry with its date as YYYY-MM-DD.
func NewEntryResponse(e *models.JournalEntry) EntryResponse {
	return EntryResponse{
		ID:           e.ID,
		CareerPathID: e.CareerPathID,
		EntryDate:    clock.FormatDay(e.EntryDate),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

type createEntryRequest struct {
	CareerPathID uint   `json:"career_path_id"`
	EntryDate    string `json:"entry_date"`
}

type updateEntryRequest struct {
	EntryDate string `json:"entry_date"`
}

// RegisterRoutes mounts the journal entry endpoints on rg.
func RegisterRoutes(rg *gin.RouterGroup, svc *Service) {
	rg.POST("/journal-entries", CreateEntryHandler(svc))
	rg.GET("/journal-entries", ListEntriesHandler(svc))
	rg.GET("/journal-entries/:id", GetEntryHandler(svc))
	rg.PUT("/journal-entries/:id", UpdateEntryHandler(svc))
	rg.DELETE("/journal-entries/:id", DeleteEntryHandler(svc))
	rg.GET("/career-paths/:id/current-entry", CurrentEntryHandler(svc))
}

// CreateEntryHandler creates an entry for an explicit date
func CreateEntryHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}

		var req createEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.Respond(c, apierr.Invalid("malformed JSON body"))
			return
		}
		if req.CareerPathID == 0 || req.EntryDate == "" {
			apierr.Respond(c, apierr.Invalid("career_path_id and entry_date are required"))
			return
		}
		day, err := clock.ParseDay(req.EntryDate)
		if err != nil {
			apierr.Respond(c, apierr.Invalid("entry_date must be YYYY-MM-DD"))
			return
		}

		entry, err := svc.Create(c.Request.Context(), userID, req.CareerPathID, day)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, NewEntryResponse(entry))
	}
}

// ListEntriesHandler lists a career path's entries, newest first
func ListEntriesHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUser(c)
		if !ok {
			return
		}
		careerPathID, err := httpx.QueryID(c, "career_path_id")
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		entries, err := svc.ListByCareerPath(c.Request.Context(), userID, careerPathID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		out := make([]EntryResponse, 0, len(entries))
		for i := range entries {
			out = append(out, NewEntryResponse(&entries[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

// GetEntryHandler returns a single journal entry owned by the caller.
func GetEntryHandler(svc *Service) gin.HandlerFunc {
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

		entry, err := svc.Get(c.Request.Context(), userID, entryID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, NewEntryResponse(entry))
	}
}

// UpdateEntryHandler moves an entry to another date. A date already taken
// by the same career path is a conflict.
func UpdateEntryHandler(svc *Service) gin.HandlerFunc {
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

		var req updateEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.EntryDate == "" {
			apierr.Respond(c, apierr.Invalid("entry_date is required"))
			return
		}
		day, err := clock.ParseDay(req.EntryDate)
		if err != nil {
			apierr.Respond(c, apierr.Invalid("entry_date must be YYYY-MM-DD"))
			return
		}

		entry, err := svc.UpdateDate(c.Request.Context(), userID, entryID, day)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, NewEntryResponse(entry))
	}
}

// DeleteEntryHandler deletes an entry together with its blocks.
func DeleteEntryHandler(svc *Service) gin.HandlerFunc {
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

		if err := svc.Delete(c.Request.Context(), userID, entryID); err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Journal entry deleted successfully"})
	}
}

// CurrentEntryHandler returns the entry new blocks for a career path attach to
func CurrentEntryHandler(svc *Service) gin.HandlerFunc {
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

		entry, err := svc.CurrentEntryFor(c.Request.Context(), careerPathID, userID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, NewEntryResponse(entry))
	}
}
