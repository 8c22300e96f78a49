package server

import (
	"net/http"
	"strings"

	readingdomain "github.com/comfortstays/pgbilling/internal/reading/domain"
	"github.com/gin-gonic/gin"
)

type createReadingRequest struct {
	Year        *int               `json:"year"`
	Month       *int               `json:"month"`
	ReadingDate string             `json:"reading_date"`
	Notes       string             `json:"notes"`
	Rooms       map[string]float64 `json:"rooms"`
}

type updateReadingRequest struct {
	Year        *int               `json:"year,omitempty"`
	Month       *int               `json:"month,omitempty"`
	ReadingDate string             `json:"reading_date,omitempty"`
	Notes       *string            `json:"notes,omitempty"`
	Rooms       map[string]float64 `json:"rooms,omitempty"`
}

func (s *Server) CreateReading(c *gin.Context) {
	var req createReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Year == nil {
		AbortWithError(c, newValidationError("year", "required", "year is required"))
		return
	}
	if req.Month == nil {
		AbortWithError(c, newValidationError("month", "required", "month is required (0-11)"))
		return
	}
	readingDate, err := parseOptionalTime(req.ReadingDate)
	if err != nil {
		AbortWithError(c, newValidationError("reading_date", "invalid_reading_date", "invalid reading_date"))
		return
	}

	resp, err := s.readingSvc.Create(c.Request.Context(), readingdomain.CreateRequest{
		Year:        *req.Year,
		Month:       *req.Month,
		ReadingDate: readingDate,
		Notes:       req.Notes,
		Rooms:       req.Rooms,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("reading_id", resp.ID)
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListReadings(c *gin.Context) {
	var query struct {
		RoomID string `form:"room_id"`
		Year   string `form:"year"`
		Limit  string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	year, err := parseOptionalInt(query.Year)
	if err != nil {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return
	}
	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	req := readingdomain.ListRequest{
		RoomID: strings.TrimSpace(query.RoomID),
		Year:   year,
	}
	if limit != nil {
		req.Limit = *limit
	}
	resp, err := s.readingSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetReading(c *gin.Context) {
	c.Set("reading_id", c.Param("id"))
	resp, err := s.readingSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateReading(c *gin.Context) {
	c.Set("reading_id", c.Param("id"))
	var req updateReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	readingDate, err := parseOptionalTime(req.ReadingDate)
	if err != nil {
		AbortWithError(c, newValidationError("reading_date", "invalid_reading_date", "invalid reading_date"))
		return
	}

	resp, err := s.readingSvc.Update(c.Request.Context(), readingdomain.UpdateRequest{
		ID:          c.Param("id"),
		Year:        req.Year,
		Month:       req.Month,
		ReadingDate: readingDate,
		Notes:       req.Notes,
		Rooms:       req.Rooms,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecomputeReading(c *gin.Context) {
	c.Set("reading_id", c.Param("id"))
	resp, err := s.readingSvc.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
