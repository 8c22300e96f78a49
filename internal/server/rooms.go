package server

import (
	"net/http"
	"strings"

	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	"github.com/gin-gonic/gin"
)

type assignOccupantRequest struct {
	OccupantName  string  `json:"occupant_name"`
	OccupantPhone string  `json:"occupant_phone"`
	OccupantEmail string  `json:"occupant_email"`
	Rent          float64 `json:"rent"`
	Deposit       float64 `json:"deposit"`
	CheckInDate   string  `json:"check_in_date"`
	CheckOutDate  string  `json:"check_out_date"`
	Notes         string  `json:"notes"`
}

type vacateBedRequest struct {
	CheckOutDate string `json:"check_out_date"`
}

func (s *Server) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data":   s.roomSvc.List(),
		"tariff": s.roomSvc.Tariff(),
	})
}

func (s *Server) ListBeds(c *gin.Context) {
	beds, err := s.occupancySvc.ListBeds(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": beds})
}

func (s *Server) ListBedHistory(c *gin.Context) {
	history, err := s.occupancySvc.History(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": history})
}

func (s *Server) ListRoomSpans(c *gin.Context) {
	year, err := parseOptionalInt(c.Query("year"))
	if err != nil || year == nil {
		AbortWithError(c, newValidationError("year", "invalid_year", "year is required"))
		return
	}
	month, err := parseOptionalInt(c.Query("month"))
	if err != nil || month == nil {
		AbortWithError(c, newValidationError("month", "invalid_month", "month is required (0-11)"))
		return
	}

	spans, err := s.occupancySvc.RoomSpans(c.Request.Context(), strings.TrimSpace(c.Param("id")), *year, *month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": spans})
}

func (s *Server) GetBed(c *gin.Context) {
	bed, err := s.occupancySvc.GetBed(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bed})
}

func (s *Server) AssignOccupant(c *gin.Context) {
	var req assignOccupantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	checkIn, err := parseOptionalTime(req.CheckInDate)
	if err != nil {
		AbortWithError(c, newValidationError("check_in_date", "invalid_check_in_date", "invalid check_in_date"))
		return
	}
	checkOut, err := parseOptionalTime(req.CheckOutDate)
	if err != nil {
		AbortWithError(c, newValidationError("check_out_date", "invalid_check_out_date", "invalid check_out_date"))
		return
	}

	bed, err := s.occupancySvc.AssignOccupant(c.Request.Context(), occupancydomain.AssignRequest{
		BedID:         c.Param("id"),
		OccupantName:  req.OccupantName,
		OccupantPhone: req.OccupantPhone,
		OccupantEmail: req.OccupantEmail,
		Rent:          req.Rent,
		Deposit:       req.Deposit,
		CheckInDate:   checkIn,
		CheckOutDate:  checkOut,
		Notes:         req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bed})
}

func (s *Server) VacateBed(c *gin.Context) {
	var req vacateBedRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	checkOut, err := parseOptionalTime(req.CheckOutDate)
	if err != nil {
		AbortWithError(c, newValidationError("check_out_date", "invalid_check_out_date", "invalid check_out_date"))
		return
	}

	history, err := s.occupancySvc.Vacate(c.Request.Context(), occupancydomain.VacateRequest{
		BedID:        c.Param("id"),
		CheckOutDate: checkOut,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": history})
}
