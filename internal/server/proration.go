package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/comfortstays/pgbilling/internal/proration"
	"github.com/gin-gonic/gin"
)

type previewSpan struct {
	OccupantID   string `json:"occupant_id"`
	OccupantName string `json:"occupant_name"`
	BedID        string `json:"bed_id"`
	CheckInDate  string `json:"check_in_date"`
	CheckOutDate string `json:"check_out_date"`
}

type previewRequest struct {
	RoomID        string        `json:"room_id"`
	Year          *int          `json:"year"`
	Month         *int          `json:"month"`
	TotalBill     *float64      `json:"total_bill"`
	UnitsConsumed *float64      `json:"units_consumed"`
	Spans         []previewSpan `json:"spans"`
}

// PreviewProration runs the engine on caller-supplied spans without
// touching stored data. Either total_bill or units_consumed is required;
// units are priced at the configured tariff.
func (s *Server) PreviewProration(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Year == nil || req.Month == nil {
		AbortWithError(c, newValidationError("period", "required", "year and month are required"))
		return
	}

	var totalBill float64
	switch {
	case req.TotalBill != nil:
		totalBill = *req.TotalBill
	case req.UnitsConsumed != nil:
		if *req.UnitsConsumed < 0 {
			AbortWithError(c, newValidationError("units_consumed", "negative_units", "units_consumed must not be negative"))
			return
		}
		totalBill = proration.TotalBill(*req.UnitsConsumed, s.roomSvc.Tariff().RatePerUnit)
	default:
		AbortWithError(c, newValidationError("total_bill", "required", "total_bill or units_consumed is required"))
		return
	}

	spans := make([]proration.Span, 0, len(req.Spans))
	for i, raw := range req.Spans {
		checkIn, err := parseOptionalTime(raw.CheckInDate)
		if err != nil {
			AbortWithError(c, newValidationError(fmt.Sprintf("spans[%d].check_in_date", i), "invalid_check_in_date", "invalid check_in_date"))
			return
		}
		checkOut, err := parseOptionalTime(raw.CheckOutDate)
		if err != nil {
			AbortWithError(c, newValidationError(fmt.Sprintf("spans[%d].check_out_date", i), "invalid_check_out_date", "invalid check_out_date"))
			return
		}
		spans = append(spans, proration.Span{
			OccupantID:   strings.TrimSpace(raw.OccupantID),
			OccupantName: strings.TrimSpace(raw.OccupantName),
			BedID:        strings.TrimSpace(raw.BedID),
			CheckIn:      checkIn,
			CheckOut:     checkOut,
		})
	}

	calc, err := proration.ComputeFairDistribution(strings.TrimSpace(req.RoomID), *req.Year, *req.Month, totalBill, spans)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": calc})
}
