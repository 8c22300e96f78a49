package server

import (
	"fmt"
	"io"
	"net/http"

	chargedomain "github.com/comfortstays/pgbilling/internal/charge/domain"
	"github.com/comfortstays/pgbilling/internal/providers/pdf"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListCharges(c *gin.Context) {
	var query struct {
		ReadingID string `form:"reading_id"`
		RoomID    string `form:"room_id"`
		Year      string `form:"year"`
		Month     string `form:"month"`
		Status    string `form:"status"`
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
	month, err := parseOptionalInt(query.Month)
	if err != nil {
		AbortWithError(c, newValidationError("month", "invalid_month", "invalid month"))
		return
	}

	charges, err := s.chargeSvc.List(c.Request.Context(), chargedomain.ListRequest{
		ReadingID: query.ReadingID,
		RoomID:    query.RoomID,
		Year:      year,
		Month:     month,
		Status:    query.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": charges})
}

func (s *Server) CollectCharge(c *gin.Context) {
	charge, err := s.chargeSvc.MarkCollected(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": charge})
}

func (s *Server) GetBillingSummary(c *gin.Context) {
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

	summary, err := s.chargeSvc.Summary(c.Request.Context(), *year, *month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GetChargeReceipt renders one occupant's charge as a PDF.
func (s *Server) GetChargeReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	charge, err := s.chargeSvc.Get(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tariff := s.roomSvc.Tariff()
	data := pdf.ReceiptData{
		Charge:      *charge,
		Currency:    tariff.Currency,
		RatePerUnit: tariff.RatePerUnit,
	}
	// The tariff may have changed since the charge was computed.
	if charge.UnitsConsumed > 0 {
		data.RatePerUnit = charge.TotalBill / charge.UnitsConsumed
	}
	if room, err := s.roomSvc.Get(charge.RoomID); err == nil {
		data.RoomName = room.Name
	}

	reader, err := s.pdf.GenerateReceipt(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	doc, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="charge-%s.pdf"`, charge.ID))
	c.Data(http.StatusOK, "application/pdf", doc)
}
