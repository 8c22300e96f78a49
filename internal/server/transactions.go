package server

import (
	"net/http"
	"strconv"

	transactiondomain "github.com/comfortstays/pgbilling/internal/transaction/domain"
	"github.com/gin-gonic/gin"
)

type createTransactionRequest struct {
	Type   string   `json:"type"`
	Status string   `json:"status"`
	BedID  string   `json:"bed_id"`
	Amount *float64 `json:"amount"`
	Note   string   `json:"note"`
	Date   string   `json:"date"`
}

type setTransactionStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) CreateTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	date, err := parseOptionalTime(req.Date)
	if err != nil {
		AbortWithError(c, newValidationError("date", "invalid_date", "invalid date"))
		return
	}

	txn, err := s.transactionSvc.Create(c.Request.Context(), transactiondomain.CreateRequest{
		Type:   req.Type,
		Status: req.Status,
		BedID:  req.BedID,
		Amount: req.Amount,
		Note:   req.Note,
		Date:   date,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": txn})
}

func (s *Server) ListTransactions(c *gin.Context) {
	year, err := parseOptionalInt(c.Query("year"))
	if err != nil {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return
	}
	month, err := parseOptionalInt(c.Query("month"))
	if err != nil {
		AbortWithError(c, newValidationError("month", "invalid_month", "invalid month"))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
	}

	resp, err := s.transactionSvc.List(c.Request.Context(), transactiondomain.ListRequest{
		Type:   c.Query("type"),
		Status: c.Query("status"),
		BedID:  c.Query("bed_id"),
		RoomID: c.Query("room_id"),
		Year:   year,
		Month:  month,
		Limit:  limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTransaction(c *gin.Context) {
	txn, err := s.transactionSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) SetTransactionStatus(c *gin.Context) {
	var req setTransactionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	txn, err := s.transactionSvc.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) DeleteTransaction(c *gin.Context) {
	if err := s.transactionSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetTransactionSummary(c *gin.Context) {
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

	summary, err := s.transactionSvc.Summary(c.Request.Context(), *year, *month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
