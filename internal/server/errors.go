package server

import (
	"errors"
	"net/http"

	chargedomain "github.com/comfortstays/pgbilling/internal/charge/domain"
	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	"github.com/comfortstays/pgbilling/internal/proration"
	readingdomain "github.com/comfortstays/pgbilling/internal/reading/domain"
	roomdomain "github.com/comfortstays/pgbilling/internal/room/domain"
	transactiondomain "github.com/comfortstays/pgbilling/internal/transaction/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// validationErrors pairs each sentinel with the request field it concerns.
var validationErrors = []struct {
	err   error
	field string
}{
	{ErrInvalidRequest, "request"},
	{proration.ErrInvalidMonth, "month"},
	{proration.ErrInvalidYear, "year"},
	{proration.ErrNegativeBill, "total_bill"},
	{proration.ErrInvalidSpan, "spans"},
	{readingdomain.ErrInvalidID, "id"},
	{readingdomain.ErrNoRooms, "rooms"},
	{readingdomain.ErrUnknownRoom, "rooms"},
	{readingdomain.ErrRoomNotAC, "rooms"},
	{readingdomain.ErrNegativeUnits, "rooms"},
	{readingdomain.ErrFutureReading, "reading_date"},
	{chargedomain.ErrInvalidID, "id"},
	{chargedomain.ErrInvalidStatus, "status"},
	{occupancydomain.ErrInvalidID, "id"},
	{occupancydomain.ErrInvalidOccupantName, "occupant_name"},
	{occupancydomain.ErrInvalidAmount, "rent"},
	{occupancydomain.ErrInvalidDates, "check_out_date"},
	{roomdomain.ErrInvalidID, "room_id"},
	{roomdomain.ErrNotACEnabled, "room_id"},
	{transactiondomain.ErrInvalidID, "id"},
	{transactiondomain.ErrInvalidType, "type"},
	{transactiondomain.ErrInvalidStatus, "status"},
	{transactiondomain.ErrInvalidAmount, "amount"},
	{transactiondomain.ErrBedRequired, "bed_id"},
	{transactiondomain.ErrNoteRequired, "note"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, field, ok := validationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   field,
					Code:    code,
					Message: err.Error(),
				},
			},
		}
	}

	switch {
	case errors.Is(err, chargedomain.ErrPersistence):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "charges_inconsistent",
			Message: "charges could not be saved; retry or recompute the reading",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, readingdomain.ErrPeriodTaken),
		errors.Is(err, occupancydomain.ErrBedVacant),
		errors.Is(err, transactiondomain.ErrBedVacant),
		errors.Is(err, transactiondomain.ErrDuplicateEntry):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationCode(err error) (code, field string, ok bool) {
	for _, v := range validationErrors {
		if errors.Is(err, v.err) {
			return v.err.Error(), v.field, true
		}
	}
	return "", "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, readingdomain.ErrNotFound),
		errors.Is(err, chargedomain.ErrNotFound),
		errors.Is(err, chargedomain.ErrReadingMissing),
		errors.Is(err, occupancydomain.ErrNotFound),
		errors.Is(err, roomdomain.ErrNotFound),
		errors.Is(err, transactiondomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog returns the response type and a stable code for the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	if code, _, ok := validationCode(err); ok {
		return payload.Type, code
	}
	return payload.Type, payload.Type
}
