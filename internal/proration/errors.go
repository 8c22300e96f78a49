package proration

import "errors"

var (
	ErrInvalidMonth = errors.New("invalid_month")
	ErrInvalidYear  = errors.New("invalid_year")
	ErrNegativeBill = errors.New("negative_bill")
	ErrInvalidSpan  = errors.New("invalid_span")
)
