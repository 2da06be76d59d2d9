package dto

import (
	"errors"
	"fmt"
	"time"
)

// DataUnavailableError marks missing price or earnings data for a symbol/date.
// Callers recover by excluding the symbol from that day, never by defaulting
// the missing quantity to zero.
type DataUnavailableError struct {
	Symbol string
	Date   time.Time
	Field  string
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("data unavailable: %s %s on %s", e.Symbol, e.Field, e.Date.Format("2006-01-02"))
}

// ArithmeticDegenerateError marks a division by a zero or NaN denominator
// during a gap or percent-change computation. The affected candidate or
// position day is excluded rather than recorded as zero.
type ArithmeticDegenerateError struct {
	Symbol string
	Date   time.Time
	Field  string
}

func (e *ArithmeticDegenerateError) Error() string {
	return fmt.Sprintf("degenerate arithmetic: %s %s on %s", e.Symbol, e.Field, e.Date.Format("2006-01-02"))
}

// IsDataUnavailable reports whether err is a DataUnavailableError.
func IsDataUnavailable(err error) bool {
	var target *DataUnavailableError
	return errors.As(err, &target)
}

// IsArithmeticDegenerate reports whether err is an ArithmeticDegenerateError.
func IsArithmeticDegenerate(err error) bool {
	var target *ArithmeticDegenerateError
	return errors.As(err, &target)
}
