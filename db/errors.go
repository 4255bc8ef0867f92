package db

import (
	"errors"
	"fmt"
	"time"
)

// Repo methods return these so controllers can map to HTTP statuses without
// inspecting driver errors.
var (
	ErrNotFound          = errors.New("record not found")
	ErrCodeTaken         = errors.New("device code already registered")
	ErrUsernameTaken     = errors.New("username already registered")
	ErrLetterTaken       = errors.New("assignment letter number already used")
	ErrDeviceNotLoanable = errors.New("device is in maintenance or inactive")
	ErrInvalidStatus     = errors.New("loan status does not permit this operation")
	ErrItemSetMismatch   = errors.New("return payload must cover exactly the loan's items")
	ErrDuplicateItemRef  = errors.New("duplicate device reference in loan items")
	ErrNoItems           = errors.New("loan requires at least one item")
	ErrBadQuantity       = errors.New("item quantity must be at least 1")
	ErrRequestNotPending = errors.New("condition change request is not pending")
)

// UnavailableError reports which device blocked a loan request and the
// conflicting period.
type UnavailableError struct {
	DeviceCode string
	Start      time.Time
	End        time.Time
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("device %s is not available between %s and %s",
		e.DeviceCode, e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"))
}
