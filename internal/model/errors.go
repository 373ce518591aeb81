package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyInUse      = fmt.Errorf("%w: machine already in use", ErrInvalidTransition)
	ErrOutOfService      = fmt.Errorf("%w: machine is out of service", ErrInvalidTransition)
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("concurrent modification")
	ErrPersistence       = errors.New("persistence error")
	ErrDeliveryFailure   = errors.New("delivery failure")
	ErrInvalidSignature  = errors.New("invalid signature")
)

// Error codes exposed to API clients.
const (
	CodeNotFound          = "not_found"
	CodeAlreadyInUse      = "already_in_use"
	CodeOutOfService      = "out_of_service"
	CodeInvalidTransition = "invalid_transition"
	CodeInsufficientFunds = "insufficient_funds"
	CodeInvalidAmount     = "invalid_amount"
	CodeInvalidInput      = "invalid_input"
	CodeInvalidSignature  = "invalid_signature"
	CodeInternal          = "internal_error"
)

// ErrorCode classifies err into one of the stable API error codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyInUse):
		return CodeAlreadyInUse
	case errors.Is(err, ErrOutOfService):
		return CodeOutOfService
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrInsufficientFunds):
		return CodeInsufficientFunds
	case errors.Is(err, ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrInvalidSignature):
		return CodeInvalidSignature
	default:
		return CodeInternal
	}
}
