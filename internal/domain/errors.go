package domain

import (
	"errors"
	"fmt"
)

// Taxonomia de erros compartilhada pelos ledgers, scheduler e camada HTTP.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrBettingClosed       = errors.New("betting closed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadySettled      = errors.New("already settled")
	ErrNotDue              = errors.New("draw time not reached")
	ErrAlreadyProcessed    = errors.New("already processed")
	ErrUnavailable         = errors.New("storage unavailable")
)

var (
	ErrSessionNotFound    = fmt.Errorf("session %w", ErrNotFound)
	ErrWithdrawalNotFound = fmt.Errorf("withdrawal %w", ErrNotFound)
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrInvalidDigit       = fmt.Errorf("%w: digit must be between 0 and 9", ErrInvalidInput)
)

// IsRejection indica erros de validação/regra de negócio, que nunca são re-tentados automaticamente.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrBettingClosed) ||
		errors.Is(err, ErrNotDue) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrAlreadyProcessed)
}
