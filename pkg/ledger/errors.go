package ledger

import "errors"

var (
	ErrInvalidAmount         = errors.New("ledger: amount must be positive")
	ErrInsufficientFunds     = errors.New("ledger: insufficient funds")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
)
