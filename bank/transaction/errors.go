package transaction

import (
	"github.com/pingcap/errors"
)

var (
	// ErrUnknownTransactionType is returned when a kind has no registered
	// resolver.
	ErrUnknownTransactionType = errors.New("unknown transaction type")
	// ErrInvalidArguments is returned when required arguments are absent or
	// malformed for the kind.
	ErrInvalidArguments = errors.New("invalid transaction arguments")
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientFunds aborts a withdraw or transfer whose source
	// balance does not cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrTxnFinished is returned when Execute is called on a transaction
	// that has already committed or aborted.
	ErrTxnFinished = errors.New("transaction already finished")
)
