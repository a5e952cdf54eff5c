package storage

import (
	"github.com/pingcap/errors"
)

var (
	// ErrAccountNotFound is returned when an account id does not resolve to
	// any fragment.
	ErrAccountNotFound = errors.New("account not found")
	// ErrUnknownCity is returned when no fragment is configured for a city.
	ErrUnknownCity = errors.New("no fragment configured for city")
)

// Storage is the account store the transaction core runs against. Accounts
// are partitioned into named fragments; an account belongs to exactly one
// fragment for its whole lifetime. Balance reads and writes are only safe
// while the caller holds the corresponding lock; Write enforces this
// structurally via the proofs recorded in the WriteBatch.
//
// CreateAccount and DeleteAccount are administrative operations, used to
// seed and tear down accounts outside of transactional activity.
type Storage interface {
	Start() error
	Stop() error
	// ResolveFragment returns the name of the fragment owning an account.
	ResolveFragment(accountID uint64) (string, error)
	ReadBalance(accountID uint64) (int64, error)
	// Write flushes every balance staged in the batch. Balances staged for
	// the same fragment are applied atomically.
	Write(batch *WriteBatch) error
	CreateAccount(city string, balance int64) (uint64, error)
	DeleteAccount(accountID uint64) error
}

// ExclusiveProof is the capability required to stage a balance write. It is
// implemented by the lock manager's guards; holding one for an account means
// the owning transaction has the exclusive lock on it.
type ExclusiveProof interface {
	HoldsExclusive(accountID uint64) bool
}
