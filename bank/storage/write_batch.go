package storage

import (
	"github.com/pingcap/errors"
)

// Put is the smallest unit of mutation of the account store: a new balance
// for one account.
type Put struct {
	AccountID uint64
	Balance   int64
}

// WriteBatch collects the balance writes of a single transaction. Writes are
// staged in memory and hit the fragments only when the batch is passed to
// Storage.Write, after every step of the transaction has validated.
//
// SetBalance demands an ExclusiveProof for the account, so a write can only
// be staged while the exclusive lock is held.
type WriteBatch struct {
	puts   []Put
	staged map[uint64]int64
}

func NewWriteBatch() *WriteBatch {
	return &WriteBatch{staged: make(map[uint64]int64)}
}

// SetBalance stages a new balance for an account. A later SetBalance for the
// same account supersedes the earlier one.
func (wb *WriteBatch) SetBalance(proof ExclusiveProof, accountID uint64, balance int64) error {
	if proof == nil || !proof.HoldsExclusive(accountID) {
		return errors.Errorf("write to account %d staged without holding its exclusive lock", accountID)
	}
	wb.puts = append(wb.puts, Put{AccountID: accountID, Balance: balance})
	wb.staged[accountID] = balance
	return nil
}

// Staged returns the balance this batch would write for an account, if any.
// Steps of the same transaction read through it so a later step observes an
// earlier step's effect before anything is flushed.
func (wb *WriteBatch) Staged(accountID uint64) (int64, bool) {
	balance, ok := wb.staged[accountID]
	return balance, ok
}

// Puts returns the staged writes in staging order. Entries superseded by a
// later write for the same account are already collapsed in staged order.
func (wb *WriteBatch) Puts() []Put {
	// Collapse duplicates, keeping the last write per account.
	out := make([]Put, 0, len(wb.puts))
	seen := make(map[uint64]struct{}, len(wb.puts))
	for i := len(wb.puts) - 1; i >= 0; i-- {
		p := wb.puts[i]
		if _, ok := seen[p.AccountID]; ok {
			continue
		}
		seen[p.AccountID] = struct{}{}
		out = append(out, p)
	}
	// Restore staging order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (wb *WriteBatch) Len() int {
	return len(wb.staged)
}
