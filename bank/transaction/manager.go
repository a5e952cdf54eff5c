package transaction

import (
	"github.com/ngaut/log"
	"github.com/pingcap/errors"

	"github.com/pingcap-incubator/tinybank/bank/storage"
	"github.com/pingcap-incubator/tinybank/bank/transaction/locks"
)

// Manager orchestrates a transaction from resolution to commit or abort
// under strict two-phase locking: every lock is acquired before any step
// runs, writes are staged in memory while the steps validate, and the staged
// writes are flushed before the single release at the end. A transaction
// that fails at any point releases everything with nothing flushed, so no
// partial effect is ever visible.
type Manager struct {
	storage storage.Storage
	locks   *locks.LockManager
}

func NewManager(s storage.Storage, lm *locks.LockManager) *Manager {
	return &Manager{storage: s, locks: lm}
}

// Result reports a committed transaction: the balances of every touched
// account after commit.
type Result struct {
	Balances map[uint64]int64
}

// Execute runs a transaction to completion and returns only once commit or
// abort is final. On abort the returned error carries the reason; the
// transaction's State tells the outcome either way.
func (m *Manager) Execute(txn *Transaction) (*Result, error) {
	if txn.state != StatePending {
		return nil, errors.Annotatef(ErrTxnFinished, "txn %d is %s", txn.ID, txn.state)
	}

	steps, err := Resolve(txn)
	if err != nil {
		// Resolution failure: no locks were taken.
		txn.state = StateAborted
		txnCounter.WithLabelValues(txn.Kind.String(), "aborted").Inc()
		return nil, errors.Trace(err)
	}

	// Growing phase: take every lock in resolution order before any step
	// logic runs.
	txn.state = StateLocking
	guards := make(map[uint64]*locks.Guard, len(steps))
	for _, step := range steps {
		mode := locks.Shared
		if step.Mode == Write {
			mode = locks.Exclusive
		}
		guard, err := m.locks.Acquire(txn.ID, step.AccountID, mode)
		if err != nil {
			return nil, m.abort(txn, err)
		}
		guards[step.AccountID] = guard
	}

	// Validate every step against the staged state before anything is
	// written, so a failing later step can never expose an earlier one.
	txn.state = StateValidating
	batch := storage.NewWriteBatch()
	balances := make(map[uint64]int64, len(steps))
	for _, step := range steps {
		current, ok := batch.Staged(step.AccountID)
		if !ok {
			current, err = m.storage.ReadBalance(step.AccountID)
			if err != nil {
				return nil, m.abort(txn, err)
			}
		}
		next, err := step.Apply(current)
		if err != nil {
			return nil, m.abort(txn, err)
		}
		if step.Mode == Write {
			if err := batch.SetBalance(guards[step.AccountID], step.AccountID, next); err != nil {
				return nil, m.abort(txn, err)
			}
		}
		balances[step.AccountID] = next
	}

	// Flush while still holding every lock, then release them all in one
	// shrinking phase. The effects become visible to others at the release.
	txn.state = StateCommitting
	if err := m.storage.Write(batch); err != nil {
		return nil, m.abort(txn, err)
	}
	m.locks.ReleaseAll(txn.ID)
	txn.state = StateCommitted
	txnCounter.WithLabelValues(txn.Kind.String(), "committed").Inc()
	log.Debugf("txn %d (%s) committed, %d writes", txn.ID, txn.Kind, batch.Len())
	return &Result{Balances: balances}, nil
}

func (m *Manager) abort(txn *Transaction, reason error) error {
	txn.state = StateAborting
	m.locks.ReleaseAll(txn.ID)
	txn.state = StateAborted
	txnCounter.WithLabelValues(txn.Kind.String(), "aborted").Inc()
	log.Warnf("txn %d (%s) aborted: %v", txn.ID, txn.Kind, reason)
	return errors.Trace(reason)
}
