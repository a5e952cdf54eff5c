package locks

import (
	"sync"
	"time"

	"github.com/ngaut/log"
	"github.com/pingcap/errors"
)

// ErrLockTimeout is returned when a transaction waits longer than the
// configured bound for a lock. It is retryable, unlike business failures.
var ErrLockTimeout = errors.New("lock wait timeout")

type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "X"
	}
	return "S"
}

// request is a queued acquisition waiting for a compatible lock state.
type request struct {
	txn  uint64
	mode Mode
	// upgrade requests wait at the head of the queue for the requester to
	// become the sole holder, instead of for the entry to free up.
	upgrade bool
	granted chan struct{}
}

// entry is the lock state of a single account. mode is only meaningful while
// holders is non-empty; an entry with no holders is free.
//
// Entries are created lazily on first request and kept for the process
// lifetime.
type entry struct {
	mode    Mode
	holders map[uint64]struct{}
	queue   []*request
}

func (e *entry) removeRequest(req *request) {
	for i, queued := range e.queue {
		if queued == req {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return
		}
	}
}

// LockManager owns the shared/exclusive lock state for every account ever
// locked. All state transitions happen under a single mutex; blocked
// acquisitions wait outside of it on their request's grant channel so that a
// bounded wait is a plain select.
//
// The transaction manager only releases through ReleaseAll, and never
// acquires for a transaction after releasing — that discipline, not the
// LockManager, is what makes the protocol strict 2PL.
type LockManager struct {
	mu      sync.Mutex
	entries map[uint64]*entry
	held    map[uint64]map[uint64]struct{} // txn -> accounts it holds locks on
	timeout time.Duration
}

func NewLockManager(timeout time.Duration) *LockManager {
	return &LockManager{
		entries: make(map[uint64]*entry),
		held:    make(map[uint64]map[uint64]struct{}),
		timeout: timeout,
	}
}

// Guard proves that a transaction was granted a lock on an account. An
// exclusive Guard is the capability the storage layer demands before it lets
// a write be staged.
type Guard struct {
	txn     uint64
	account uint64
	mode    Mode
}

func (g *Guard) HoldsExclusive(accountID uint64) bool {
	return g != nil && g.account == accountID && g.mode == Exclusive
}

func (g *Guard) Account() uint64 {
	return g.account
}

func (g *Guard) Mode() Mode {
	return g.mode
}

// Acquire takes a lock on an account for a transaction, blocking until the
// lock is granted or the wait bound expires. A transaction already holding a
// sufficient lock is granted again immediately; a transaction holding a
// shared lock and requesting an exclusive one upgrades in place once it is
// the sole holder.
func (lm *LockManager) Acquire(txnID, accountID uint64, mode Mode) (*Guard, error) {
	lm.mu.Lock()
	e, ok := lm.entries[accountID]
	if !ok {
		e = &entry{holders: make(map[uint64]struct{})}
		lm.entries[accountID] = e
	}

	if _, holding := e.holders[txnID]; holding {
		if e.mode == Exclusive || mode == Shared {
			lm.mu.Unlock()
			return &Guard{txn: txnID, account: accountID, mode: e.mode}, nil
		}
		// Upgrade: jump the queue, otherwise the upgrader would deadlock
		// behind requests that cannot be granted while it holds its shared
		// lock. Two transactions upgrading the same account still deadlock
		// against each other; the wait bound resolves that.
		req := &request{txn: txnID, mode: Exclusive, upgrade: true, granted: make(chan struct{})}
		e.queue = append([]*request{req}, e.queue...)
		lm.grantQueued(accountID, e)
		return lm.wait(req, e, accountID)
	}

	if len(e.holders) == 0 || (mode == Shared && e.mode == Shared) {
		e.mode = mode
		e.holders[txnID] = struct{}{}
		lm.recordHeld(txnID, accountID)
		lm.mu.Unlock()
		return &Guard{txn: txnID, account: accountID, mode: mode}, nil
	}

	req := &request{txn: txnID, mode: mode, granted: make(chan struct{})}
	e.queue = append(e.queue, req)
	log.Debugf("txn %d waiting for %s lock on account %d", txnID, mode, accountID)
	return lm.wait(req, e, accountID)
}

// wait blocks on a queued request. Called with lm.mu held; returns with it
// released.
func (lm *LockManager) wait(req *request, e *entry, accountID uint64) (*Guard, error) {
	lm.mu.Unlock()

	start := time.Now()
	timer := time.NewTimer(lm.timeout)
	defer timer.Stop()

	select {
	case <-req.granted:
		lockWaitDuration.Observe(time.Since(start).Seconds())
		return &Guard{txn: req.txn, account: accountID, mode: req.mode}, nil
	case <-timer.C:
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	select {
	case <-req.granted:
		// Granted while the timer fired; keep the lock.
		lockWaitDuration.Observe(time.Since(start).Seconds())
		return &Guard{txn: req.txn, account: accountID, mode: req.mode}, nil
	default:
	}
	e.removeRequest(req)
	// A timed-out head request may have been blocking grantable ones.
	lm.grantQueued(accountID, e)
	lockTimeoutCounter.Inc()
	return nil, errors.Annotatef(ErrLockTimeout,
		"txn %d waited %s for %s lock on account %d", req.txn, lm.timeout, req.mode, accountID)
}

// ReleaseAll drops every lock held by a transaction and grants the next
// eligible queued requests on each freed account. This is the single
// shrinking phase of the transaction; it runs at commit or abort.
func (lm *LockManager) ReleaseAll(txnID uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	accounts := lm.held[txnID]
	for accountID := range accounts {
		e := lm.entries[accountID]
		delete(e.holders, txnID)
		lm.grantQueued(accountID, e)
	}
	delete(lm.held, txnID)
	if len(accounts) > 0 {
		log.Debugf("txn %d released all locks (%d total)", txnID, len(accounts))
	}
}

// HeldBy returns the accounts a transaction currently holds locks on.
func (lm *LockManager) HeldBy(txnID uint64) []uint64 {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	accounts := make([]uint64, 0, len(lm.held[txnID]))
	for accountID := range lm.held[txnID] {
		accounts = append(accounts, accountID)
	}
	return accounts
}

// grantQueued grants every request at the head of the queue that is
// compatible with the entry's state: a pending upgrade once the upgrader is
// the sole holder, a single exclusive request once the entry is free, or the
// contiguous run of shared requests at the head while no exclusive lock is
// held. Called with lm.mu held.
func (lm *LockManager) grantQueued(accountID uint64, e *entry) {
	for len(e.queue) > 0 {
		head := e.queue[0]

		if head.upgrade {
			if len(e.holders) != 1 {
				return
			}
			if _, sole := e.holders[head.txn]; !sole {
				return
			}
			e.mode = Exclusive
			e.queue = e.queue[1:]
			close(head.granted)
			log.Debugf("txn %d upgraded to X lock on account %d", head.txn, accountID)
			return
		}

		if head.mode == Exclusive {
			if len(e.holders) != 0 {
				return
			}
			e.mode = Exclusive
			e.holders[head.txn] = struct{}{}
			lm.recordHeld(head.txn, accountID)
			e.queue = e.queue[1:]
			close(head.granted)
			log.Debugf("txn %d acquired X lock on account %d", head.txn, accountID)
			return
		}

		if len(e.holders) != 0 && e.mode == Exclusive {
			return
		}
		e.mode = Shared
		e.holders[head.txn] = struct{}{}
		lm.recordHeld(head.txn, accountID)
		e.queue = e.queue[1:]
		close(head.granted)
		log.Debugf("txn %d acquired S lock on account %d", head.txn, accountID)
	}
}

func (lm *LockManager) recordHeld(txnID, accountID uint64) {
	if lm.held[txnID] == nil {
		lm.held[txnID] = make(map[uint64]struct{})
	}
	lm.held[txnID][accountID] = struct{}{}
}
