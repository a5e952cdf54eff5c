package transaction

import (
	"fmt"

	"go.uber.org/atomic"
)

// Kind is the closed set of transaction types. Adding a kind means adding a
// variant here and registering its resolver.
type Kind int

const (
	Deposit Kind = iota
	Withdraw
	Transfer
	Balance
)

func (k Kind) String() string {
	switch k {
	case Deposit:
		return "deposit"
	case Withdraw:
		return "withdraw"
	case Transfer:
		return "transfer"
	case Balance:
		return "balance"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// State tracks a transaction instance through its lifecycle. No state is
// revisited; Committed and Aborted are terminal.
type State int

const (
	StatePending State = iota
	StateLocking
	StateValidating
	StateCommitting
	StateCommitted
	StateAborting
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLocking:
		return "locking"
	case StateValidating:
		return "validating"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateAborting:
		return "aborting"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var txnIDAlloc = atomic.NewUint64(0)

// Transaction is a declarative request: a kind plus named arguments. It is
// immutable once constructed; only its lifecycle state changes, and only
// under the Manager executing it.
type Transaction struct {
	ID   uint64
	Kind Kind
	Args map[string]int64

	state State
}

// New constructs a transaction with a fresh process-wide id.
func New(kind Kind, args map[string]int64) *Transaction {
	return &Transaction{ID: txnIDAlloc.Inc(), Kind: kind, Args: args}
}

func NewDeposit(accountID uint64, amount int64) *Transaction {
	return New(Deposit, map[string]int64{"account_id": int64(accountID), "amount": amount})
}

func NewWithdraw(accountID uint64, amount int64) *Transaction {
	return New(Withdraw, map[string]int64{"account_id": int64(accountID), "amount": amount})
}

func NewTransfer(fromAccount, toAccount uint64, amount int64) *Transaction {
	return New(Transfer, map[string]int64{
		"from_account": int64(fromAccount),
		"to_account":   int64(toAccount),
		"amount":       amount,
	})
}

func NewBalance(accountID uint64) *Transaction {
	return New(Balance, map[string]int64{"account_id": int64(accountID)})
}

func (t *Transaction) State() State {
	return t.state
}
