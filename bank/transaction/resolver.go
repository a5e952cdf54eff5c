package transaction

import (
	"github.com/pingcap/errors"
)

type StepMode int

const (
	Read StepMode = iota
	Write
)

// Step is the smallest read or write unit a transaction decomposes into for
// locking purposes. Apply computes the step's effect from the current
// balance; read steps return the balance unchanged.
type Step struct {
	AccountID uint64
	Mode      StepMode
	Apply     func(current int64) (int64, error)
}

type resolverFunc func(args map[string]int64) ([]Step, error)

// resolvers maps each kind to its resolution. The step order a resolver
// returns is the lock acquisition order, so any resolver touching several
// accounts must order its steps by ascending account id. That fixed global
// order is what rules out circular waits between well-formed transactions
// and it is a mandatory contract for every future kind.
var resolvers = map[Kind]resolverFunc{
	Deposit:  resolveDeposit,
	Withdraw: resolveWithdraw,
	Transfer: resolveTransfer,
	Balance:  resolveBalance,
}

// Resolve maps a transaction to its ordered primitive steps. It validates
// arguments only; business checks such as sufficient funds live inside the
// steps and run once the locks are held.
func Resolve(txn *Transaction) ([]Step, error) {
	resolver, ok := resolvers[txn.Kind]
	if !ok {
		return nil, errors.Annotatef(ErrUnknownTransactionType, "%s", txn.Kind)
	}
	return resolver(txn.Args)
}

func requireAccount(args map[string]int64, name string) (uint64, error) {
	v, ok := args[name]
	if !ok || v <= 0 {
		return 0, errors.Annotatef(ErrInvalidArguments, "missing or invalid %q", name)
	}
	return uint64(v), nil
}

func requireAmount(args map[string]int64) (int64, error) {
	amount, ok := args["amount"]
	if !ok {
		return 0, errors.Annotatef(ErrInvalidArguments, "missing %q", "amount")
	}
	if amount <= 0 {
		return 0, errors.Annotatef(ErrInvalidAmount, "amount %d", amount)
	}
	return amount, nil
}

func resolveDeposit(args map[string]int64) ([]Step, error) {
	accountID, err := requireAccount(args, "account_id")
	if err != nil {
		return nil, err
	}
	amount, err := requireAmount(args)
	if err != nil {
		return nil, err
	}
	return []Step{creditStep(accountID, amount)}, nil
}

func resolveWithdraw(args map[string]int64) ([]Step, error) {
	accountID, err := requireAccount(args, "account_id")
	if err != nil {
		return nil, err
	}
	amount, err := requireAmount(args)
	if err != nil {
		return nil, err
	}
	return []Step{debitStep(accountID, amount)}, nil
}

func resolveTransfer(args map[string]int64) ([]Step, error) {
	from, err := requireAccount(args, "from_account")
	if err != nil {
		return nil, err
	}
	to, err := requireAccount(args, "to_account")
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, errors.Annotatef(ErrInvalidArguments, "transfer from account %d to itself", from)
	}
	amount, err := requireAmount(args)
	if err != nil {
		return nil, err
	}
	debit, credit := debitStep(from, amount), creditStep(to, amount)
	if from < to {
		return []Step{debit, credit}, nil
	}
	return []Step{credit, debit}, nil
}

func resolveBalance(args map[string]int64) ([]Step, error) {
	accountID, err := requireAccount(args, "account_id")
	if err != nil {
		return nil, err
	}
	return []Step{{
		AccountID: accountID,
		Mode:      Read,
		Apply: func(current int64) (int64, error) {
			return current, nil
		},
	}}, nil
}

func creditStep(accountID uint64, amount int64) Step {
	return Step{
		AccountID: accountID,
		Mode:      Write,
		Apply: func(current int64) (int64, error) {
			return current + amount, nil
		},
	}
}

func debitStep(accountID uint64, amount int64) Step {
	return Step{
		AccountID: accountID,
		Mode:      Write,
		Apply: func(current int64) (int64, error) {
			if current < amount {
				return 0, errors.Annotatef(ErrInsufficientFunds,
					"account %d holds %d, need %d", accountID, current, amount)
			}
			return current - amount, nil
		},
	}
}
