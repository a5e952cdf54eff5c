package storage

import (
	"sync"

	"github.com/petar/GoLLRB/llrb"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"

	"github.com/pingcap-incubator/tinybank/bank/config"
)

// MemStorage is a Storage backed by memory for testing. Each fragment is an
// LLRB tree ordered by account id. Data is not written to disk.
type MemStorage struct {
	mu        sync.RWMutex
	fragments map[string]*llrb.LLRB
	cities    map[string]string // city -> owning fragment
	index     map[uint64]string // account id -> owning fragment
	nextID    *atomic.Uint64
}

type memItem struct {
	accountID uint64
	city      string
	balance   int64
}

func (i memItem) Less(than llrb.Item) bool {
	return i.accountID < than.(memItem).accountID
}

func NewMemStorage(conf *config.Config) *MemStorage {
	s := &MemStorage{
		fragments: make(map[string]*llrb.LLRB),
		cities:    make(map[string]string),
		index:     make(map[uint64]string),
		nextID:    atomic.NewUint64(0),
	}
	for _, frag := range conf.Fragments {
		s.fragments[frag.Name] = llrb.New()
		for _, city := range frag.Cities {
			s.cities[city] = frag.Name
		}
	}
	return s
}

func (s *MemStorage) Start() error {
	return nil
}

func (s *MemStorage) Stop() error {
	return nil
}

func (s *MemStorage) ResolveFragment(accountID uint64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frag, ok := s.index[accountID]
	if !ok {
		return "", errors.Annotatef(ErrAccountNotFound, "account %d", accountID)
	}
	return frag, nil
}

func (s *MemStorage) ReadBalance(accountID uint64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, err := s.get(accountID)
	if err != nil {
		return 0, err
	}
	return item.balance, nil
}

func (s *MemStorage) Write(batch *WriteBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Every account must resolve before anything is applied, so a batch
	// never half-applies within the store.
	for _, put := range batch.Puts() {
		if _, err := s.get(put.AccountID); err != nil {
			return err
		}
	}
	for _, put := range batch.Puts() {
		frag := s.index[put.AccountID]
		item := s.fragments[frag].Get(memItem{accountID: put.AccountID}).(memItem)
		item.balance = put.Balance
		s.fragments[frag].ReplaceOrInsert(item)
	}
	return nil
}

func (s *MemStorage) CreateAccount(city string, balance int64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frag, ok := s.cities[city]
	if !ok {
		return 0, errors.Annotatef(ErrUnknownCity, "city %q", city)
	}
	id := s.nextID.Inc()
	s.fragments[frag].ReplaceOrInsert(memItem{accountID: id, city: city, balance: balance})
	s.index[id] = frag
	return id, nil
}

func (s *MemStorage) DeleteAccount(accountID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	frag, ok := s.index[accountID]
	if !ok {
		return errors.Annotatef(ErrAccountNotFound, "account %d", accountID)
	}
	s.fragments[frag].Delete(memItem{accountID: accountID})
	delete(s.index, accountID)
	return nil
}

// Len returns the number of accounts held by a fragment.
func (s *MemStorage) Len(fragment string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tree, ok := s.fragments[fragment]
	if !ok {
		return 0
	}
	return tree.Len()
}

func (s *MemStorage) get(accountID uint64) (memItem, error) {
	frag, ok := s.index[accountID]
	if !ok {
		return memItem{}, errors.Annotatef(ErrAccountNotFound, "account %d", accountID)
	}
	item := s.fragments[frag].Get(memItem{accountID: accountID})
	if item == nil {
		return memItem{}, errors.Annotatef(ErrAccountNotFound, "account %d", accountID)
	}
	return item.(memItem), nil
}
