package sqlite_storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	// sqlite driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"

	"github.com/pingcap-incubator/tinybank/bank/config"
	"github.com/pingcap-incubator/tinybank/bank/storage"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS accounts (
	account_id INTEGER PRIMARY KEY,
	city TEXT,
	balance INTEGER CHECK(balance >= 0)
)`

// SqliteStorage is a storage.Storage holding each fragment in its own sqlite
// file. Account ids are process-wide monotonic and never reused; the
// account->fragment index is rebuilt from the fragment files at Start.
type SqliteStorage struct {
	conf *config.Config

	dbs    map[string]*sql.DB // fragment name -> handle
	mu     sync.RWMutex       // guards index
	index  map[uint64]string  // account id -> owning fragment
	nextID *atomic.Uint64
}

func New(conf *config.Config) *SqliteStorage {
	return &SqliteStorage{
		conf:   conf,
		dbs:    make(map[string]*sql.DB),
		index:  make(map[uint64]string),
		nextID: atomic.NewUint64(0),
	}
}

func (s *SqliteStorage) Start() error {
	for _, frag := range s.conf.Fragments {
		if err := os.MkdirAll(filepath.Dir(frag.DBPath), 0755); err != nil {
			return errors.Annotatef(err, "create dir for fragment %s", frag.Name)
		}
		dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", frag.DBPath)
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return errors.Annotatef(err, "open fragment %s", frag.Name)
		}
		// A single connection per fragment keeps sqlite writers from
		// tripping over each other; serialization across accounts is the
		// lock manager's job, not the driver's.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(createTableSQL); err != nil {
			db.Close()
			return errors.Annotatef(err, "init fragment %s", frag.Name)
		}
		s.dbs[frag.Name] = db
		log.Infof("fragment %q ready at %s", frag.Name, frag.DBPath)
	}
	return s.buildIndex()
}

func (s *SqliteStorage) Stop() error {
	var firstErr error
	for name, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = errors.Annotatef(err, "close fragment %s", name)
		}
	}
	return firstErr
}

// buildIndex scans every fragment and rebuilds the in-memory account index,
// seeding the id allocator past the highest existing id.
func (s *SqliteStorage) buildIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[uint64]string)
	var max uint64
	for name, db := range s.dbs {
		rows, err := db.Query("SELECT account_id FROM accounts")
		if err != nil {
			return errors.Annotatef(err, "scan fragment %s", name)
		}
		for rows.Next() {
			var id uint64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return errors.Trace(err)
			}
			s.index[id] = name
			if id > max {
				max = id
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return errors.Trace(err)
		}
		rows.Close()
	}
	s.nextID.Store(max)
	log.Infof("account index built, %d accounts, next id %d", len(s.index), max+1)
	return nil
}

func (s *SqliteStorage) ResolveFragment(accountID uint64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frag, ok := s.index[accountID]
	if !ok {
		return "", errors.Annotatef(storage.ErrAccountNotFound, "account %d", accountID)
	}
	return frag, nil
}

func (s *SqliteStorage) ReadBalance(accountID uint64) (int64, error) {
	frag, err := s.ResolveFragment(accountID)
	if err != nil {
		return 0, err
	}
	var balance int64
	err = s.dbs[frag].QueryRow("SELECT balance FROM accounts WHERE account_id = ?", accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, errors.Annotatef(storage.ErrAccountNotFound, "account %d", accountID)
	}
	if err != nil {
		return 0, errors.Trace(err)
	}
	return balance, nil
}

// Write applies the staged balances, grouped per fragment inside a single
// sql transaction so the flush is atomic within each fragment.
func (s *SqliteStorage) Write(batch *storage.WriteBatch) error {
	byFragment := make(map[string][]storage.Put)
	for _, put := range batch.Puts() {
		frag, err := s.ResolveFragment(put.AccountID)
		if err != nil {
			return err
		}
		byFragment[frag] = append(byFragment[frag], put)
	}
	for frag, puts := range byFragment {
		if err := s.writeFragment(frag, puts); err != nil {
			return err
		}
	}
	return nil
}

func (s *SqliteStorage) writeFragment(frag string, puts []storage.Put) error {
	tx, err := s.dbs[frag].Begin()
	if err != nil {
		return errors.Annotatef(err, "begin on fragment %s", frag)
	}
	for _, put := range puts {
		res, err := tx.Exec("UPDATE accounts SET balance = ? WHERE account_id = ?", put.Balance, put.AccountID)
		if err != nil {
			tx.Rollback()
			return errors.Annotatef(err, "update account %d", put.AccountID)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			tx.Rollback()
			return errors.Annotatef(storage.ErrAccountNotFound, "account %d", put.AccountID)
		}
	}
	return errors.Annotatef(tx.Commit(), "commit on fragment %s", frag)
}

func (s *SqliteStorage) CreateAccount(city string, balance int64) (uint64, error) {
	return s.createAccount(city, balance, 0)
}

// createAccount inserts an account, allocating a fresh id when id is zero.
// An explicit id (bulk import) bumps the allocator past itself so ids stay
// unique even across import and live creation.
func (s *SqliteStorage) createAccount(city string, balance int64, id uint64) (uint64, error) {
	frag := s.conf.FragmentForCity(city)
	if frag == "" {
		return 0, errors.Annotatef(storage.ErrUnknownCity, "city %q", city)
	}
	if id == 0 {
		id = s.nextID.Inc()
	} else {
		for {
			cur := s.nextID.Load()
			if id <= cur || s.nextID.CAS(cur, id) {
				break
			}
		}
	}
	_, err := s.dbs[frag].Exec(
		"INSERT INTO accounts (account_id, city, balance) VALUES (?, ?, ?)", id, city, balance)
	if err != nil {
		return 0, errors.Annotatef(err, "insert account %d into fragment %s", id, frag)
	}
	s.mu.Lock()
	s.index[id] = frag
	s.mu.Unlock()
	log.Infof("account %d created in fragment %q with balance %d", id, frag, balance)
	return id, nil
}

func (s *SqliteStorage) DeleteAccount(accountID uint64) error {
	frag, err := s.ResolveFragment(accountID)
	if err != nil {
		return err
	}
	if _, err := s.dbs[frag].Exec("DELETE FROM accounts WHERE account_id = ?", accountID); err != nil {
		return errors.Annotatef(err, "delete account %d", accountID)
	}
	s.mu.Lock()
	delete(s.index, accountID)
	s.mu.Unlock()
	log.Infof("account %d deleted from fragment %q", accountID, frag)
	return nil
}
