package sqlite_storage

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap-incubator/tinybank/bank/config"
	"github.com/pingcap-incubator/tinybank/bank/storage"
)

type testProof struct {
	accountID uint64
}

func (p testProof) HoldsExclusive(accountID uint64) bool {
	return p.accountID == accountID
}

func newTestConf(t *testing.T) (*config.Config, func()) {
	dir, err := ioutil.TempDir("", "tinybank-sqlite-test")
	require.NoError(t, err)
	conf := config.NewTestConfig()
	for i := range conf.Fragments {
		conf.Fragments[i].DBPath = filepath.Join(dir, conf.Fragments[i].Name+".db")
	}
	return conf, func() { os.RemoveAll(dir) }
}

func TestSqliteStorageRoundTrip(t *testing.T) {
	conf, cleanup := newTestConf(t)
	defer cleanup()

	s := New(conf)
	require.NoError(t, s.Start())
	defer s.Stop()

	a, err := s.CreateAccount("Kisumu", 1000)
	require.NoError(t, err)
	b, err := s.CreateAccount("Mombasa", 0)
	require.NoError(t, err)

	frag, err := s.ResolveFragment(a)
	require.NoError(t, err)
	assert.Equal(t, "north", frag)
	frag, err = s.ResolveFragment(b)
	require.NoError(t, err)
	assert.Equal(t, "coast", frag)

	wb := storage.NewWriteBatch()
	require.NoError(t, wb.SetBalance(testProof{a}, a, 700))
	require.NoError(t, wb.SetBalance(testProof{b}, b, 300))
	require.NoError(t, s.Write(wb))

	balance, err := s.ReadBalance(a)
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance)
	balance, err = s.ReadBalance(b)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance)
}

func TestSqliteStorageRestartRebuildsIndex(t *testing.T) {
	conf, cleanup := newTestConf(t)
	defer cleanup()

	s := New(conf)
	require.NoError(t, s.Start())
	a, err := s.CreateAccount("Nairobi", 1234)
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	// A fresh instance over the same files sees the account and keeps
	// allocating past its id.
	s2 := New(conf)
	require.NoError(t, s2.Start())
	defer s2.Stop()

	balance, err := s2.ReadBalance(a)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), balance)

	next, err := s2.CreateAccount("Kisumu", 1)
	require.NoError(t, err)
	assert.True(t, next > a)
}

func TestSqliteStorageDeleteAndUnknowns(t *testing.T) {
	conf, cleanup := newTestConf(t)
	defer cleanup()

	s := New(conf)
	require.NoError(t, s.Start())
	defer s.Stop()

	_, err := s.CreateAccount("Atlantis", 10)
	assert.Equal(t, storage.ErrUnknownCity, errors.Cause(err))

	a, err := s.CreateAccount("Eldoret", 10)
	require.NoError(t, err)
	require.NoError(t, s.DeleteAccount(a))
	_, err = s.ReadBalance(a)
	assert.Equal(t, storage.ErrAccountNotFound, errors.Cause(err))

	wb := storage.NewWriteBatch()
	require.NoError(t, wb.SetBalance(testProof{a}, a, 5))
	err = s.Write(wb)
	assert.Equal(t, storage.ErrAccountNotFound, errors.Cause(err))
}

func TestLoadCSV(t *testing.T) {
	conf, cleanup := newTestConf(t)
	defer cleanup()

	s := New(conf)
	require.NoError(t, s.Start())
	defer s.Stop()

	csvPath := filepath.Join(filepath.Dir(conf.Fragments[0].DBPath), "accounts.csv")
	content := "account_id,city,balance\n" +
		"1001,Kisumu,5000\n" +
		"3001,Mombasa,1000\n" +
		",Nairobi,250\n"
	require.NoError(t, ioutil.WriteFile(csvPath, []byte(content), 0644))

	ids, err := s.LoadCSV(csvPath)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, uint64(1001), ids[0])
	assert.Equal(t, uint64(3001), ids[1])
	// The row without an explicit id allocates past the highest seen.
	assert.True(t, ids[2] > 3001)

	balance, err := s.ReadBalance(1001)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)
	balance, err = s.ReadBalance(ids[2])
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance)
}

func TestLoadCSVMissingColumn(t *testing.T) {
	conf, cleanup := newTestConf(t)
	defer cleanup()

	s := New(conf)
	require.NoError(t, s.Start())
	defer s.Stop()

	csvPath := filepath.Join(filepath.Dir(conf.Fragments[0].DBPath), "bad.csv")
	require.NoError(t, ioutil.WriteFile(csvPath, []byte("city\nKisumu\n"), 0644))
	_, err := s.LoadCSV(csvPath)
	assert.Error(t, err)
}
