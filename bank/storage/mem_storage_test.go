package storage

import (
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap-incubator/tinybank/bank/config"
)

// testProof stands in for a lock guard in storage tests.
type testProof struct {
	accountID uint64
}

func (p testProof) HoldsExclusive(accountID uint64) bool {
	return p.accountID == accountID
}

func TestMemStorageAccountLifecycle(t *testing.T) {
	s := NewMemStorage(config.NewTestConfig())

	id, err := s.CreateAccount("Kisumu", 1000)
	require.NoError(t, err)
	frag, err := s.ResolveFragment(id)
	require.NoError(t, err)
	assert.Equal(t, "north", frag)

	balance, err := s.ReadBalance(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, 1, s.Len("north"))

	require.NoError(t, s.DeleteAccount(id))
	_, err = s.ReadBalance(id)
	assert.Equal(t, ErrAccountNotFound, errors.Cause(err))
	_, err = s.ResolveFragment(id)
	assert.Equal(t, ErrAccountNotFound, errors.Cause(err))
}

func TestMemStorageIdsNeverReused(t *testing.T) {
	s := NewMemStorage(config.NewTestConfig())

	first, err := s.CreateAccount("Nairobi", 100)
	require.NoError(t, err)
	require.NoError(t, s.DeleteAccount(first))

	second, err := s.CreateAccount("Nairobi", 100)
	require.NoError(t, err)
	assert.True(t, second > first)
}

func TestMemStorageUnknownCity(t *testing.T) {
	s := NewMemStorage(config.NewTestConfig())
	_, err := s.CreateAccount("Atlantis", 100)
	assert.Equal(t, ErrUnknownCity, errors.Cause(err))
}

func TestMemStorageWriteBatch(t *testing.T) {
	s := NewMemStorage(config.NewTestConfig())
	a, err := s.CreateAccount("Kisumu", 1000)
	require.NoError(t, err)
	b, err := s.CreateAccount("Mombasa", 0)
	require.NoError(t, err)

	wb := NewWriteBatch()
	require.NoError(t, wb.SetBalance(testProof{a}, a, 500))
	require.NoError(t, wb.SetBalance(testProof{b}, b, 500))
	require.NoError(t, s.Write(wb))

	balance, err := s.ReadBalance(a)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
	balance, err = s.ReadBalance(b)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
}

func TestMemStorageWriteUnknownAccount(t *testing.T) {
	s := NewMemStorage(config.NewTestConfig())
	a, err := s.CreateAccount("Kisumu", 1000)
	require.NoError(t, err)

	wb := NewWriteBatch()
	require.NoError(t, wb.SetBalance(testProof{a}, a, 500))
	require.NoError(t, wb.SetBalance(testProof{9999}, 9999, 1))
	err = s.Write(wb)
	assert.Equal(t, ErrAccountNotFound, errors.Cause(err))

	// Nothing from the failed batch was applied.
	balance, err := s.ReadBalance(a)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}
