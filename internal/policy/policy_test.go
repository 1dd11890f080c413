package policy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "policy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBlockExactSerial(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Block("1366", "0105", "000123456789", "lab board"))

	blocked, reason, err := s.IsBlocked("1366", "0105", "000123456789")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, "lab board", reason)

	blocked, _, _ = s.IsBlocked("1366", "0105", "000000000001")
	assert.False(t, blocked)
}

func TestBlockAnySerial(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Block("0483", "5740", "", "all st-link vcp"))
	require.NoError(t, s.Block("0483", "5740", "ABC", "this one"))

	blocked, reason, err := s.IsBlocked("0483", "5740", "whatever")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, "all st-link vcp", reason)

	// 精确规则优先
	_, reason, _ = s.IsBlocked("0483", "5740", "ABC")
	assert.Equal(t, "this one", reason)
}

func TestUnblockAndList(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Block("1366", "0105", "1", "a"))
	require.NoError(t, s.Block("1366", "0105", "2", "b"))

	rules, err := s.List()
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "1", rules[0].Serial)
	assert.False(t, rules[0].CreatedAt.IsZero())

	removed, err := s.Unblock("1366", "0105", "1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Unblock("1366", "0105", "1")
	require.NoError(t, err)
	assert.False(t, removed)

	blocked, _, _ := s.IsBlocked("1366", "0105", "1")
	assert.False(t, blocked)
}

func TestIsBlockedNoMatch(t *testing.T) {
	s := openStore(t)
	blocked, reason, err := s.IsBlocked("1366", "0105", "1")
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Empty(t, reason)
}

func TestIsBlockedClosedDB(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "policy.db"))
	require.NoError(t, err)
	require.NoError(t, s.Block("1366", "0105", "1", "x"))
	require.NoError(t, s.Close())

	blocked, _, err := s.IsBlocked("1366", "0105", "1")
	assert.Error(t, err)
	assert.False(t, blocked)
}

func TestBlockRequiresIDs(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.Block("", "0105", "1", ""))
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Block("1366", "0105", "1", "x"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	blocked, _, _ := s.IsBlocked("1366", "0105", "1")
	assert.True(t, blocked)
}
