package localstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multisigcheck/internal/utils"
)

func TestSetPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("multisig-threat-profile", "medium"))
	require.NoError(t, s.Set("multisig-completed-items", `["a","b"]`))

	reopened, err := Open(dir)
	require.NoError(t, err)

	v, ok := reopened.Get("multisig-threat-profile")
	assert.True(t, ok)
	assert.Equal(t, "medium", v)
	assert.Equal(t, []string{"multisig-completed-items", "multisig-threat-profile"}, reopened.Keys())
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set("k", "v"))
	require.NoError(t, s.Remove("k"))
	require.NoError(t, s.Remove("missing"))

	reopened, err := Open(dir)
	require.NoError(t, err)
	_, ok := reopened.Get("k")
	assert.False(t, ok)
}

func TestOpenCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o600))

	_, err := Open(dir)
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindMalformed))
}

func TestOpenEmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), nil, 0o600))

	s, err := Open(dir)
	require.NoError(t, err)
	assert.Empty(t, s.Keys())
}

func TestMemoryStoreDoesNotTouchDisk(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Set("k", "v"))
	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Empty(t, s.Path())
}
