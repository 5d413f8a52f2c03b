package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	name, err := store.Save("attendance/march.csv", []byte("date,session\n"))
	require.NoError(t, err)
	assert.Equal(t, "attendance/march.csv", name)
	_, err = os.Stat(store.Path(name) + partialSuffix)
	assert.True(t, os.IsNotExist(err))

	f, err := store.Open(name)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "date,session\n", string(data))

	require.NoError(t, store.Delete(name))
	require.NoError(t, store.Delete(name))
	_, err = os.Stat(filepath.Join(dir, "attendance", "march.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorageKeepsPathsInsideBase(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(store.Path("../../etc/passwd"), store.baseDir))
	assert.True(t, strings.HasPrefix(store.Path("/etc/passwd"), store.baseDir))
}

func TestLocalStorageCleanup(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("programs/old.xlsx", []byte("x"))
	require.NoError(t, err)
	_, err = store.Save("programs/new.xlsx", []byte("y"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path("stale.pdf")+partialSuffix, []byte("z"), 0o644))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path("programs/old.xlsx"), old, old))
	require.NoError(t, os.Chtimes(store.Path("stale.pdf")+partialSuffix, old, old))

	deleted, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"programs/old.xlsx"}, deleted)
	_, err = os.Stat(store.Path("stale.pdf") + partialSuffix)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(store.Path("programs/new.xlsx"))
	assert.NoError(t, err)
}
