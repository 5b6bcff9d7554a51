package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/hybrid-compute/core/testutil"
	"github.com/AvaProtocol/hybrid-compute/pkg/feeledger"
	"github.com/AvaProtocol/hybrid-compute/storage"
)

func TestBackupAndRestore(t *testing.T) {
	src := testutil.TestMustDB()
	defer storage.Destroy(src.(*storage.BadgerStorage))

	ledger := feeledger.New(src, nil)
	require.NoError(t, ledger.Open())

	dir := t.TempDir()
	file, err := Backup(context.Background(), src, dir, testutil.GetLogger())
	require.NoError(t, err)
	assert.Equal(t, backupFileName, filepath.Base(file))

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	dst, err := storage.NewWithPath(t.TempDir())
	require.NoError(t, err)
	defer dst.Close()

	require.NoError(t, Restore(context.Background(), dst, file, nil))

	sessions, err := feeledger.Sessions(dst)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, ledger.SessionID(), sessions[0].ID)
}

func TestRestoreMissingFile(t *testing.T) {
	db, err := storage.New(&storage.Config{InMemory: true})
	require.NoError(t, err)
	defer db.Close()

	err = Restore(context.Background(), db, filepath.Join(t.TempDir(), "nope"), nil)
	assert.ErrorContains(t, err, "failed to open backup file")
}
