package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/masterbase/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenReader struct{ sent bool }

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.sent {
		return 0, errors.New("connection reset")
	}
	b.sent = true
	return copy(p, "HL2DEMO"), nil
}

func spoolFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestStage_ReadsBackAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	store := NewLargeObjectStore(nil, dir)
	demo := bytes.Repeat([]byte("HL2DEMO"), chunkSize/4)

	spool, err := store.Stage(context.Background(), bytes.NewReader(demo))
	require.NoError(t, err)
	assert.Equal(t, int64(len(demo)), spool.Size())
	assert.Equal(t, 1, spoolFiles(t, dir))

	got, err := io.ReadAll(spool)
	require.NoError(t, err)
	assert.Equal(t, demo, got)

	require.NoError(t, spool.Close())
	assert.Zero(t, spoolFiles(t, dir))
}

func TestStage_ReaderErrorLeavesNothing(t *testing.T) {
	dir := t.TempDir()

	_, err := stage(context.Background(), dir, &brokenReader{})
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeBlobWriteFailed))
	assert.Zero(t, spoolFiles(t, dir))
}

func TestStage_Cancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stage(ctx, dir, bytes.NewReader([]byte("HL2DEMO")))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, spoolFiles(t, dir))
}
