package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalStorage_PutGetInfo(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	content := []byte("minutes of the board meeting")
	meta := &Metadata{
		ContentType: "text/plain",
		DocumentID:  "doc-1",
		Kind:        KindDocumentFile,
		CreatedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, s.Put(ctx, "documents/doc-1/minutes.txt", content, meta))

	got, err := s.Get(ctx, "documents/doc-1/minutes.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	info, err := s.GetInfo(ctx, "documents/doc-1/minutes.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, ComputeChecksum(content), info.Checksum)
	assert.Equal(t, "text/plain", info.ContentType)
	require.NotNil(t, info.Metadata)
	assert.Equal(t, "doc-1", info.Metadata.DocumentID)

	sum, err := s.GetChecksum(ctx, "documents/doc-1/minutes.txt")
	require.NoError(t, err)
	assert.Equal(t, info.Checksum, sum)
}

func TestLocalStorage_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.Get(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetInfo(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetChecksum(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, "missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, "missing.txt"))
}

func TestLocalStorage_ListSortedAndPrefixed(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	for _, key := range []string{
		"documents/doc-1/b.pdf",
		"documents/doc-1/a.pdf",
		"documents/doc-1/scans/page-1.tif",
		"documents/doc-10/other.pdf",
		"transfers/doc-1.zip",
	} {
		require.NoError(t, s.Put(ctx, key, []byte(key), &Metadata{Kind: KindDocumentFile}))
	}

	keys, err := s.List(ctx, DocumentPrefix("documents", "doc-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"documents/doc-1/a.pdf",
		"documents/doc-1/b.pdf",
		"documents/doc-1/scans/page-1.tif",
	}, keys)

	keys, err = s.List(ctx, "documents/doc-1")
	require.NoError(t, err)
	assert.Len(t, keys, 4, "a bare prefix also matches doc-10")

	keys, err = s.List(ctx, "nothing/here/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalStorage_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.Put(ctx, "transfers/doc-1.zip", []byte("zip"), &Metadata{Kind: KindTransferBag}))
	require.NoError(t, s.Delete(ctx, "transfers/doc-1.zip"))

	ok, err := s.Exists(ctx, "transfers/doc-1.zip")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.List(ctx, "transfers/")
	require.NoError(t, err)
	assert.Empty(t, keys, "sidecar is removed with the object")
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.Put(ctx, "../../outside.txt", []byte("x"), nil))
	ok, err := s.Exists(ctx, "outside.txt")
	require.NoError(t, err)
	assert.True(t, ok, "dot segments are resolved inside the base path")

	err = s.Put(ctx, "", []byte("x"), nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "documents/doc-1/", DocumentPrefix("documents/", "doc-1"))
	assert.Equal(t, "transfers/doc-1.zip", TransferKey("transfers", "doc-1"))
}
