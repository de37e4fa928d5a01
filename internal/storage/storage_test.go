package storage

import (
	"context"
	"net/url"
	"os"
	"path"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSPutGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewFS(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "documents/d1/versions/1.pdf", []byte("v1")))
	require.NoError(t, store.Put(ctx, "documents/d1/versions/1.pdf", []byte("v1b")))
	data, err := store.Get(ctx, "documents/d1/versions/1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "v1b", string(data))

	_, err = store.Get(ctx, "documents/d1/versions/2.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "documents/d1/versions/1.pdf"))
	require.NoError(t, store.Delete(ctx, "documents/d1/versions/1.pdf"))
	_, err = store.Get(ctx, "documents/d1/versions/1.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	store, err := NewFS(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "../secret", "a/../../b", "/abs", "a//b", `a\b`} {
		assert.ErrorIs(t, store.Put(context.Background(), key, []byte("x")), ErrInvalidKey, key)
	}
}

func TestSigner(t *testing.T) {
	_, err := NewSigner("")
	require.Error(t, err)

	s, err := NewSigner("secret")
	require.NoError(t, err)
	token := s.DocumentToken("doc-1", "user-1")
	assert.Len(t, token, 64)
	assert.Equal(t, token, s.Sign("doc-1", "user-1"))
	assert.True(t, s.Verify(token, "doc-1", "user-1"))
	assert.False(t, s.Verify(token, "doc-1", "user-2"))
	assert.False(t, s.Verify("zz", "doc-1", "user-1"))

	other, err := NewSigner("other")
	require.NoError(t, err)
	assert.NotEqual(t, token, other.DocumentToken("doc-1", "user-1"))
}

func parseLink(t *testing.T, link string) (string, int64, string) {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	require.NoError(t, err)
	return path.Base(u.Path), expires, u.Query().Get("sig")
}

func TestTempStorePublishOpen(t *testing.T) {
	signer, err := NewSigner("secret")
	require.NoError(t, err)
	store, err := NewTempStore(t.TempDir(), "http://localhost:8080", signer, zerolog.Nop())
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	link, err := store.Publish(context.Background(), "doc.pdf", []byte("%PDF"), 5*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, link, "http://localhost:8080/files/tmp/")
	key, expires, sig := parseLink(t, link)
	assert.Equal(t, now.Add(5*time.Minute).Unix(), expires)
	assert.Equal(t, ".pdf", path.Ext(key))

	data, err := store.Open(key, expires, sig)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	_, err = store.Open(key, expires+60, sig)
	assert.ErrorIs(t, err, ErrBadSignature)

	now = now.Add(6 * time.Minute)
	_, err = store.Open(key, expires, sig)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestTempStoreSweep(t *testing.T) {
	signer, err := NewSigner("secret")
	require.NoError(t, err)
	dir := t.TempDir()
	store, err := NewTempStore(dir, "", signer, zerolog.Nop())
	require.NoError(t, err)
	now := time.Now()
	store.now = func() time.Time { return now }

	_, err = store.Publish(context.Background(), "short.pdf", []byte("a"), time.Minute)
	require.NoError(t, err)
	_, err = store.Publish(context.Background(), "long.pdf", []byte("b"), time.Hour)
	require.NoError(t, err)

	n, err := store.Sweep()
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(2 * time.Minute)
	n, err = store.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
