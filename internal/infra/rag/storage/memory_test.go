package storage

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutThenGetRoundTrips(t *testing.T) {
	s := NewMemory()
	obj, err := s.Put(context.Background(), "docs/a.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", obj.Key)
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, "text/plain", obj.MimeType)
	assert.NotEmpty(t, obj.ETag)

	rc, err := s.Get(context.Background(), "docs/a.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestMemory_GetUnknownKeyReturnsError(t *testing.T) {
	s := NewMemory()
	_, err := s.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMemory_DeleteRemovesBlob(t *testing.T) {
	s := NewMemory()
	_, err := s.Put(context.Background(), "k", []byte("v"), "text/plain")
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), "k"))
	_, err = s.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemory_PutOverwritesExistingKeyAndChangesETag(t *testing.T) {
	s := NewMemory()
	first, err := s.Put(context.Background(), "k", []byte("v1"), "text/plain")
	require.NoError(t, err)
	second, err := s.Put(context.Background(), "k", []byte("v2"), "text/plain")
	require.NoError(t, err)

	assert.NotEqual(t, first.ETag, second.ETag)
	rc, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "v2", string(data))
}
