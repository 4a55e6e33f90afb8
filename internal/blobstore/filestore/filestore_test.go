package filestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenReadRoundTrips(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), "k1", []byte("hello")))
	data, ok, err := s.Read(context.Background(), "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", string(data))
}

func TestReadMissingKeyIsNotFoundNotError(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	data, ok, err := s.Read(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, data)
}

func TestKeysContainingPathSeparatorsDoNotEscapeRoot(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), "../../etc/passwd", []byte("x")))
	data, ok, err := s.Read(context.Background(), "../../etc/passwd")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", string(data))
}

func TestDeleteRemovesKey(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), "k1", []byte("hello")))
	require.NoError(t, s.Delete(context.Background(), "k1"))

	_, ok, err := s.Read(context.Background(), "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteMissingKeyIsNotAnError(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), "never-written"))
}

func TestListReturnsKeysWithPrefixAndSkipsTempFiles(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), "plan:abc", []byte("1")))
	require.NoError(t, s.Write(context.Background(), "plan:def", []byte("2")))
	require.NoError(t, s.Write(context.Background(), "other:xyz", []byte("3")))

	keys, err := s.List(context.Background(), "plan:")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"plan:abc", "plan:def"}, keys)
}
