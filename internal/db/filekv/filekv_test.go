package filekv

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/intervue/internal/roster"
)

var _ roster.Backend = (*Store)(nil)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	return s
}

func TestReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	got, err := s.Read(ctx, "intervue:roster")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Write(ctx, "intervue:roster", []byte(`{"version":2}`)))
	got, err = s.Read(ctx, "intervue:roster")
	require.NoError(t, err)
	assert.Equal(t, `{"version":2}`, string(got))

	info, err := os.Stat(s.PathFor("intervue:roster"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, s.Delete(ctx, "intervue:roster"))
	require.NoError(t, s.Delete(ctx, "intervue:roster"))
	got, err = s.Read(ctx, "intervue:roster")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "intervue:roster", want: "intervue_roster.json"},
		{key: "plain", want: "plain.json"},
		{key: "../escape", want: "_escape.json"},
		{key: "", want: "_.json"},
		{key: "a/b\\c", want: "a_b_c.json"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, fileName(tt.key))
		})
	}
}

func TestPathStaysInDir(t *testing.T) {
	s := newStore(t)
	assert.Equal(t, s.Dir(), filepath.Dir(s.PathFor("../../etc/passwd")))
}

func TestNoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Write(ctx, "k", []byte{byte('a' + i)}))
		}(i)
	}
	wg.Wait()

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "k.json", entries[0].Name())

	got, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newStore(t)

	assert.ErrorIs(t, s.Write(ctx, "k", []byte("x")), context.Canceled)
	_, err := s.Read(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Delete(ctx, "k"), context.Canceled)
}
