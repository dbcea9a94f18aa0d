package storage_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"query-streamer/internal/storage"
)

func TestLocalProvider_CommitThenOpen(t *testing.T) {
	dir := t.TempDir()
	p, err := storage.NewLocalProvider(dir)
	require.NoError(t, err)

	w, err := p.Create(context.Background(), "exports/a.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(`[{"id":1}`))
	require.NoError(t, err)
	_, err = w.Write([]byte(`]`))
	require.NoError(t, err)

	_, err = p.Open(context.Background(), "exports/a.json")
	assert.ErrorIs(t, err, storage.ErrNotFound, "object must not be visible before commit")

	require.NoError(t, w.Commit())

	r, err := p.Open(context.Background(), "exports/a.json")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, string(data))

	assert.True(t, strings.HasPrefix(p.URL("exports/a.json"), "file://"))
}

func TestLocalProvider_AbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	p, err := storage.NewLocalProvider(dir)
	require.NoError(t, err)

	w, err := p.Create(context.Background(), "exports/b.csv")
	require.NoError(t, err)
	w.Write([]byte("id\n1\n"))
	w.Abort(errors.New("stream failed"))

	entries, err := os.ReadDir(filepath.Join(dir, "exports"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalProvider_RejectsEscapingKeys(t *testing.T) {
	p, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)

	_, err = p.Create(context.Background(), "../outside.json")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
	_, err = p.Open(context.Background(), "/etc/passwd")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
}
