package gloss

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glosskit/core"
)

func TestWatchDictionaryReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dict.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hello": "hello"}`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Dictionary, 4)
	err := WatchDictionary(ctx, path, core.NewNopLogger(), func(d *Dictionary) {
		reloaded <- d
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"hello": "hello", "water": "water"}`), 0o644))

	select {
	case d := <-reloaded:
		assert.Equal(t, 2, d.Len())
	case <-time.After(5 * time.Second):
		t.Fatal("dictionary was not reloaded")
	}
}

func TestWatchDictionaryMissingDirectory(t *testing.T) {
	err := WatchDictionary(context.Background(), filepath.Join(t.TempDir(), "nope", "dict.json"), nil, func(*Dictionary) {})
	assert.Error(t, err)
}
