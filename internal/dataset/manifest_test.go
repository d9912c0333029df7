package dataset

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeTempFile(t, "orders.csv", "region,amount\nnorth,120.5\n")

	reg := NewRegistry(zap.NewNop())
	d, err := LoadCSV(src, "orders", DefaultLoadOptions())
	require.NoError(t, err)
	d.Description = "weekly order export"
	reg.Put(d)

	require.NoError(t, SaveManifest(reg, dir))

	restored, err := LoadManifest(dir, zap.NewNop())
	require.NoError(t, err)
	got, ok := restored.Get("orders")
	require.True(t, ok)
	assert.Equal(t, "weekly order export", got.Description)
	assert.Equal(t, []string{"region", "amount"}, got.Header)
	require.Len(t, got.Rows, 1)
}

func TestLoadManifestSkipsMissingSource(t *testing.T) {
	dir := t.TempDir()
	src := writeTempFile(t, "gone.csv", "a\n1\n")
	keep := writeTempFile(t, "keep.csv", "b\n2\n")

	reg := NewRegistry(zap.NewNop())
	for name, path := range map[string]string{"gone": src, "keep": keep} {
		d, err := LoadCSV(path, name, DefaultLoadOptions())
		require.NoError(t, err)
		reg.Put(d)
	}
	require.NoError(t, SaveManifest(reg, dir))
	require.NoError(t, os.Remove(src))

	restored, err := LoadManifest(dir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, restored.List())
}

func TestLoadManifestNoFile(t *testing.T) {
	restored, err := LoadManifest(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, restored.List())
}
