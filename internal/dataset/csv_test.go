package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeTempFile(t, "orders.csv", "region,amount\nnorth,120.5\nsouth,80\n")

	d, err := LoadCSV(path, "orders", DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, "orders", d.Name)
	assert.Equal(t, path, d.Source)
	assert.Equal(t, []string{"region", "amount"}, d.Header)
	require.Len(t, d.Rows, 2)
	assert.Equal(t, []string{"south", "80"}, d.Rows[1])
}

func TestLoadTSVInfersDelimiter(t *testing.T) {
	path := writeTempFile(t, "orders.tsv", "region\tamount\nnorth\t120.5\n")

	d, err := Load(path, "", DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, "orders", d.Name)
	assert.Equal(t, []string{"region", "amount"}, d.Header)
	assert.Equal(t, []string{"north", "120.5"}, d.Rows[0])
}

func TestLoadCSVRaggedRowsPadded(t *testing.T) {
	path := writeTempFile(t, "ragged.csv", "a,b,c\n1,2\n1,2,3,4\n")

	d, err := LoadCSV(path, "ragged", DefaultLoadOptions())
	require.NoError(t, err)
	require.Len(t, d.Rows, 2)
	assert.Equal(t, []string{"1", "2", ""}, d.Rows[0])
	assert.Equal(t, []string{"1", "2", "3"}, d.Rows[1])
}

func TestLoadCSVMaxRows(t *testing.T) {
	path := writeTempFile(t, "big.csv", "a\n1\n2\n3\n")

	opt := DefaultLoadOptions()
	opt.MaxRows = 2
	d, err := LoadCSV(path, "big", opt)
	require.NoError(t, err)
	assert.Len(t, d.Rows, 2)
}

func TestLoadCSVEmptyFile(t *testing.T) {
	path := writeTempFile(t, "empty.csv", "")

	_, err := LoadCSV(path, "empty", DefaultLoadOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty csv")
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "data.parquet", "binary")

	_, err := Load(path, "", DefaultLoadOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dataset format")
}
