package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPutGetRemoveList(t *testing.T) {
	r := NewRegistry(nil)
	r.Put(sampleDataset())
	r.Put(New("zoo", []string{"animal"}, [][]string{{"otter"}}))

	assert.Equal(t, []string{"orders", "zoo"}, r.List())

	d, ok := r.Get("orders")
	require.True(t, ok)
	assert.Equal(t, 4, d.RowCount())

	assert.True(t, r.Remove("zoo"))
	assert.False(t, r.Remove("zoo"))
	assert.Equal(t, []string{"orders"}, r.List())
}

func TestSnapshotIsolatesExecutions(t *testing.T) {
	r := NewRegistry(nil)
	r.Put(sampleDataset())

	snap, err := r.Snapshot([]string{"orders"})
	require.NoError(t, err)
	snap["orders"].Rows[0][0] = "tampered"

	canonical, _ := r.Get("orders")
	assert.Equal(t, "1", canonical.Rows[0][0])
}

func TestSnapshotExposesOnlyNamedDatasets(t *testing.T) {
	r := NewRegistry(nil)
	r.Put(sampleDataset())
	r.Put(New("secrets", []string{"token"}, [][]string{{"abc"}}))

	snap, err := r.Snapshot([]string{"orders"})
	require.NoError(t, err)
	assert.Len(t, snap, 1)
	assert.NotContains(t, snap, "secrets")
}

func TestSnapshotUnknownName(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Snapshot([]string{"nope"})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.Name)

	_, err = r.Schemas([]string{"nope"})
	assert.ErrorAs(t, err, &nf)
}

func TestSetDescriptionRefreshesSchema(t *testing.T) {
	r := NewRegistry(nil)
	r.Put(sampleDataset())

	schemas, err := r.Schemas([]string{"orders"})
	require.NoError(t, err)
	assert.Empty(t, schemas[0].Description)

	require.NoError(t, r.SetDescription("orders", "order-level sales with regions"))
	schemas, err = r.Schemas([]string{"orders"})
	require.NoError(t, err)
	assert.Equal(t, "order-level sales with regions", schemas[0].Description)

	assert.Error(t, r.SetDescription("nope", "x"))
}
