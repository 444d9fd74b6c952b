package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openvstorage/volumedriver-sub006/engine"
)

func openTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := engine.Open(dir, engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestCreateListDropFamily(t *testing.T) {
	e := openTestEngine(t)

	require.NoError(t, e.CreateFamily("ns1"))
	require.NoError(t, e.CreateFamily("ns2"))

	names, err := e.ListFamilies()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ns1", "ns2"}, names)

	require.NoError(t, e.DropFamily("ns1"))
	names, err = e.ListFamilies()
	require.NoError(t, err)
	require.Equal(t, []string{"ns2"}, names)

	// dropping an absent family is a no-op
	require.NoError(t, e.DropFamily("ns1"))
}

func TestBatchWriteAndMultiGetRoundTrip(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateFamily("ns"))

	require.NoError(t, e.BatchWrite("ns", []engine.Record{
		{Key: []byte("k1"), Value: []byte("v1")},
		{Key: []byte("k2"), Value: []byte("v2")},
	}, true))

	vals, err := e.MultiGet("ns", [][]byte{[]byte("k1"), []byte("missing"), []byte("k2")})
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("v1"), nil, []byte("v2")}, vals)

	require.NoError(t, e.BatchWrite("ns", []engine.Record{
		{Key: []byte("k1"), Tombstone: true},
	}, false))
	vals, err = e.MultiGet("ns", [][]byte{[]byte("k1")})
	require.NoError(t, err)
	require.Nil(t, vals[0])
}

func TestClearFamilyPreservesName(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateFamily("ns"))
	require.NoError(t, e.BatchWrite("ns", []engine.Record{{Key: []byte("k"), Value: []byte("v")}}, true))

	require.NoError(t, e.ClearFamily("ns"))

	vals, err := e.MultiGet("ns", [][]byte{[]byte("k")})
	require.NoError(t, err)
	require.Nil(t, vals[0])

	names, err := e.ListFamilies()
	require.NoError(t, err)
	require.Equal(t, []string{"ns"}, names)
}

func TestBatchWriteMissingFamilyIsStorageError(t *testing.T) {
	e := openTestEngine(t)
	err := e.BatchWrite("nope", []engine.Record{{Key: []byte("k"), Value: []byte("v")}}, false)
	require.Error(t, err)
}
