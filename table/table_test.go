package table_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openvstorage/volumedriver-sub006/engine"
	"github.com/openvstorage/volumedriver-sub006/table"
)

func newRaw(t *testing.T, ns string) (*table.Raw, *engine.Engine) {
	t.Helper()
	eng, err := engine.Open(t.TempDir(), engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, eng.CreateFamily(ns))
	return table.New(ns, eng), eng
}

func TestRawTableRoundTrip(t *testing.T) {
	rt, _ := newRaw(t, "ns")
	require.NoError(t, rt.MultiSet([]engine.Record{{Key: []byte("k"), Value: []byte("v")}}, true, 1))
	vals, err := rt.MultiGet([][]byte{[]byte("k")})
	require.NoError(t, err)
	require.Equal(t, []byte("v"), vals[0])
}

func TestRawTableClearThenMultiGetIsEmpty(t *testing.T) {
	rt, _ := newRaw(t, "ns")
	require.NoError(t, rt.MultiSet([]engine.Record{{Key: []byte("k"), Value: []byte("v")}}, true, 1))
	require.NoError(t, rt.Clear(1))
	vals, err := rt.MultiGet([][]byte{[]byte("k")})
	require.NoError(t, err)
	require.Nil(t, vals[0])
}

func TestRawTableDrop(t *testing.T) {
	rt, eng := newRaw(t, "ns")
	require.NoError(t, rt.Drop())
	names, err := eng.ListFamilies()
	require.NoError(t, err)
	require.NotContains(t, names, "ns")
}
