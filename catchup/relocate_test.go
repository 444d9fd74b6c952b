package catchup_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openvstorage/volumedriver-sub006/catchup"
)

func TestRunPopulatesNSIDMapFromTLogMetadata(t *testing.T) {
	store := newStore(t, "ns")
	backend := catchup.NewMemBackend()
	backend.CreateNamespace("ns")
	backend.AppendTLogWithNSID("ns", []catchup.Record{rec("a", "1")}, map[uint32]string{1: "parent-ns"})

	res, err := catchup.Run(context.Background(), store, backend, "ns", catchup.ModeIncremental, false)
	require.NoError(t, err)
	require.Equal(t, "parent-ns", res.NSIDMap[1])
}

func TestApplyRelocationLogsUsesCachedNSIDMap(t *testing.T) {
	store := newStore(t, "ns")
	backend := catchup.NewMemBackend()
	backend.CreateNamespace("parent-ns")
	backend.AppendTLog("parent-ns", []catchup.Record{rec("reloc-a", "9")})

	nsidMap := map[uint32]string{1: "parent-ns"}
	err := catchup.ApplyRelocationLogs(context.Background(), store, backend, "ns", nsidMap, 1, []string{"tlog-0"})
	require.NoError(t, err)

	vals, err := store.Raw.MultiGet([][]byte{[]byte("reloc-a")})
	require.NoError(t, err)
	require.Equal(t, []byte("9"), vals[0])
}

func TestApplyRelocationLogsErrorsOnUnknownCloneID(t *testing.T) {
	store := newStore(t, "ns")
	backend := catchup.NewMemBackend()

	err := catchup.ApplyRelocationLogs(context.Background(), store, backend, "ns", map[uint32]string{}, 7, []string{"tlog-0"})
	require.Error(t, err)
}
