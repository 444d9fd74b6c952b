package catchup

import (
	"context"
	"fmt"

	"github.com/openvstorage/volumedriver-sub006/cmn"
)

// ApplyRelocationLogs resolves cloneID to a backend handle via the cached
// NSIDMap and replays the named relocation logs against store, in order
// (spec §3 "NSID map... used when applying relocation logs for a clone").
// nsidMap is the caller's accumulated cache, not a live backend lookup --
// the map is built once from TLog metadata as ordinary catch-up runs, and
// consulted here. It does not catch up first; callers that need the store
// current before relocating should run CatchUp themselves.
func ApplyRelocationLogs(ctx context.Context, store *Store, backend BackendInterface, namespace string, nsidMap map[uint32]string, cloneID uint32, logs []string) error {
	handle, ok := nsidMap[cloneID]
	if !ok {
		return cmn.Generic("resolving nsid handle for relocation logs", fmt.Errorf("no nsid map entry for clone %d in namespace %q", cloneID, namespace))
	}
	for _, name := range logs {
		tlog, err := backend.FetchTLog(ctx, TLogRef{Name: handle + "/" + name})
		if err != nil {
			return cmn.Generic("fetching relocation log "+name, err)
		}
		if err := store.ApplyRecordsOnly(tlog.Records); err != nil {
			return cmn.Storage("applying relocation log "+name, err)
		}
	}
	return nil
}
