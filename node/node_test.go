package node_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openvstorage/volumedriver-sub006/catchup"
	"github.com/openvstorage/volumedriver-sub006/node"
)

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())
	return p
}

func newCfg(t *testing.T, port uint16) node.ServerConfig {
	t.Helper()
	dir := t.TempDir()
	return node.ServerConfig{
		NodeAddress: "127.0.0.1",
		Port:        port,
		DBPath:      filepath.Join(dir, "db"),
		ScratchPath: filepath.Join(dir, "scratch"),
		PollSecs:    300,
		Threads:     1,
		TimeoutSecs: 5,
		RegionSize:  4096,
	}
}

func TestUpdateStartsAndStopsNodes(t *testing.T) {
	mgr := node.NewManager(catchup.NewMemBackend())
	ctx := context.Background()

	c1 := newCfg(t, freePort(t))
	require.NoError(t, mgr.Update(ctx, []node.ServerConfig{c1}))

	names, err := mgr.Find(c1.NodeAddress, c1.Port).ListNamespaces()
	require.NoError(t, err)
	require.Empty(t, names)

	// Removing the node from the wanted set stops it; its handle then
	// reports NodeGone.
	require.NoError(t, mgr.Update(ctx, nil))
	_, err = mgr.Find(c1.NodeAddress, c1.Port).ListNamespaces()
	require.ErrorIs(t, err, node.ErrNodeGone)
}

func TestUpdateRejectsDuplicateAddress(t *testing.T) {
	mgr := node.NewManager(catchup.NewMemBackend())
	port := freePort(t)
	c1 := newCfg(t, port)
	c2 := newCfg(t, port)
	c2.DBPath = c1.DBPath // same addr, different nothing -- still a dup addr

	err := mgr.Update(context.Background(), []node.ServerConfig{c1, c2})
	require.Error(t, err)
}

func TestUpdateRejectsDBPathChangeWhileRunning(t *testing.T) {
	mgr := node.NewManager(catchup.NewMemBackend())
	ctx := context.Background()
	port := freePort(t)
	c1 := newCfg(t, port)
	require.NoError(t, mgr.Update(ctx, []node.ServerConfig{c1}))

	c1Changed := c1
	c1Changed.DBPath = filepath.Join(t.TempDir(), "other")
	err := mgr.Update(ctx, []node.ServerConfig{c1Changed})
	require.Error(t, err)

	mgr.Shutdown()
}

func TestUpdateLeavesUnchangedNodeRunning(t *testing.T) {
	mgr := node.NewManager(catchup.NewMemBackend())
	ctx := context.Background()
	c1 := newCfg(t, freePort(t))
	require.NoError(t, mgr.Update(ctx, []node.ServerConfig{c1}))

	require.NoError(t, mgr.Find(c1.NodeAddress, c1.Port).OpenNamespace("ns"))

	// Re-applying the identical config must not restart (and thus not
	// forget) the node.
	require.NoError(t, mgr.Update(ctx, []node.ServerConfig{c1}))
	names, err := mgr.Find(c1.NodeAddress, c1.Port).ListNamespaces()
	require.NoError(t, err)
	require.Contains(t, names, "ns")

	mgr.Shutdown()
}

func TestStatusReportsRunningNodes(t *testing.T) {
	mgr := node.NewManager(catchup.NewMemBackend())
	ctx := context.Background()
	c1 := newCfg(t, freePort(t))
	require.NoError(t, mgr.Update(ctx, []node.ServerConfig{c1}))
	require.NoError(t, mgr.Find(c1.NodeAddress, c1.Port).OpenNamespace("ns"))

	out, err := mgr.Status()
	require.NoError(t, err)
	require.Contains(t, string(out), "\"namespace_count\":1")
	require.Contains(t, string(out), "\"ns\":{")

	mgr.Shutdown()
}

func TestShutdownStopsAllNodes(t *testing.T) {
	mgr := node.NewManager(catchup.NewMemBackend())
	ctx := context.Background()
	c1 := newCfg(t, freePort(t))
	require.NoError(t, mgr.Update(ctx, []node.ServerConfig{c1}))

	mgr.Shutdown()
	_, err := mgr.Find(c1.NodeAddress, c1.Port).ListNamespaces()
	require.ErrorIs(t, err, node.ErrNodeGone)

	time.Sleep(10 * time.Millisecond)
	_, err = os.Stat(c1.DBPath)
	require.NoError(t, err) // data directory survives the stop
}
