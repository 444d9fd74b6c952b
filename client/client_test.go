package client_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openvstorage/volumedriver-sub006/catchup"
	"github.com/openvstorage/volumedriver-sub006/client"
	"github.com/openvstorage/volumedriver-sub006/transport"
	"github.com/openvstorage/volumedriver-sub006/wire"
)

type memHandler struct{ data map[string][]byte }

func (h *memHandler) Drop(string) error          { return nil }
func (h *memHandler) Clear(string, uint64) error { delete(h.data, ""); return nil }
func (h *memHandler) List() []string             { return []string{"ns"} }
func (h *memHandler) MultiGet(_ string, keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = h.data[string(k)]
	}
	return out, nil
}
func (h *memHandler) MultiSet(_ string, records []wire.Record, _ bool, _ uint64) error {
	for _, r := range records {
		h.data[string(r.Key)] = r.Value
	}
	return nil
}
func (h *memHandler) SetRole(context.Context, string, wire.Role, uint64) error { return nil }
func (h *memHandler) GetRole(string) (wire.Role, error)                       { return wire.RoleSlave, nil }
func (h *memHandler) Open(string) error                                      { return nil }
func (h *memHandler) ApplyRelocationLogs(context.Context, string, uuid.UUID, uint32, []string) error {
	return nil
}
func (h *memHandler) CatchUp(context.Context, string, bool) (*catchup.Result, error) {
	return &catchup.Result{NumTLogs: 3}, nil
}
func (h *memHandler) GetTableCounters(string, bool) (wire.Counters, error) {
	return wire.Counters{TotalTLogsRead: 5}, nil
}
func (h *memHandler) GetOwnerTag(string) (uint64, error) { return 99, nil }

func startTestServer(t *testing.T) (host string, port uint16, stop func()) {
	t.Helper()
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := uint16(probe.Addr().(*net.TCPAddr).Port)
	require.NoError(t, probe.Close())

	srv, err := transport.Listen(transport.Config{Host: "127.0.0.1", Port: p, Threads: 2, RegionSize: 4096},
		&memHandler{data: map[string][]byte{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = srv.Serve(ctx); close(done) }()
	return "127.0.0.1", p, func() { cancel(); <-done }
}

func TestClientPingAndMultiSetGet(t *testing.T) {
	host, port, stop := startTestServer(t)
	defer stop()

	c := client.New(client.Config{Host: host, Port: port, Timeout: 2 * time.Second, ForceRemote: true})
	defer c.Close()

	echoed, err := c.Ping([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), echoed)

	require.NoError(t, c.MultiSet("ns", []wire.Record{{Key: []byte("a"), Value: []byte("1")}}, false, 0))
	vals, err := c.MultiGet("ns", [][]byte{[]byte("a")})
	require.NoError(t, err)
	require.Equal(t, []byte("1"), vals[0])
}

func TestClientCatchUpAndCounters(t *testing.T) {
	host, port, stop := startTestServer(t)
	defer stop()

	c := client.New(client.Config{Host: host, Port: port, Timeout: 2 * time.Second, ForceRemote: true})
	defer c.Close()

	n, err := c.CatchUp("ns", false)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	counters, err := c.GetTableCounters("ns", false)
	require.NoError(t, err)
	require.EqualValues(t, 5, counters.TotalTLogsRead)

	tag, err := c.GetOwnerTag("ns")
	require.NoError(t, err)
	require.EqualValues(t, 99, tag)
}

func TestClientGetRole(t *testing.T) {
	host, port, stop := startTestServer(t)
	defer stop()

	c := client.New(client.Config{Host: host, Port: port, Timeout: 2 * time.Second, ForceRemote: true})
	defer c.Close()

	role, err := c.GetRole("ns")
	require.NoError(t, err)
	require.Equal(t, wire.RoleSlave, role)
}
