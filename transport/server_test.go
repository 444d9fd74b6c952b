package transport_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openvstorage/volumedriver-sub006/catchup"
	"github.com/openvstorage/volumedriver-sub006/transport"
	"github.com/openvstorage/volumedriver-sub006/wire"
)

// fakeHandler is a minimal in-memory transport.Handler, used to drive the
// server without a real Database.
type fakeHandler struct{ data map[string][]byte }

func newFakeHandler() *fakeHandler { return &fakeHandler{data: map[string][]byte{}} }

func (h *fakeHandler) Drop(string) error          { return nil }
func (h *fakeHandler) Clear(string, uint64) error { return nil }
func (h *fakeHandler) List() []string             { return []string{"ns"} }
func (h *fakeHandler) MultiGet(_ string, keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = h.data[string(k)]
	}
	return out, nil
}
func (h *fakeHandler) MultiSet(_ string, records []wire.Record, _ bool, _ uint64) error {
	for _, r := range records {
		h.data[string(r.Key)] = r.Value
	}
	return nil
}
func (h *fakeHandler) SetRole(context.Context, string, wire.Role, uint64) error { return nil }
func (h *fakeHandler) GetRole(string) (wire.Role, error)                       { return wire.RoleMaster, nil }
func (h *fakeHandler) Open(string) error                                      { return nil }
func (h *fakeHandler) ApplyRelocationLogs(context.Context, string, uuid.UUID, uint32, []string) error {
	return nil
}
func (h *fakeHandler) CatchUp(context.Context, string, bool) (*catchup.Result, error) {
	return &catchup.Result{}, nil
}
func (h *fakeHandler) GetTableCounters(string, bool) (wire.Counters, error) {
	return wire.Counters{}, nil
}
func (h *fakeHandler) GetOwnerTag(string) (uint64, error) { return 7, nil }

func startServer(t *testing.T, h transport.Handler) (addr string, stop func()) {
	t.Helper()
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(probe.Addr().(*net.TCPAddr).Port)
	require.NoError(t, probe.Close())

	srv, err := transport.Listen(transport.Config{Host: "127.0.0.1", Port: port, Threads: 2, RegionSize: 4096}, h)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx)
		close(done)
	}()
	return "127.0.0.1:" + strconv.Itoa(int(port)), func() {
		cancel()
		<-done
	}
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, reqType uint32, body []byte) ([]byte, *wire.RespHeader) {
	t.Helper()
	hdr := &wire.Header{Magic: wire.Magic, Type: reqType, BodySize: uint64(len(body)), Tag: 1}
	_, err := conn.Write(hdr.Marshal())
	require.NoError(t, err)
	if len(body) > 0 {
		_, err = conn.Write(body)
		require.NoError(t, err)
	}
	resp, err := wire.ReadRespHeader(conn)
	require.NoError(t, err)

	if resp.BodySize == 0 {
		return nil, resp
	}
	respBody := make([]byte, resp.BodySize)
	_, err = readFull(conn, respBody)
	require.NoError(t, err)
	return respBody, resp
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}

func TestServerPingAndMultiSetGet(t *testing.T) {
	addr, stop := startServer(t, newFakeHandler())
	defer stop()
	conn := dial(t, addr)
	defer conn.Close()

	body, resp := roundTrip(t, conn, wire.ReqPing, wire.PingParams{Data: []byte("hi")}.Encode())
	require.Equal(t, wire.RespOk, resp.Type)
	res, err := wire.DecodePingResult(body)
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), res.Data)

	_, resp = roundTrip(t, conn, wire.ReqMultiSet, wire.MultiSetParams{
		Namespace: "ns",
		Records:   []wire.Record{{Key: []byte("k"), Value: []byte("v")}},
	}.Encode())
	require.Equal(t, wire.RespOk, resp.Type)

	body, resp = roundTrip(t, conn, wire.ReqMultiGet, wire.MultiGetParams{
		Namespace: "ns",
		Keys:      [][]byte{[]byte("k")},
	}.Encode())
	require.Equal(t, wire.RespOk, resp.Type)
	getRes, err := wire.DecodeMultiGetResult(body)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), getRes.Values[0])
}

func TestServerUnknownRequestType(t *testing.T) {
	addr, stop := startServer(t, newFakeHandler())
	defer stop()
	conn := dial(t, addr)
	defer conn.Close()

	_, resp := roundTrip(t, conn, 9999, nil)
	require.Equal(t, wire.RespUnknownRequest, resp.Type)
}

func TestServerAcceptsUnixAbstractSocketToo(t *testing.T) {
	addr, stop := startServer(t, newFakeHandler())
	defer stop()

	// Listen binds the abstract-namespace socket on the same port number as
	// the TCP one; dial it directly and run a request over it.
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	conn, err := net.DialTimeout("unix", "\x00ovs.locorem:"+port, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_, resp := roundTrip(t, conn, wire.ReqList, nil)
	require.Equal(t, wire.RespOk, resp.Type)
}
