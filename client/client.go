// Package client implements the wire-protocol client side (spec §4.4
// "Client side"): a single mutex-guarded connection, reused across calls,
// with local-address detection preferring the abstract Unix socket and
// optional shmem body placement that falls back to inband on overrun.
package client

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openvstorage/volumedriver-sub006/cmn"
	"github.com/openvstorage/volumedriver-sub006/metrics"
	"github.com/openvstorage/volumedriver-sub006/shmem"
	"github.com/openvstorage/volumedriver-sub006/wire"
)

// Config addresses one MDS node. ForceRemote skips the abstract-Unix-socket
// shortcut even when Host resolves to this machine, useful for tests that
// want to exercise the TCP path specifically.
type Config struct {
	Host        string
	Port        uint16
	Timeout     time.Duration
	ForceRemote bool
	RegionSize  int // 0 disables shmem use by this client
}

// Client is one connection to one MDS node. All methods are safe for
// concurrent use; the underlying connection is serialized by mu, matching
// the server's own per-connection strict serialization (spec §5).
type Client struct {
	cfg  Config
	mu   sync.Mutex
	conn net.Conn
	tag  atomic.Uint64

	region *shmem.Region // lazily created, reused across calls when non-nil
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) dialAddr() string {
	if !c.cfg.ForceRemote && isLocalHost(c.cfg.Host) {
		return "" // signals Unix abstract-namespace dial in connect()
	}
	return fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
}

func isLocalHost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1", "":
		return true
	}
	ifaceAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range ifaceAddrs {
		if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.String() == host {
			return true
		}
	}
	return false
}

func (c *Client) connect() error {
	if c.conn != nil {
		return nil
	}
	if addr := c.dialAddr(); addr != "" {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout(c.cfg.Timeout))
		if err != nil {
			return cmn.Transport("dialing mds node", err)
		}
		c.conn = conn
		return nil
	}

	abstractAddr := fmt.Sprintf("\x00ovs.locorem:%d", c.cfg.Port)
	conn, err := net.DialTimeout("unix", abstractAddr, dialTimeout(c.cfg.Timeout))
	if err != nil {
		// Fall back to TCP loopback; the abstract socket may not be bound
		// (e.g. a non-Linux node) even though the host is local.
		conn, err = net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", c.cfg.Port), dialTimeout(c.cfg.Timeout))
		if err != nil {
			return cmn.Transport("dialing mds node", err)
		}
	}
	c.conn = conn
	return nil
}

func dialTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.region != nil {
		_ = c.region.Close()
		c.region = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call sends one request and returns the raw response body, translating a
// RespError body back into a *cmn.Error.
func (c *Client) call(reqType uint32, body []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(); err != nil {
		return nil, err
	}
	if c.cfg.Timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	}

	tag := c.tag.Add(1)
	outRegion, sentInline := c.placeRequestBody(body)

	hdr := &wire.Header{
		Magic:    wire.Magic,
		Type:     reqType,
		BodySize: uint64(len(body)),
		Tag:      tag,
	}
	if outRegion != 0 {
		hdr.OutRegion = outRegion
	}
	if c.region != nil {
		hdr.InRegion = c.region.ID
	}

	if _, err := c.conn.Write(hdr.Marshal()); err != nil {
		c.dropConn()
		return nil, cmn.Transport("writing request header", err)
	}
	if sentInline {
		if _, err := c.conn.Write(body); err != nil {
			c.dropConn()
			return nil, cmn.Transport("writing request body", err)
		}
	}

	resp, err := wire.ReadRespHeader(c.conn)
	if err != nil {
		c.dropConn()
		return nil, cmn.Transport("reading response header", err)
	}

	var respBody []byte
	if resp.BodySize > 0 {
		if resp.Flags&wire.FlagUseShmem != 0 && c.region != nil {
			respBody, err = c.region.ReadAt(0, int(resp.BodySize))
		} else {
			respBody = make([]byte, resp.BodySize)
			_, err = io.ReadFull(c.conn, respBody)
		}
		if err != nil {
			c.dropConn()
			return nil, cmn.Transport("reading response body", err)
		}
	}

	switch resp.Type {
	case wire.RespOk:
		return respBody, nil
	case wire.RespUnknownRequest:
		return nil, cmn.Protocol(fmt.Sprintf("server rejected request type %s as unknown", wire.ReqTypeName(reqType)))
	case wire.RespProtocolError:
		return nil, cmn.Protocol("server reported a protocol error")
	case wire.RespError:
		eb, derr := wire.DecodeErrorBody(respBody)
		if derr != nil {
			return nil, cmn.Protocol("malformed error body")
		}
		if eb.ErrorType == wire.ErrTypeOwnerTagMismatch {
			return nil, cmn.NewError(cmn.KindOwnerTagMismatch, eb.Message)
		}
		return nil, cmn.NewError(cmn.KindGeneric, eb.Message)
	default:
		return nil, cmn.Protocol(fmt.Sprintf("unknown response type %d", resp.Type))
	}
}

// placeRequestBody tries to stage body in this client's reusable out-bound
// region; if the region can't hold it (or none is configured), it falls
// back to sending the body inband and counts an overrun.
func (c *Client) placeRequestBody(body []byte) (regionID uint64, sendInline bool) {
	if c.cfg.RegionSize <= 0 || len(body) == 0 {
		return 0, len(body) > 0
	}
	if c.region == nil {
		r, err := shmem.Create(c.cfg.RegionSize)
		if err != nil {
			metrics.ShmemOverruns.Inc()
			return 0, true
		}
		c.region = r
	}
	if len(body) > c.region.Size {
		metrics.ShmemOverruns.Inc()
		return 0, true
	}
	if err := c.region.WriteAt(0, body); err != nil {
		metrics.ShmemOverruns.Inc()
		return 0, true
	}
	return c.region.ID, false
}

func (c *Client) dropConn() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Drop(namespace string) error {
	_, err := c.call(wire.ReqDrop, wire.DropParams{Namespace: namespace}.Encode())
	return err
}

func (c *Client) Clear(namespace string, ownerTag uint64) error {
	_, err := c.call(wire.ReqClear, wire.ClearParams{Namespace: namespace, OwnerTag: ownerTag}.Encode())
	return err
}

func (c *Client) List() ([]string, error) {
	b, err := c.call(wire.ReqList, nil)
	if err != nil {
		return nil, err
	}
	res, err := wire.DecodeListResult(b)
	return res.Namespaces, err
}

func (c *Client) MultiGet(namespace string, keys [][]byte) ([][]byte, error) {
	b, err := c.call(wire.ReqMultiGet, wire.MultiGetParams{Namespace: namespace, Keys: keys}.Encode())
	if err != nil {
		return nil, err
	}
	res, err := wire.DecodeMultiGetResult(b)
	return res.Values, err
}

func (c *Client) MultiSet(namespace string, records []wire.Record, barrier bool, ownerTag uint64) error {
	_, err := c.call(wire.ReqMultiSet, wire.MultiSetParams{Namespace: namespace, Barrier: barrier, OwnerTag: ownerTag, Records: records}.Encode())
	return err
}

func (c *Client) SetRole(namespace string, role wire.Role, ownerTag uint64) error {
	_, err := c.call(wire.ReqSetRole, wire.SetRoleParams{Namespace: namespace, Role: role, OwnerTag: ownerTag}.Encode())
	return err
}

func (c *Client) GetRole(namespace string) (wire.Role, error) {
	b, err := c.call(wire.ReqGetRole, wire.GetRoleParams{Namespace: namespace}.Encode())
	if err != nil {
		return 0, err
	}
	res, err := wire.DecodeGetRoleResult(b)
	return res.Role, err
}

func (c *Client) Open(namespace string) error {
	_, err := c.call(wire.ReqOpen, wire.OpenParams{Namespace: namespace}.Encode())
	return err
}

func (c *Client) Ping(data []byte) ([]byte, error) {
	b, err := c.call(wire.ReqPing, wire.PingParams{Data: data}.Encode())
	if err != nil {
		return nil, err
	}
	res, err := wire.DecodePingResult(b)
	return res.Data, err
}

func (c *Client) ApplyRelocationLogs(namespace string, scrubID uuid.UUID, cloneID uint32, logs []string) error {
	idBytes, _ := scrubID.MarshalBinary()
	_, err := c.call(wire.ReqApplyRelocationLogs, wire.ApplyRelocationLogsParams{
		Namespace: namespace, ScrubID: idBytes, CloneID: cloneID, Logs: logs,
	}.Encode())
	return err
}

func (c *Client) CatchUp(namespace string, dryRun bool) (uint64, error) {
	b, err := c.call(wire.ReqCatchUp, wire.CatchUpParams{Namespace: namespace, DryRun: dryRun}.Encode())
	if err != nil {
		return 0, err
	}
	res, err := wire.DecodeCatchUpResult(b)
	return res.NumTLogs, err
}

func (c *Client) GetTableCounters(namespace string, reset bool) (wire.Counters, error) {
	b, err := c.call(wire.ReqGetTableCounters, wire.GetTableCountersParams{Namespace: namespace, Reset: reset}.Encode())
	if err != nil {
		return wire.Counters{}, err
	}
	res, err := wire.DecodeGetTableCountersResult(b)
	return res.Counters, err
}

func (c *Client) GetOwnerTag(namespace string) (uint64, error) {
	b, err := c.call(wire.ReqGetOwnerTag, wire.GetOwnerTagParams{Namespace: namespace}.Encode())
	if err != nil {
		return 0, err
	}
	res, err := wire.DecodeGetOwnerTagResult(b)
	return res.OwnerTag, err
}
