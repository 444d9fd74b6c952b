// Package transport implements the Transport (spec §4.4): a dual TCP +
// Unix abstract-namespace listener, a fixed worker pool of Accept-driven
// goroutines, and a per-connection request/response loop with optional
// shared-memory body placement.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openvstorage/volumedriver-sub006/cmn"
	"github.com/openvstorage/volumedriver-sub006/cmn/mlog"
	"github.com/openvstorage/volumedriver-sub006/metrics"
	"github.com/openvstorage/volumedriver-sub006/shmem"
	"github.com/openvstorage/volumedriver-sub006/wire"
)

// Config controls one Server's listeners and worker pool.
type Config struct {
	Host       string
	Port       uint16
	Threads    uint32 // 0 = runtime.NumCPU()
	Timeout    time.Duration
	RegionSize int // shmem region size this server's connections assume
}

// Server is one MDS node's Transport.
type Server struct {
	cfg     Config
	handler Handler

	tcpLn  net.Listener
	unixLn net.Listener
}

// unixAbstractAddr builds the abstract-namespace path spec §6 specifies:
// "\0ovs.locorem:<port>".
func unixAbstractAddr(port uint16) string {
	return fmt.Sprintf("\x00ovs.locorem:%d", port)
}

// Listen binds both endpoints without yet serving requests.
func Listen(cfg Config, handler Handler) (*Server, error) {
	tcpLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		return nil, cmn.Transport("binding tcp listener", err)
	}
	unixLn, err := net.Listen("unix", unixAbstractAddr(cfg.Port))
	if err != nil {
		_ = tcpLn.Close()
		return nil, cmn.Transport("binding unix abstract-namespace listener", err)
	}
	return &Server{cfg: cfg, handler: handler, tcpLn: tcpLn, unixLn: unixLn}, nil
}

// Serve runs the worker pool until ctx is canceled, then closes both
// listeners so in-flight Accept calls return net.ErrClosed, treated as a
// clean shutdown rather than an error.
func (s *Server) Serve(ctx context.Context) error {
	workers := int(s.cfg.Threads)
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		_ = s.tcpLn.Close()
		_ = s.unixLn.Close()
		return nil
	})
	for i := 0; i < workers; i++ {
		eg.Go(func() error { return s.acceptLoop(ctx, s.tcpLn) })
		eg.Go(func() error { return s.acceptLoop(ctx, s.unixLn) })
	}
	return eg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return cmn.Transport("accept", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()
	defer conn.Close()

	regions := shmem.NewTable(s.cfg.RegionSize)
	defer regions.CloseAll()

	for {
		if s.cfg.Timeout > 0 {
			_ = conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
		}

		hdr, err := wire.ReadHeader(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return // peer closed the connection cleanly
			}
			if ctx.Err() != nil {
				return
			}
			mlog.Warnln("transport: closing connection after header error:", err)
			return
		}

		if !wire.ValidReqType(hdr.Type) {
			s.writeResp(conn, &wire.RespHeader{Magic: wire.Magic, Type: wire.RespUnknownRequest, Tag: hdr.Tag}, nil)
			continue
		}

		body, err := s.readBody(conn, hdr, regions)
		if err != nil {
			mlog.Warnln("transport: closing connection after body read error:", err)
			return
		}

		respBody, herr := dispatchTable[hdr.Type](ctx, s.handler, body)
		respType := wire.RespOk
		if herr != nil {
			respType = wire.RespError
			respBody = encodeErrorBody(herr)
		}
		metrics.RequestsTotal.WithLabelValues(wire.ReqTypeName(hdr.Type), respTypeName(respType)).Inc()

		s.sendResp(conn, hdr, respType, respBody, regions)
	}
}

// readBody returns the request body, pulling it from the client-supplied
// out_region:out_offset if set, otherwise inband off the socket (spec §4.3
// "the server must not read from the socket for the body" when out_region
// is set).
func (s *Server) readBody(conn net.Conn, hdr *wire.Header, regions *shmem.Table) ([]byte, error) {
	if hdr.BodySize == 0 {
		return nil, nil
	}
	if hdr.OutRegion != 0 {
		region, err := regions.Get(hdr.OutRegion)
		if err != nil {
			return nil, cmn.Transport("opening out_region", err)
		}
		return region.ReadAt(int(hdr.OutOffset), int(hdr.BodySize))
	}
	buf := make([]byte, hdr.BodySize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// sendResp places the response per spec §4.3's shmem placement rules,
// falling back to inband (and counting an overrun) whenever shmem can't be
// used cleanly.
func (s *Server) sendResp(conn net.Conn, hdr *wire.Header, respType uint32, body []byte, regions *shmem.Table) {
	useShmem := false
	if hdr.InRegion != 0 && len(body) > 0 {
		if hdr.OutRegion == hdr.InRegion {
			// Response would overlap the still-live request body in the same
			// region; refuse shmem for this response (spec §4.3).
			metrics.ShmemOverruns.Inc()
		} else if region, err := regions.Get(hdr.InRegion); err == nil {
			if werr := region.WriteAt(0, body); werr == nil {
				useShmem = true
			} else {
				metrics.ShmemOverruns.Inc()
			}
		} else {
			metrics.ShmemOverruns.Inc()
		}
	}

	resp := &wire.RespHeader{Magic: wire.Magic, Type: respType, Tag: hdr.Tag, BodySize: uint64(len(body))}
	if useShmem {
		resp.Flags = wire.FlagUseShmem
		s.writeResp(conn, resp, nil)
		return
	}
	s.writeResp(conn, resp, body)
}

func (s *Server) writeResp(conn net.Conn, resp *wire.RespHeader, body []byte) {
	if _, err := conn.Write(resp.Marshal()); err != nil {
		return
	}
	if len(body) > 0 {
		_, _ = conn.Write(body)
	}
}

func encodeErrorBody(err error) []byte {
	e := cmn.AsMDSError(err)
	errType := wire.ErrTypeGeneric
	if e.Kind == cmn.KindOwnerTagMismatch {
		errType = wire.ErrTypeOwnerTagMismatch
	}
	return wire.ErrorBody{ErrorType: errType, Message: e.Error()}.Encode()
}

func respTypeName(t uint32) string {
	switch t {
	case wire.RespOk:
		return "Ok"
	case wire.RespUnknownRequest:
		return "UnknownRequest"
	case wire.RespProtocolError:
		return "ProtocolError"
	case wire.RespError:
		return "Error"
	default:
		return "?"
	}
}
