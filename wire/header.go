// Package wire implements the MDS wire protocol (spec §4.3): fixed-size
// request/response headers, an optional shared-memory body channel, and a
// schema-described, length-prefixed body per request type. Request dispatch
// and body (de)serialization are both table-driven off the request type
// code (spec §9), never a chain of type-switches.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/openvstorage/volumedriver-sub006/cmn"
)

// Magic is the fixed magic number both request and response headers carry.
const Magic uint64 = 0xB0A710AD

// Request type codes, per spec §4.3 table.
const (
	ReqDrop = iota
	ReqClear
	ReqList
	ReqMultiGet
	ReqMultiSet
	ReqSetRole
	ReqGetRole
	ReqOpen
	ReqPing
	ReqApplyRelocationLogs
	ReqCatchUp
	ReqGetTableCounters
	ReqGetOwnerTag

	numReqTypes
)

// Response type codes.
const (
	RespOk             uint32 = 1000
	RespUnknownRequest uint32 = 1001
	RespProtocolError  uint32 = 1002
	RespError          uint32 = 1003
)

// FlagUseShmem marks that the response body lives at in_region:0 rather
// than inband after the header.
const FlagUseShmem uint32 = 1 << 0

// HeaderSize and RespHeaderSize are the exact wire sizes per spec §4.3.
const (
	HeaderSize     = 64
	RespHeaderSize = 32
)

// Header is the fixed 64-byte request header.
type Header struct {
	Magic     uint64
	Type      uint32
	_pad      uint32
	BodySize  uint64
	Tag       uint64
	OutRegion uint64
	OutOffset uint64
	InRegion  uint64
	InOffset  uint64
}

func (h *Header) Marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], h.Magic)
	binary.LittleEndian.PutUint32(b[8:12], h.Type)
	binary.LittleEndian.PutUint32(b[12:16], 0)
	binary.LittleEndian.PutUint64(b[16:24], h.BodySize)
	binary.LittleEndian.PutUint64(b[24:32], h.Tag)
	binary.LittleEndian.PutUint64(b[32:40], h.OutRegion)
	binary.LittleEndian.PutUint64(b[40:48], h.OutOffset)
	binary.LittleEndian.PutUint64(b[48:56], h.InRegion)
	binary.LittleEndian.PutUint64(b[56:64], h.InOffset)
	return b
}

func UnmarshalHeader(b []byte) (*Header, error) {
	if len(b) != HeaderSize {
		return nil, cmn.Protocol("short request header")
	}
	h := &Header{
		Magic:     binary.LittleEndian.Uint64(b[0:8]),
		Type:      binary.LittleEndian.Uint32(b[8:12]),
		BodySize:  binary.LittleEndian.Uint64(b[16:24]),
		Tag:       binary.LittleEndian.Uint64(b[24:32]),
		OutRegion: binary.LittleEndian.Uint64(b[32:40]),
		OutOffset: binary.LittleEndian.Uint64(b[40:48]),
		InRegion:  binary.LittleEndian.Uint64(b[48:56]),
		InOffset:  binary.LittleEndian.Uint64(b[56:64]),
	}
	return h, nil
}

// ReadHeader reads and validates a request header off r, closing the
// connection (by returning a Protocol error) on magic mismatch.
func ReadHeader(r io.Reader) (*Header, error) {
	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	h, err := UnmarshalHeader(b)
	if err != nil {
		return nil, err
	}
	if h.Magic != Magic {
		return nil, cmn.Protocol("bad request magic")
	}
	return h, nil
}

// RespHeader is the fixed 32-byte response header.
type RespHeader struct {
	Magic    uint64
	Type     uint32
	Flags    uint32
	BodySize uint64
	Tag      uint64
}

func (h *RespHeader) Marshal() []byte {
	b := make([]byte, RespHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], h.Magic)
	binary.LittleEndian.PutUint32(b[8:12], h.Type)
	binary.LittleEndian.PutUint32(b[12:16], h.Flags)
	binary.LittleEndian.PutUint64(b[16:24], h.BodySize)
	binary.LittleEndian.PutUint64(b[24:32], h.Tag)
	return b
}

func UnmarshalRespHeader(b []byte) (*RespHeader, error) {
	if len(b) != RespHeaderSize {
		return nil, cmn.Protocol("short response header")
	}
	return &RespHeader{
		Magic:    binary.LittleEndian.Uint64(b[0:8]),
		Type:     binary.LittleEndian.Uint32(b[8:12]),
		Flags:    binary.LittleEndian.Uint32(b[12:16]),
		BodySize: binary.LittleEndian.Uint64(b[16:24]),
		Tag:      binary.LittleEndian.Uint64(b[24:32]),
	}, nil
}

func ReadRespHeader(r io.Reader) (*RespHeader, error) {
	b := make([]byte, RespHeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	h, err := UnmarshalRespHeader(b)
	if err != nil {
		return nil, err
	}
	if h.Magic != Magic {
		return nil, cmn.Protocol("bad response magic")
	}
	return h, nil
}

// ReqTypeName is used for log lines and the "Unknown" response path.
func ReqTypeName(t uint32) string {
	names := [...]string{
		"Drop", "Clear", "List", "MultiGet", "MultiSet", "SetRole", "GetRole",
		"Open", "Ping", "ApplyRelocationLogs", "CatchUp", "GetTableCounters", "GetOwnerTag",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "Unknown"
}

// ValidReqType reports whether t is one of the known request codes.
func ValidReqType(t uint32) bool { return t < uint32(numReqTypes) }
