package wire_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openvstorage/volumedriver-sub006/wire"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &wire.Header{
		Magic: wire.Magic, Type: wire.ReqMultiSet, BodySize: 42, Tag: 7,
		OutRegion: 1, OutOffset: 2, InRegion: 3, InOffset: 4,
	}
	got, err := wire.UnmarshalHeader(h.Marshal())
	require.NoError(t, err)
	require.Equal(t, h.Magic, got.Magic)
	require.Equal(t, h.Type, got.Type)
	require.Equal(t, h.BodySize, got.BodySize)
	require.Equal(t, h.Tag, got.Tag)
	require.Equal(t, h.OutRegion, got.OutRegion)
	require.Equal(t, h.InOffset, got.InOffset)
	require.Len(t, h.Marshal(), wire.HeaderSize)
}

func TestRespHeaderRejectsBadMagic(t *testing.T) {
	h := &wire.RespHeader{Magic: 0xdeadbeef, Type: wire.RespOk}
	_, err := wire.ReadRespHeader(bytes.NewReader(h.Marshal()))
	require.Error(t, err)
}

func TestMultiSetParamsRoundTrip(t *testing.T) {
	p := wire.MultiSetParams{
		Namespace: "ns",
		Barrier:   true,
		OwnerTag:  99,
		Records: []wire.Record{
			{Key: []byte("k1"), Value: []byte("v1")},
			{Key: []byte("k2"), Value: []byte{}, Tombstone: true},
		},
	}
	got, err := wire.DecodeMultiSetParams(p.Encode())
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestMultiGetResultNilVsEmpty(t *testing.T) {
	res := wire.MultiGetResult{Values: [][]byte{[]byte("v"), nil}}
	got, err := wire.DecodeMultiGetResult(res.Encode())
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got.Values[0])
	require.Nil(t, got.Values[1])
}

func TestShortBodyIsProtocolError(t *testing.T) {
	_, err := wire.DecodeGetOwnerTagResult([]byte{1, 2, 3})
	require.Error(t, err)
}
