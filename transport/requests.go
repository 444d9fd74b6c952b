package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/openvstorage/volumedriver-sub006/cmn"
	"github.com/openvstorage/volumedriver-sub006/wire"
)

// reqHandlerFunc decodes a request body, calls the Handler, and encodes the
// result body. Dispatch is table-driven by request type (spec §9), not a
// chain of type-switches.
type reqHandlerFunc func(ctx context.Context, h Handler, body []byte) ([]byte, error)

var dispatchTable [13]reqHandlerFunc

func init() {
	dispatchTable[wire.ReqDrop] = handleDrop
	dispatchTable[wire.ReqClear] = handleClear
	dispatchTable[wire.ReqList] = handleList
	dispatchTable[wire.ReqMultiGet] = handleMultiGet
	dispatchTable[wire.ReqMultiSet] = handleMultiSet
	dispatchTable[wire.ReqSetRole] = handleSetRole
	dispatchTable[wire.ReqGetRole] = handleGetRole
	dispatchTable[wire.ReqOpen] = handleOpen
	dispatchTable[wire.ReqPing] = handlePing
	dispatchTable[wire.ReqApplyRelocationLogs] = handleApplyRelocationLogs
	dispatchTable[wire.ReqCatchUp] = handleCatchUp
	dispatchTable[wire.ReqGetTableCounters] = handleGetTableCounters
	dispatchTable[wire.ReqGetOwnerTag] = handleGetOwnerTag
}

func handleDrop(_ context.Context, h Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodeDropParams(body)
	if err != nil {
		return nil, err
	}
	return nil, h.Drop(p.Namespace)
}

func handleClear(_ context.Context, h Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodeClearParams(body)
	if err != nil {
		return nil, err
	}
	return nil, h.Clear(p.Namespace, p.OwnerTag)
}

func handleList(_ context.Context, h Handler, _ []byte) ([]byte, error) {
	return wire.ListResult{Namespaces: h.List()}.Encode(), nil
}

func handleMultiGet(_ context.Context, h Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodeMultiGetParams(body)
	if err != nil {
		return nil, err
	}
	vals, err := h.MultiGet(p.Namespace, p.Keys)
	if err != nil {
		return nil, err
	}
	return wire.MultiGetResult{Values: vals}.Encode(), nil
}

func handleMultiSet(_ context.Context, h Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodeMultiSetParams(body)
	if err != nil {
		return nil, err
	}
	return nil, h.MultiSet(p.Namespace, p.Records, p.Barrier, p.OwnerTag)
}

func handleSetRole(ctx context.Context, h Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodeSetRoleParams(body)
	if err != nil {
		return nil, err
	}
	return nil, h.SetRole(ctx, p.Namespace, p.Role, p.OwnerTag)
}

func handleGetRole(_ context.Context, h Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodeGetRoleParams(body)
	if err != nil {
		return nil, err
	}
	role, err := h.GetRole(p.Namespace)
	if err != nil {
		return nil, err
	}
	return wire.GetRoleResult{Role: role}.Encode(), nil
}

func handleOpen(_ context.Context, h Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodeOpenParams(body)
	if err != nil {
		return nil, err
	}
	return nil, h.Open(p.Namespace)
}

func handlePing(_ context.Context, _ Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodePingParams(body)
	if err != nil {
		return nil, err
	}
	return wire.PingResult{Data: p.Data}.Encode(), nil
}

func handleApplyRelocationLogs(ctx context.Context, h Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodeApplyRelocationLogsParams(body)
	if err != nil {
		return nil, err
	}
	scrubID, err := uuid.FromBytes(p.ScrubID)
	if err != nil {
		return nil, cmn.Protocol("malformed scrub id")
	}
	return nil, h.ApplyRelocationLogs(ctx, p.Namespace, scrubID, p.CloneID, p.Logs)
}

func handleCatchUp(ctx context.Context, h Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodeCatchUpParams(body)
	if err != nil {
		return nil, err
	}
	res, err := h.CatchUp(ctx, p.Namespace, p.DryRun)
	if err != nil {
		return nil, err
	}
	return wire.CatchUpResult{NumTLogs: res.NumTLogs}.Encode(), nil
}

func handleGetTableCounters(_ context.Context, h Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodeGetTableCountersParams(body)
	if err != nil {
		return nil, err
	}
	c, err := h.GetTableCounters(p.Namespace, p.Reset)
	if err != nil {
		return nil, err
	}
	return wire.GetTableCountersResult{Counters: c}.Encode(), nil
}

func handleGetOwnerTag(_ context.Context, h Handler, body []byte) ([]byte, error) {
	p, err := wire.DecodeGetOwnerTagParams(body)
	if err != nil {
		return nil, err
	}
	tag, err := h.GetOwnerTag(p.Namespace)
	if err != nil {
		return nil, err
	}
	return wire.GetOwnerTagResult{OwnerTag: tag}.Encode(), nil
}
