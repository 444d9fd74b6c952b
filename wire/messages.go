package wire

// Record is the wire form of a key/value pair; an empty (non-nil) Value
// together with Tombstone=true means "delete this key" (spec §3 Record).
type Record struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

func (w *BodyWriter) PutRecord(r Record) {
	w.PutBytes(r.Key)
	w.PutBytes(r.Value)
	w.PutBool(r.Tombstone)
}

func (r *BodyReader) GetRecord() (Record, error) {
	var rec Record
	var err error
	if rec.Key, err = r.GetBytes(); err != nil {
		return rec, err
	}
	if rec.Value, err = r.GetBytes(); err != nil {
		return rec, err
	}
	if rec.Tombstone, err = r.GetBool(); err != nil {
		return rec, err
	}
	return rec, nil
}

func (w *BodyWriter) PutRecordList(recs []Record) {
	w.PutU32(uint32(len(recs)))
	for _, rec := range recs {
		w.PutRecord(rec)
	}
}

func (r *BodyReader) GetRecordList() ([]Record, error) {
	n, err := r.GetU32()
	if err != nil {
		return nil, err
	}
	out := make([]Record, n)
	for i := range out {
		if out[i], err = r.GetRecord(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Role mirrors the ManagedTable role (spec §3).
type Role uint32

const (
	RoleMaster Role = 0
	RoleSlave  Role = 1
)

func (r Role) String() string {
	if r == RoleMaster {
		return "Master"
	}
	return "Slave"
}

// Counters is the wire form of spec §3 "Table counters".
type Counters struct {
	TotalTLogsRead     uint64
	IncrementalUpdates uint64
	FullRebuilds       uint64
}

func (w *BodyWriter) PutCounters(c Counters) {
	w.PutU64(c.TotalTLogsRead)
	w.PutU64(c.IncrementalUpdates)
	w.PutU64(c.FullRebuilds)
}

func (r *BodyReader) GetCounters() (Counters, error) {
	var c Counters
	var err error
	if c.TotalTLogsRead, err = r.GetU64(); err != nil {
		return c, err
	}
	if c.IncrementalUpdates, err = r.GetU64(); err != nil {
		return c, err
	}
	if c.FullRebuilds, err = r.GetU64(); err != nil {
		return c, err
	}
	return c, nil
}

// Error-body error_type codes (spec §4.3 "On any Error response...").
const (
	ErrTypeOwnerTagMismatch uint32 = 1
	ErrTypeGeneric          uint32 = 0
)

// ErrorBody is the {error_type, message} body carried by a RespError response.
type ErrorBody struct {
	ErrorType uint32
	Message   string
}

func (w *BodyWriter) PutErrorBody(e ErrorBody) {
	w.PutU32(e.ErrorType)
	w.PutString(e.Message)
}

func (r *BodyReader) GetErrorBody() (ErrorBody, error) {
	var e ErrorBody
	var err error
	if e.ErrorType, err = r.GetU32(); err != nil {
		return e, err
	}
	if e.Message, err = r.GetString(); err != nil {
		return e, err
	}
	return e, nil
}

func (e ErrorBody) Encode() []byte {
	w := NewBodyWriter()
	w.PutErrorBody(e)
	return w.Bytes()
}

func DecodeErrorBody(b []byte) (ErrorBody, error) {
	return NewBodyReader(b).GetErrorBody()
}

// ---- per-request-type param/result schemas ----

type DropParams struct{ Namespace string }

func (p DropParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutString(p.Namespace)
	return w.Bytes()
}
func DecodeDropParams(b []byte) (DropParams, error) {
	r := NewBodyReader(b)
	ns, err := r.GetString()
	return DropParams{Namespace: ns}, err
}

type ClearParams struct {
	Namespace string
	OwnerTag  uint64
}

func (p ClearParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutString(p.Namespace)
	w.PutU64(p.OwnerTag)
	return w.Bytes()
}
func DecodeClearParams(b []byte) (ClearParams, error) {
	r := NewBodyReader(b)
	var p ClearParams
	var err error
	if p.Namespace, err = r.GetString(); err != nil {
		return p, err
	}
	p.OwnerTag, err = r.GetU64()
	return p, err
}

type ListResult struct{ Namespaces []string }

func (res ListResult) Encode() []byte {
	w := NewBodyWriter()
	w.PutStringList(res.Namespaces)
	return w.Bytes()
}
func DecodeListResult(b []byte) (ListResult, error) {
	r := NewBodyReader(b)
	ns, err := r.GetStringList()
	return ListResult{Namespaces: ns}, err
}

type MultiGetParams struct {
	Namespace string
	Keys      [][]byte
}

func (p MultiGetParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutString(p.Namespace)
	w.PutBytesList(p.Keys)
	return w.Bytes()
}
func DecodeMultiGetParams(b []byte) (MultiGetParams, error) {
	r := NewBodyReader(b)
	var p MultiGetParams
	var err error
	if p.Namespace, err = r.GetString(); err != nil {
		return p, err
	}
	p.Keys, err = r.GetBytesList()
	return p, err
}

type MultiGetResult struct{ Values [][]byte }

func (res MultiGetResult) Encode() []byte {
	w := NewBodyWriter()
	// empty bytes = absent, per spec; nil and empty both encode as length 0.
	list := make([][]byte, len(res.Values))
	for i, v := range res.Values {
		if v == nil {
			list[i] = []byte{}
		} else {
			list[i] = v
		}
	}
	w.PutBytesList(list)
	return w.Bytes()
}
func DecodeMultiGetResult(b []byte) (MultiGetResult, error) {
	r := NewBodyReader(b)
	vals, err := r.GetBytesList()
	if err != nil {
		return MultiGetResult{}, err
	}
	for i, v := range vals {
		if len(v) == 0 {
			vals[i] = nil
		}
	}
	return MultiGetResult{Values: vals}, nil
}

type MultiSetParams struct {
	Namespace string
	Barrier   bool
	OwnerTag  uint64
	Records   []Record
}

func (p MultiSetParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutString(p.Namespace)
	w.PutBool(p.Barrier)
	w.PutU64(p.OwnerTag)
	w.PutRecordList(p.Records)
	return w.Bytes()
}
func DecodeMultiSetParams(b []byte) (MultiSetParams, error) {
	r := NewBodyReader(b)
	var p MultiSetParams
	var err error
	if p.Namespace, err = r.GetString(); err != nil {
		return p, err
	}
	if p.Barrier, err = r.GetBool(); err != nil {
		return p, err
	}
	if p.OwnerTag, err = r.GetU64(); err != nil {
		return p, err
	}
	p.Records, err = r.GetRecordList()
	return p, err
}

type SetRoleParams struct {
	Namespace string
	Role      Role
	OwnerTag  uint64
}

func (p SetRoleParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutString(p.Namespace)
	w.PutU32(uint32(p.Role))
	w.PutU64(p.OwnerTag)
	return w.Bytes()
}
func DecodeSetRoleParams(b []byte) (SetRoleParams, error) {
	r := NewBodyReader(b)
	var p SetRoleParams
	var err error
	if p.Namespace, err = r.GetString(); err != nil {
		return p, err
	}
	role, err := r.GetU32()
	if err != nil {
		return p, err
	}
	p.Role = Role(role)
	p.OwnerTag, err = r.GetU64()
	return p, err
}

type GetRoleParams struct{ Namespace string }

func (p GetRoleParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutString(p.Namespace)
	return w.Bytes()
}
func DecodeGetRoleParams(b []byte) (GetRoleParams, error) {
	r := NewBodyReader(b)
	ns, err := r.GetString()
	return GetRoleParams{Namespace: ns}, err
}

type GetRoleResult struct{ Role Role }

func (res GetRoleResult) Encode() []byte {
	w := NewBodyWriter()
	w.PutU32(uint32(res.Role))
	return w.Bytes()
}
func DecodeGetRoleResult(b []byte) (GetRoleResult, error) {
	r := NewBodyReader(b)
	role, err := r.GetU32()
	return GetRoleResult{Role: Role(role)}, err
}

type OpenParams struct{ Namespace string }

func (p OpenParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutString(p.Namespace)
	return w.Bytes()
}
func DecodeOpenParams(b []byte) (OpenParams, error) {
	r := NewBodyReader(b)
	ns, err := r.GetString()
	return OpenParams{Namespace: ns}, err
}

type PingParams struct{ Data []byte }

func (p PingParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutBytes(p.Data)
	return w.Bytes()
}
func DecodePingParams(b []byte) (PingParams, error) {
	r := NewBodyReader(b)
	d, err := r.GetBytes()
	return PingParams{Data: d}, err
}

type PingResult struct{ Data []byte }

func (res PingResult) Encode() []byte {
	w := NewBodyWriter()
	w.PutBytes(res.Data)
	return w.Bytes()
}
func DecodePingResult(b []byte) (PingResult, error) {
	r := NewBodyReader(b)
	d, err := r.GetBytes()
	return PingResult{Data: d}, err
}

type ApplyRelocationLogsParams struct {
	Namespace string
	ScrubID   []byte // 16-byte UUID, opaque to the wire layer
	CloneID   uint32
	Logs      []string
}

func (p ApplyRelocationLogsParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutString(p.Namespace)
	w.PutBytes(p.ScrubID)
	w.PutU32(p.CloneID)
	w.PutStringList(p.Logs)
	return w.Bytes()
}
func DecodeApplyRelocationLogsParams(b []byte) (ApplyRelocationLogsParams, error) {
	r := NewBodyReader(b)
	var p ApplyRelocationLogsParams
	var err error
	if p.Namespace, err = r.GetString(); err != nil {
		return p, err
	}
	if p.ScrubID, err = r.GetBytes(); err != nil {
		return p, err
	}
	if p.CloneID, err = r.GetU32(); err != nil {
		return p, err
	}
	p.Logs, err = r.GetStringList()
	return p, err
}

type CatchUpParams struct {
	Namespace string
	DryRun    bool
}

func (p CatchUpParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutString(p.Namespace)
	w.PutBool(p.DryRun)
	return w.Bytes()
}
func DecodeCatchUpParams(b []byte) (CatchUpParams, error) {
	r := NewBodyReader(b)
	var p CatchUpParams
	var err error
	if p.Namespace, err = r.GetString(); err != nil {
		return p, err
	}
	p.DryRun, err = r.GetBool()
	return p, err
}

type CatchUpResult struct{ NumTLogs uint64 }

func (res CatchUpResult) Encode() []byte {
	w := NewBodyWriter()
	w.PutU64(res.NumTLogs)
	return w.Bytes()
}
func DecodeCatchUpResult(b []byte) (CatchUpResult, error) {
	r := NewBodyReader(b)
	n, err := r.GetU64()
	return CatchUpResult{NumTLogs: n}, err
}

type GetTableCountersParams struct {
	Namespace string
	Reset     bool
}

func (p GetTableCountersParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutString(p.Namespace)
	w.PutBool(p.Reset)
	return w.Bytes()
}
func DecodeGetTableCountersParams(b []byte) (GetTableCountersParams, error) {
	r := NewBodyReader(b)
	var p GetTableCountersParams
	var err error
	if p.Namespace, err = r.GetString(); err != nil {
		return p, err
	}
	p.Reset, err = r.GetBool()
	return p, err
}

type GetTableCountersResult struct{ Counters Counters }

func (res GetTableCountersResult) Encode() []byte {
	w := NewBodyWriter()
	w.PutCounters(res.Counters)
	return w.Bytes()
}
func DecodeGetTableCountersResult(b []byte) (GetTableCountersResult, error) {
	r := NewBodyReader(b)
	c, err := r.GetCounters()
	return GetTableCountersResult{Counters: c}, err
}

type GetOwnerTagParams struct{ Namespace string }

func (p GetOwnerTagParams) Encode() []byte {
	w := NewBodyWriter()
	w.PutString(p.Namespace)
	return w.Bytes()
}
func DecodeGetOwnerTagParams(b []byte) (GetOwnerTagParams, error) {
	r := NewBodyReader(b)
	ns, err := r.GetString()
	return GetOwnerTagParams{Namespace: ns}, err
}

type GetOwnerTagResult struct{ OwnerTag uint64 }

func (res GetOwnerTagResult) Encode() []byte {
	w := NewBodyWriter()
	w.PutU64(res.OwnerTag)
	return w.Bytes()
}
func DecodeGetOwnerTagResult(b []byte) (GetOwnerTagResult, error) {
	r := NewBodyReader(b)
	tag, err := r.GetU64()
	return GetOwnerTagResult{OwnerTag: tag}, err
}
