// Package shmem implements the Shared Memory Region capability (spec §4.2):
// a per-connection named memory region of fixed size, identified by a
// random 64-bit id, mapped read/write by both the creating and the opening
// side. Both the creating and the opening side unlink the backing OS object
// on Close; unlink is idempotent so a destructor race between both holders is
// safe (spec §8).
package shmem

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/openvstorage/volumedriver-sub006/cmn"
)

// Region is a mapped POSIX shared-memory object.
type Region struct {
	ID    uint64
	Size  int
	owner bool

	mu     sync.Mutex
	data   []byte
	closed bool
}

// Bytes returns the mapped region. Callers must not retain the slice past a
// call to Close.
func (r *Region) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// ReadAt copies out n bytes starting at offset -- used by the wire codec to
// pull a request/response body out of shmem without handing out the raw
// backing slice for longer than necessary.
func (r *Region) ReadAt(offset, n int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, cmn.Generic("shmem region closed", nil)
	}
	if offset < 0 || n < 0 || offset+n > len(r.data) {
		return nil, cmn.Protocol(fmt.Sprintf("shmem read out of range: offset=%d n=%d size=%d", offset, n, len(r.data)))
	}
	out := make([]byte, n)
	copy(out, r.data[offset:offset+n])
	return out, nil
}

// WriteAt writes b into the region at offset.
func (r *Region) WriteAt(offset int, b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return cmn.Generic("shmem region closed", nil)
	}
	if offset < 0 || offset+len(b) > len(r.data) {
		return cmn.Protocol(fmt.Sprintf("shmem write out of range: offset=%d n=%d size=%d", offset, len(b), len(r.data)))
	}
	copy(r.data[offset:], b)
	return nil
}

// randomID draws a fresh 64-bit id. A general-purpose UUID library targets
// 128-bit identifiers; the wire protocol's region id field is a raw 64-bit
// integer (spec §4.3), so crypto/rand is used directly rather than truncating
// a UUID in a way that would just move the same stdlib call one layer down.
func randomID() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

const maxCreateRetries = 8

// Create allocates a new region of the given size, retrying on id
// collision (spec §4.2: "name collision on create -> retry with fresh id").
func Create(size int) (*Region, error) {
	var lastErr error
	for i := 0; i < maxCreateRetries; i++ {
		id, err := randomID()
		if err != nil {
			return nil, cmn.Generic("generating shmem region id", err)
		}
		r, err := createWithID(id, size)
		if err == nil {
			return r, nil
		}
		if !isExist(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, cmn.Generic(fmt.Sprintf("shmem region id collision %d times in a row", maxCreateRetries), lastErr)
}
