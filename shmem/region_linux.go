//go:build linux

package shmem

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/openvstorage/volumedriver-sub006/cmn"
)

// /dev/shm is a tmpfs mounted by every mainstream Linux distribution; opening
// a file there with O_CREAT|O_EXCL is exactly what glibc's shm_open does
// under the hood, so there's no need to cgo into libc for it.
func path(id uint64) string {
	return fmt.Sprintf("/dev/shm/mds-shm-%016x", id)
}

func createWithID(id uint64, size int) (*Region, error) {
	p := path(id)
	fd, err := unix.Open(p, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0o600)
	if err != nil {
		if err == unix.EEXIST {
			return nil, err
		}
		return nil, cmn.Generic(fmt.Sprintf("creating shmem object %q", p), err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Unlink(p)
		return nil, cmn.Generic(fmt.Sprintf("sizing shmem object %q to %d bytes", p, size), err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Unlink(p)
		return nil, cmn.Generic(fmt.Sprintf("mapping shmem object %q", p), err)
	}

	return &Region{ID: id, Size: size, owner: true, data: data}, nil
}

// Open maps an existing region created elsewhere, identified by id.
func Open(id uint64, size int) (*Region, error) {
	p := path(id)
	fd, err := unix.Open(p, unix.O_RDWR, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, cmn.Generic(fmt.Sprintf("shmem region %d not found", id), err)
		}
		return nil, cmn.Generic(fmt.Sprintf("opening shmem object %q", p), err)
	}
	defer unix.Close(fd)

	st, err := os.Stat(p)
	if err == nil && size <= 0 {
		size = int(st.Size())
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, cmn.Generic(fmt.Sprintf("mapping shmem object %q", p), err)
	}

	return &Region{ID: id, Size: size, owner: false, data: data}, nil
}

// Close unmaps the region. The owning side also unlinks the backing name;
// the non-owning side additionally best-effort unlinks on its way out (spec
// §3 Shared Memory Region). unix.Unlink on an already-removed path returns ENOENT,
// which is swallowed here, making the unlink race-safe regardless of which
// side runs its destructor first.
func (r *Region) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	data := r.data
	r.data = nil
	r.mu.Unlock()

	var unmapErr error
	if data != nil {
		unmapErr = unix.Munmap(data)
	}

	p := path(r.ID)
	if err := unix.Unlink(p); err != nil && err != unix.ENOENT {
		if unmapErr == nil {
			return cmn.Generic(fmt.Sprintf("unlinking shmem object %q", p), err)
		}
	}
	if unmapErr != nil {
		return cmn.Generic(fmt.Sprintf("unmapping shmem object %q", p), unmapErr)
	}
	return nil
}

func isExist(err error) bool {
	return err == unix.EEXIST
}
