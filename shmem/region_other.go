//go:build !linux

package shmem

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/openvstorage/volumedriver-sub006/cmn"
)

// Non-Linux POSIX systems don't ship a guaranteed tmpfs at a fixed path the
// way Linux mounts /dev/shm, so this falls back to os.TempDir(); the object
// is still a real file-backed shared mapping, just not necessarily RAM-backed.
func path(id uint64) string {
	return fmt.Sprintf("%s/mds-shm-%016x", os.TempDir(), id)
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
		return nil, cmn.Generic(fmt.Sprintf("sizing shmem object %q", p), err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Unlink(p)
		return nil, cmn.Generic(fmt.Sprintf("mapping shmem object %q", p), err)
	}
	return &Region{ID: id, Size: size, owner: true, data: data}, nil
}

func Open(id uint64, size int) (*Region, error) {
	p := path(id)
	fd, err := unix.Open(p, unix.O_RDWR, 0)
	if err != nil {
		return nil, cmn.Generic(fmt.Sprintf("opening shmem object %q", p), err)
	}
	defer unix.Close(fd)
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, cmn.Generic(fmt.Sprintf("mapping shmem object %q", p), err)
	}
	return &Region{ID: id, Size: size, owner: false, data: data}, nil
}

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
	if err := unix.Unlink(p); err != nil && err != unix.ENOENT && unmapErr == nil {
		return cmn.Generic(fmt.Sprintf("unlinking shmem object %q", p), err)
	}
	if unmapErr != nil {
		return cmn.Generic(fmt.Sprintf("unmapping shmem object %q", p), unmapErr)
	}
	return nil
}

func isExist(err error) bool {
	return err == unix.EEXIST
}
