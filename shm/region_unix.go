//go:build unix

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// region owns the mmap'd bytes backing a shared-memory cache and the
// sibling advisory lock file used only to serialize the create/open/
// validate window between processes — not the steady-state read/write
// path, which relies entirely on the in-region seqlock and TTAS
// spinlock (lock.go).
type region struct {
	data []byte
	l    layout
	path string

	file     *os.File
	lockFile *os.File
}

// openRegion opens or creates the named shared-memory region. It
// serializes the create/open/validate window against other processes
// via an advisory flock on the sibling .lock file; steady-state
// concurrent access afterward never touches that file again.
func openRegion(cfg Config) (*region, error) {
	dataPath, lockPath, err := regionPaths(cfg.Name)
	if err != nil {
		return nil, err
	}

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: open lock file: %w", err)
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("shm: flock: %w", err)
	}
	defer func() {
		unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
	}()

	l := newLayout(uint32(cfg.Capacity), uint32(cfg.MaxKeySize), uint32(cfg.MaxValueSize))
	size := l.totalSize()

	f, err := os.OpenFile(dataPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("shm: open data file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		lockFile.Close()
		return nil, fmt.Errorf("shm: stat data file: %w", err)
	}

	needsInit := fi.Size() != size
	if !needsInit {
		// A file of the right size still might belong to a differently
		// configured region (same byte count, different capacity/slot
		// size combination is possible in principle); read the header
		// and compare the parameters that matter before trusting it.
		hdr := make([]byte, headerSize)
		if n, rerr := f.ReadAt(hdr, 0); rerr != nil || n != headerSize {
			needsInit = true
		} else if !headerMatches(hdr, l, cfg) {
			needsInit = true
		}
	}

	if needsInit {
		if err := f.Truncate(0); err != nil {
			f.Close()
			lockFile.Close()
			return nil, fmt.Errorf("shm: truncate: %w", err)
		}
		if err := f.Truncate(size); err != nil {
			f.Close()
			lockFile.Close()
			return nil, fmt.Errorf("shm: resize: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		lockFile.Close()
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}

	r := &region{data: data, l: l, path: dataPath, file: f, lockFile: lockFile}

	if needsInit {
		initRegion(data, l, cfg)
	}

	return r, nil
}

func (r *region) close() error {
	var errs []error
	if err := unix.Msync(r.data, unix.MS_SYNC); err != nil {
		errs = append(errs, fmt.Errorf("shm: msync: %w", err))
	}
	if err := unix.Munmap(r.data); err != nil {
		errs = append(errs, fmt.Errorf("shm: munmap: %w", err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("shm: close data file: %w", err))
	}
	if err := r.lockFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("shm: close lock file: %w", err))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
