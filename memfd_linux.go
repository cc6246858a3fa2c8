//go:build linux

package journald

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// sealedMemfd copies an oversized journal entry into an anonymous memory file
// and seals it, returning the fd ready to pass to the journal via SCM_RIGHTS.
// The journal refuses unsealed entry fds.
func sealedMemfd(data []byte) (int, error) {
	fd, err := unix.MemfdCreate("journald-entry", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return -1, fmt.Errorf("memfd_create: %w", err)
	}

	n, err := unix.Write(fd, data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("short write to memfd: %d of %d bytes", n, len(data))
	}
	if err == nil {
		_, err = unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS,
			unix.F_SEAL_SHRINK|unix.F_SEAL_GROW|unix.F_SEAL_WRITE|unix.F_SEAL_SEAL)
		if err != nil {
			err = fmt.Errorf("failed to seal memfd: %w", err)
		}
	}
	if err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

func closeFd(fd int) {
	unix.Close(fd)
}
