//go:build linux

package notifier

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// eventfdChannel uses a non-semaphore eventfd. The notifier writes at most
// one unit before each read, so the counter is always 0 or 1.
type eventfdChannel struct {
	efd int
}

func newChannel() (channel, error) {
	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &eventfdChannel{efd: efd}, nil
}

func (c *eventfdChannel) fd() int {
	return c.efd
}

func (c *eventfdChannel) write() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		n, err := unix.Write(c.efd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("eventfd write: %w", err)
		}
		if n != len(buf) {
			return io.ErrShortWrite
		}
		return nil
	}
}

func (c *eventfdChannel) read() error {
	var buf [8]byte
	for {
		n, err := unix.Read(c.efd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("eventfd read: %w", err)
		}
		if n != len(buf) {
			return io.ErrUnexpectedEOF
		}
		if v := binary.NativeEndian.Uint64(buf[:]); v != 1 {
			return fmt.Errorf("eventfd counter is %d, expected 1", v)
		}
		return nil
	}
}

func (c *eventfdChannel) close() error {
	return unix.Close(c.efd)
}
