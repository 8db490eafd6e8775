//go:build unix && !linux

package notifier

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

const pipeByte = 'x'

// pipeChannel is used where eventfd is unavailable. Both ends stay blocking.
type pipeChannel struct {
	r, w int
}

func newChannel() (channel, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	return &pipeChannel{r: fds[0], w: fds[1]}, nil
}

func (c *pipeChannel) fd() int {
	return c.r
}

func (c *pipeChannel) write() error {
	buf := [1]byte{pipeByte}
	for {
		n, err := unix.Write(c.w, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("pipe write: %w", err)
		}
		if n != 1 {
			return io.ErrShortWrite
		}
		return nil
	}
}

func (c *pipeChannel) read() error {
	var buf [1]byte
	for {
		n, err := unix.Read(c.r, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("pipe read: %w", err)
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
		if buf[0] != pipeByte {
			return fmt.Errorf("pipe read unexpected byte %q", buf[0])
		}
		return nil
	}
}

func (c *pipeChannel) close() error {
	return errors.Join(unix.Close(c.w), unix.Close(c.r))
}
