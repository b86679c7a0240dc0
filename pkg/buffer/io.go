package buffer

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrAgain reports that a non-blocking socket operation would block. It is a
// signal to stop the current read/write loop, not a failure.
var ErrAgain = errors.New("buffer: operation would block")

// maxIovecs bounds the number of regions passed to one vectored syscall.
const maxIovecs = 16

// ReadFrom performs one non-blocking read of up to maxLength bytes from fd
// directly into reserved regions, committing only what was read. It returns
// the number of bytes read; (0, nil) indicates EOF. A would-block condition
// is reported as ErrAgain.
func (b *Buffer) ReadFrom(fd int, maxLength int) (int, error) {
	if maxLength <= 0 {
		return 0, fmt.Errorf("%w: read of %d bytes", ErrInvalidArgument, maxLength)
	}
	var iovecs [2]RawSlice
	filled := b.Reserve(maxLength, iovecs[:])
	bufs := make([][]byte, 0, filled)
	remaining := maxLength
	for i := 0; i < filled; i++ {
		region := iovecs[i].Data
		if len(region) > remaining {
			region = region[:remaining]
		}
		bufs = append(bufs, region)
		remaining -= len(region)
	}
	n, err := unix.Readv(fd, bufs)
	if err != nil {
		b.Commit(nil)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return 0, ErrAgain
		}
		return 0, fmt.Errorf("buffer: readv: %w", err)
	}
	commit := n
	for i := 0; i < filled; i++ {
		used := min(commit, len(iovecs[i].Data))
		iovecs[i].Data = iovecs[i].Data[:used]
		commit -= used
	}
	b.Commit(iovecs[:filled])
	return n, nil
}

// WriteTo performs one non-blocking vectored write of the buffer's readable
// bytes to fd and drains what was written. A would-block condition is
// reported as ErrAgain.
func (b *Buffer) WriteTo(fd int) (int, error) {
	if b.length == 0 {
		return 0, nil
	}
	bufs := make([][]byte, 0, maxIovecs)
	for _, s := range b.slabs {
		if len(bufs) == maxIovecs {
			break
		}
		bufs = append(bufs, s.readable())
	}
	n, err := unix.Writev(fd, bufs)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return 0, ErrAgain
		}
		return 0, fmt.Errorf("buffer: writev: %w", err)
	}
	if n > 0 {
		if derr := b.Drain(n); derr != nil {
			return n, derr
		}
	}
	return n, nil
}
