// Package buffer implements the scatter/gather byte queue that backs all
// data-plane I/O.
//
// A Buffer is a FIFO of bytes presented as an ordered list of non-empty
// slices. It supports zero-copy transfer between buffers (Move), two-phase
// appends for socket reads (Reserve/Commit), and direct non-blocking socket
// I/O (ReadFrom/WriteTo) using vectored syscalls so bytes land in the queue
// without an intermediate copy.
//
// # Reserve/commit
//
// Callers that produce bytes incrementally (the HTTP/1.1 encoder, socket
// reads) first obtain raw writable regions with Reserve, write into them,
// and then Commit only the bytes actually used. Reserved-but-uncommitted
// regions are scratch: they do not count toward Length and are discarded by
// any other mutating operation on the buffer.
//
// # Ownership
//
// Buffers created with New, NewString or NewBytes own their memory. A buffer
// created with NewBorrowed wraps memory owned elsewhere; the borrow must not
// outlive the owner. After Move, the destination owns (or borrows) whatever
// the source held, and the source is empty.
//
// All index-bounded operations fail fast with ErrInvalidArgument when their
// preconditions are violated. Socket operations report EAGAIN as ErrAgain,
// which is not an error but a signal to stop the current read/write loop.
package buffer
