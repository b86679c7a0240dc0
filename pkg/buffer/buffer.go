package buffer

import (
	"bytes"
	"errors"
	"fmt"
)

// DefaultSlabSize is the allocation granularity for owned buffer memory.
const DefaultSlabSize = 4096

// ErrInvalidArgument is returned when an index-bounded operation is called
// with arguments outside the buffer's current extent.
var ErrInvalidArgument = errors.New("buffer: invalid argument")

// RawSlice is a view of a contiguous region of buffer memory. For readable
// regions Data holds committed bytes; for reserved regions Data is writable
// scratch that becomes part of the queue only after Commit.
type RawSlice struct {
	Data []byte
}

// slab is one contiguous allocation. Readable bytes are mem[rpos:wpos];
// mem[wpos:cap(mem)] is writable tail used by reservations.
type slab struct {
	mem  []byte
	rpos int
	wpos int
}

func (s *slab) readable() []byte { return s.mem[s.rpos:s.wpos] }
func (s *slab) size() int        { return s.wpos - s.rpos }
func (s *slab) tail() int        { return cap(s.mem) - s.wpos }

// reservation records one outstanding reserved region so Commit can locate
// where the caller's bytes must be appended.
type reservation struct {
	sl  *slab
	off int // == sl.wpos at reserve time
	cap int
}

// Buffer is a scatter/gather FIFO byte queue. It is not safe for concurrent
// use; every buffer lives on a single dispatcher thread.
type Buffer struct {
	slabs    []*slab
	length   int
	reserved []reservation
}

// New returns an empty owned buffer.
func New() *Buffer {
	return &Buffer{}
}

// NewString returns an owned buffer containing a copy of s.
func NewString(s string) *Buffer {
	b := New()
	b.AddString(s)
	return b
}

// NewBytes returns an owned buffer containing a copy of data.
func NewBytes(data []byte) *Buffer {
	b := New()
	b.Add(data)
	return b
}

// NewBorrowed returns a buffer that wraps data without copying. The caller
// retains ownership of data; the buffer must not outlive it and must not be
// written through while the borrow is alive.
func NewBorrowed(data []byte) *Buffer {
	b := New()
	if len(data) > 0 {
		b.slabs = append(b.slabs, &slab{mem: data[:len(data):len(data)], wpos: len(data)})
		b.length = len(data)
	}
	return b
}

// Length returns the number of readable bytes in the buffer. Reserved but
// uncommitted regions are not counted.
func (b *Buffer) Length() int { return b.length }

// Add appends a copy of data to the end of the buffer.
func (b *Buffer) Add(data []byte) {
	if len(data) == 0 {
		return
	}
	b.dropReservation()
	s := b.writableSlab(DefaultSlabSize)
	for len(data) > 0 {
		n := copy(s.mem[s.wpos:cap(s.mem)], data)
		s.mem = s.mem[:s.wpos+n]
		s.wpos += n
		b.length += n
		data = data[n:]
		if len(data) > 0 {
			s = b.newSlab(DefaultSlabSize)
		}
	}
}

// AddString appends a copy of s to the end of the buffer.
func (b *Buffer) AddString(s string) {
	b.Add([]byte(s))
}

// AddBuffer appends a copy of other's readable bytes. other is unchanged.
func (b *Buffer) AddBuffer(other *Buffer) {
	for _, s := range other.slabs {
		b.Add(s.readable())
	}
}

// Drain removes exactly n bytes from the front of the buffer.
func (b *Buffer) Drain(n int) error {
	if n < 0 || n > b.length {
		return fmt.Errorf("%w: drain %d of %d", ErrInvalidArgument, n, b.length)
	}
	b.dropReservation()
	for n > 0 {
		s := b.slabs[0]
		take := min(n, s.size())
		s.rpos += take
		b.length -= take
		n -= take
		if s.size() == 0 {
			b.slabs = b.slabs[1:]
		}
	}
	if b.length == 0 {
		b.slabs = nil
	}
	return nil
}

// RawSlices fills out with views of the readable regions in order and
// returns the number of regions needed to represent the whole buffer. When
// the return value exceeds len(out), only the first len(out) were filled.
func (b *Buffer) RawSlices(out []RawSlice) int {
	for i, s := range b.slabs {
		if i >= len(out) {
			break
		}
		out[i] = RawSlice{Data: s.readable()}
	}
	return len(b.slabs)
}

// Linearize returns a view of the first n readable bytes made contiguous,
// moving memory internally if they span slabs.
func (b *Buffer) Linearize(n int) ([]byte, error) {
	if n < 0 || n > b.length {
		return nil, fmt.Errorf("%w: linearize %d of %d", ErrInvalidArgument, n, b.length)
	}
	if n == 0 {
		return nil, nil
	}
	b.dropReservation()
	if b.slabs[0].size() >= n {
		return b.slabs[0].readable()[:n], nil
	}
	merged := &slab{mem: make([]byte, 0, n)}
	remaining := n
	for remaining > 0 {
		s := b.slabs[0]
		take := min(remaining, s.size())
		merged.mem = append(merged.mem, s.readable()[:take]...)
		s.rpos += take
		remaining -= take
		if s.size() == 0 {
			b.slabs = b.slabs[1:]
		}
	}
	merged.wpos = n
	b.slabs = append([]*slab{merged}, b.slabs...)
	return merged.readable(), nil
}

// Move transfers all of src's bytes to the end of b without copying. src is
// empty afterwards.
func (b *Buffer) Move(src *Buffer) {
	if src.length == 0 {
		return
	}
	b.dropReservation()
	src.dropReservation()
	b.slabs = append(b.slabs, src.slabs...)
	b.length += src.length
	src.slabs = nil
	src.length = 0
}

// MoveN transfers exactly n bytes from the front of src to the end of b.
// Whole slabs transfer without copying; a slab split at the boundary shares
// its backing array between the two buffers.
func (b *Buffer) MoveN(src *Buffer, n int) error {
	if n < 0 || n > src.length {
		return fmt.Errorf("%w: move %d of %d", ErrInvalidArgument, n, src.length)
	}
	b.dropReservation()
	src.dropReservation()
	for n > 0 {
		s := src.slabs[0]
		if s.size() <= n {
			src.slabs = src.slabs[1:]
			b.slabs = append(b.slabs, s)
			n -= s.size()
			b.length += s.size()
			src.length -= s.size()
			continue
		}
		// Full-capacity aliasing would let the destination reserve into
		// memory the source still reads; cap the split at the boundary.
		part := &slab{mem: s.mem[: s.rpos+n : s.rpos+n], rpos: s.rpos, wpos: s.rpos + n}
		s.rpos += n
		b.slabs = append(b.slabs, part)
		b.length += n
		src.length -= n
		n = 0
	}
	if src.length == 0 {
		src.slabs = nil
	}
	return nil
}

// Reserve fills between 1 and len(iovecs) entries with writable regions
// whose total capacity is at least minimum, and returns the number filled.
// The regions become readable only after Commit; any other mutating call
// discards them.
func (b *Buffer) Reserve(minimum int, iovecs []RawSlice) int {
	if len(iovecs) == 0 {
		return 0
	}
	b.dropReservation()
	filled := 0
	total := 0
	if len(b.slabs) > 0 {
		// With a single iovec a short tail cannot satisfy the minimum, so
		// skip it and hand out one fresh slab instead.
		if last := b.slabs[len(b.slabs)-1]; last.tail() > 0 && (len(iovecs) > 1 || last.tail() >= minimum) {
			b.reserved = append(b.reserved, reservation{sl: last, off: last.wpos, cap: last.tail()})
			iovecs[filled] = RawSlice{Data: last.mem[last.wpos:cap(last.mem)]}
			total += last.tail()
			filled++
		}
	}
	for total < minimum && filled < len(iovecs) {
		size := max(DefaultSlabSize, minimum-total)
		s := &slab{mem: make([]byte, 0, size)}
		b.slabs = append(b.slabs, s)
		b.reserved = append(b.reserved, reservation{sl: s, off: 0, cap: size})
		iovecs[filled] = RawSlice{Data: s.mem[0:cap(s.mem)]}
		total += size
		filled++
	}
	return filled
}

// Commit makes the bytes written into previously reserved regions part of
// the readable queue. iovecs must be a prefix of the regions returned by the
// matching Reserve call, each trimmed to the length actually used.
func (b *Buffer) Commit(iovecs []RawSlice) {
	for i, iov := range iovecs {
		if i >= len(b.reserved) {
			break
		}
		r := b.reserved[i]
		used := min(len(iov.Data), r.cap)
		r.sl.mem = r.sl.mem[:r.off+used]
		r.sl.wpos = r.off + used
		b.length += used
	}
	b.reserved = nil
	b.pruneEmpty()
}

// Search returns the first index at or after from where needle occurs, or
// -1 when there is no occurrence.
func (b *Buffer) Search(needle []byte, from int) int {
	if len(needle) == 0 {
		if from > b.length {
			return -1
		}
		return from
	}
	if from < 0 || from+len(needle) > b.length {
		return -1
	}
	// Candidate positions are checked byte-wise across slab boundaries. The
	// queue is small in practice (socket read chunks), so the scan is linear.
	first := needle[0]
	for i := from; i+len(needle) <= b.length; i++ {
		if b.byteAt(i) != first {
			continue
		}
		match := true
		for j := 1; j < len(needle); j++ {
			if b.byteAt(i+j) != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Bytes returns a copy of all readable bytes. Intended for tests and
// diagnostics, not the data path.
func (b *Buffer) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(b.length)
	for _, s := range b.slabs {
		buf.Write(s.readable())
	}
	return buf.Bytes()
}

// String returns the readable bytes as a string.
func (b *Buffer) String() string { return string(b.Bytes()) }

func (b *Buffer) byteAt(i int) byte {
	for _, s := range b.slabs {
		if i < s.size() {
			return s.mem[s.rpos+i]
		}
		i -= s.size()
	}
	panic("buffer: index out of range")
}

// writableSlab returns the last slab if it has tail capacity, or a new slab
// sized for hint.
func (b *Buffer) writableSlab(hint int) *slab {
	if len(b.slabs) > 0 {
		if last := b.slabs[len(b.slabs)-1]; last.tail() > 0 {
			return last
		}
	}
	return b.newSlab(hint)
}

func (b *Buffer) newSlab(hint int) *slab {
	s := &slab{mem: make([]byte, 0, max(DefaultSlabSize, hint))}
	b.slabs = append(b.slabs, s)
	return s
}

// dropReservation discards any outstanding reserved regions and releases
// empty slabs that were allocated only to back them.
func (b *Buffer) dropReservation() {
	if b.reserved == nil {
		return
	}
	b.reserved = nil
	b.pruneEmpty()
}

func (b *Buffer) pruneEmpty() {
	kept := b.slabs[:0]
	for _, s := range b.slabs {
		if s.size() > 0 {
			kept = append(kept, s)
		}
	}
	b.slabs = kept
	if len(b.slabs) == 0 {
		b.slabs = nil
	}
}
