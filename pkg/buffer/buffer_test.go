package buffer

import (
	"bytes"
	"errors"
	"testing"
)

func TestAddDrainRoundTrip(t *testing.T) {
	b := New()
	payload := []byte("hello world")
	b.Add(payload)

	if b.Length() != len(payload) {
		t.Fatalf("Length() = %d, want %d", b.Length(), len(payload))
	}
	if got := b.String(); got != "hello world" {
		t.Fatalf("String() = %q, want %q", got, "hello world")
	}

	if err := b.Drain(len(payload)); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if b.Length() != 0 {
		t.Fatalf("Length() after drain = %d, want 0", b.Length())
	}
}

func TestAddPreservesContentAcrossSlabs(t *testing.T) {
	b := New()
	big := bytes.Repeat([]byte("abcdefgh"), 2048) // 16KiB, several slabs
	b.Add(big)

	if b.Length() != len(big) {
		t.Fatalf("Length() = %d, want %d", b.Length(), len(big))
	}
	if !bytes.Equal(b.Bytes(), big) {
		t.Fatal("contents differ after multi-slab add")
	}

	var out [1]RawSlice
	if needed := b.RawSlices(out[:]); needed < 2 {
		t.Fatalf("expected multiple slices for 16KiB add, got %d", needed)
	}
}

func TestDrainPartial(t *testing.T) {
	b := NewString("abcdef")
	if err := b.Drain(2); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := b.String(); got != "cdef" {
		t.Fatalf("after Drain(2) = %q, want %q", got, "cdef")
	}
}

func TestDrainPastEnd(t *testing.T) {
	b := NewString("abc")
	err := b.Drain(4)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Drain(4) error = %v, want ErrInvalidArgument", err)
	}
	if b.Length() != 3 {
		t.Fatalf("failed drain must not modify the buffer, length = %d", b.Length())
	}
}

func TestAddBufferLeavesSourceUnchanged(t *testing.T) {
	a := NewString("left")
	b := NewString("right")
	a.AddBuffer(b)

	if got := a.String(); got != "leftright" {
		t.Fatalf("a = %q, want %q", got, "leftright")
	}
	if got := b.String(); got != "right" {
		t.Fatalf("AddBuffer must not modify source, b = %q", got)
	}
}

func TestMove(t *testing.T) {
	a := NewString("aaa")
	b := NewString("bbb")
	a.Move(b)

	if got := a.String(); got != "aaabbb" {
		t.Fatalf("a = %q, want %q", got, "aaabbb")
	}
	if b.Length() != 0 {
		t.Fatalf("source length after Move = %d, want 0", b.Length())
	}
}

func TestMoveN(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantDst string
		wantSrc string
	}{
		{"partial", 2, "ab", "cdef"},
		{"exact slab", 6, "abcdef", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewString("abcdef")
			dst := New()
			if err := dst.MoveN(src, tt.n); err != nil {
				t.Fatalf("MoveN: %v", err)
			}
			if got := dst.String(); got != tt.wantDst {
				t.Fatalf("dst = %q, want %q", got, tt.wantDst)
			}
			if got := src.String(); got != tt.wantSrc {
				t.Fatalf("src = %q, want %q", got, tt.wantSrc)
			}
		})
	}
}

func TestMoveNSplitDoesNotAliasWritableTail(t *testing.T) {
	src := NewString("abcdef")
	dst := New()
	if err := dst.MoveN(src, 3); err != nil {
		t.Fatalf("MoveN: %v", err)
	}

	// Appending to dst after a split must not clobber bytes src still reads.
	dst.AddString("XYZ")
	if got := src.String(); got != "def" {
		t.Fatalf("src corrupted by write to dst: %q", got)
	}
	if got := dst.String(); got != "abcXYZ" {
		t.Fatalf("dst = %q, want %q", got, "abcXYZ")
	}
}

func TestMoveNPastEnd(t *testing.T) {
	src := NewString("ab")
	dst := New()
	if err := dst.MoveN(src, 3); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("MoveN(3) error = %v, want ErrInvalidArgument", err)
	}
}

func TestReserveCommit(t *testing.T) {
	b := New()
	var iovecs [2]RawSlice
	filled := b.Reserve(100, iovecs[:])
	if filled < 1 {
		t.Fatalf("Reserve filled %d regions, want >= 1", filled)
	}
	total := 0
	for i := 0; i < filled; i++ {
		total += len(iovecs[i].Data)
	}
	if total < 100 {
		t.Fatalf("reserved capacity %d, want >= 100", total)
	}
	if b.Length() != 0 {
		t.Fatalf("uncommitted reservation counted toward length: %d", b.Length())
	}

	n := copy(iovecs[0].Data, "committed")
	iovecs[0].Data = iovecs[0].Data[:n]
	b.Commit(iovecs[:1])

	if got := b.String(); got != "committed" {
		t.Fatalf("after commit = %q, want %q", got, "committed")
	}
}

func TestReserveAfterAddUsesTail(t *testing.T) {
	b := NewString("head")
	var iovecs [2]RawSlice
	filled := b.Reserve(4, iovecs[:])
	n := copy(iovecs[0].Data, "tail")
	iovecs[0].Data = iovecs[0].Data[:n]
	b.Commit(iovecs[:filled])

	if got := b.String(); got != "headtail" {
		t.Fatalf("after tail commit = %q, want %q", got, "headtail")
	}
}

func TestUncommittedReservationIsScratch(t *testing.T) {
	b := New()
	var iovecs [2]RawSlice
	b.Reserve(10, iovecs[:])
	copy(iovecs[0].Data, "scratch")

	// Another mutation discards the pending reservation.
	b.AddString("real")
	if got := b.String(); got != "real" {
		t.Fatalf("buffer = %q, want %q", got, "real")
	}
}

func TestLinearize(t *testing.T) {
	b := New()
	b.AddString("abc")
	other := NewString("defgh")
	b.Move(other) // force a slab boundary

	lin, err := b.Linearize(6)
	if err != nil {
		t.Fatalf("Linearize: %v", err)
	}
	if string(lin) != "abcdef" {
		t.Fatalf("Linearize(6) = %q, want %q", lin, "abcdef")
	}
	if got := b.String(); got != "abcdefgh" {
		t.Fatalf("contents changed by linearize: %q", got)
	}
}

func TestLinearizePastEnd(t *testing.T) {
	b := NewString("ab")
	if _, err := b.Linearize(3); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Linearize(3) error = %v, want ErrInvalidArgument", err)
	}
}

func TestSearch(t *testing.T) {
	b := New()
	b.AddString("GET / HT")
	other := NewString("TP/1.1\r\n\r\n")
	b.Move(other)

	tests := []struct {
		name   string
		needle string
		from   int
		want   int
	}{
		{"found at start", "GET", 0, 0},
		{"spans slab boundary", "HTTP", 0, 6},
		{"crlf crlf", "\r\n\r\n", 0, 14},
		{"respects from", "T", 4, 7},
		{"not found", "POST", 0, -1},
		{"not found after from", "GET", 1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Search([]byte(tt.needle), tt.from); got != tt.want {
				t.Fatalf("Search(%q, %d) = %d, want %d", tt.needle, tt.from, got, tt.want)
			}
		})
	}
}

func TestRawSlicesRoundTrip(t *testing.T) {
	b := New()
	b.AddString("one")
	b.Move(NewString("two"))
	b.Move(NewString("three"))

	needed := b.RawSlices(nil)
	out := make([]RawSlice, needed)
	if got := b.RawSlices(out); got != needed {
		t.Fatalf("RawSlices second pass = %d, want %d", got, needed)
	}

	var rebuilt bytes.Buffer
	for _, s := range out {
		rebuilt.Write(s.Data)
	}
	if rebuilt.String() != "onetwothree" {
		t.Fatalf("round trip = %q, want %q", rebuilt.String(), "onetwothree")
	}
}

func TestBorrowed(t *testing.T) {
	backing := []byte("borrowed bytes")
	b := NewBorrowed(backing)

	if b.Length() != len(backing) {
		t.Fatalf("Length() = %d, want %d", b.Length(), len(backing))
	}
	if err := b.Drain(9); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := b.String(); got != "bytes" {
		t.Fatalf("after drain = %q, want %q", got, "bytes")
	}
}
