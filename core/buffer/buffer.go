// Package buffer implements a chunked streaming byte buffer shared between a
// producer and a consumer.
//
// A Buffer is a sequence of fixed-size chunks that grows and shrinks with the
// amount of unread data. The producer always writes into the newest chunk,
// adding chunks as needed; the consumer always reads from the oldest chunk,
// which is discarded once fully read.
//
//	          write point (first empty byte)
//	          v
//	AAAAA_AAA__
//	^
//	read point (first filled byte)
//
// Typical producers push data that came from a socket for a consumer to parse,
// or push file contents for a consumer to send down a socket.
//
// Thread safety: strictly speaking there is none, so access should be
// synchronized externally. There is one supported opportunity for overlap: a
// consumer may read the area returned by ReadSlice while the producer writes
// new data past it. The producer publishes each chunk's byte count with a
// release store and the consumer observes it with an acquire load, so bytes
// become visible to ReadSize/ReadSlice and the iterator only after they were
// written. Every call that mutates the chunk sequence itself (Consume, a
// Reserve that allocates, Write past the current chunk, AppendFrom) must
// still be serialized with the producer.
//
// The largest piece that can be written or read in one step is one chunk of
// BlockSize bytes.
package buffer

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// BlockSize is the size of one chunk, the unit of Buffer allocation.
const BlockSize = 4096

type position struct {
	idx int // chunk number
	off int // offset within the chunk
}

// Buffer is a FIFO byte stream backed by a deque of BlockSize chunks.
// The zero value is not usable; call New.
type Buffer struct {
	chunks [][]byte
	fill   []int64 // bytes written into the corresponding chunk; atomic

	wpos position
	rpos position
}

// loadFill is the consumer's acquire side of the fill publication: it pairs
// with addFill, which only bumps a chunk's count after the bytes themselves
// were copied in.
func (b *Buffer) loadFill(i int) int { return int(atomic.LoadInt64(&b.fill[i])) }

// addFill publishes n more bytes in chunk i. Only the single producer
// writes fill, so a plain read-modify-write is enough.
func (b *Buffer) addFill(i, n int) {
	atomic.StoreInt64(&b.fill[i], atomic.LoadInt64(&b.fill[i])+int64(n))
}

// New returns an empty Buffer with one allocated chunk.
func New() *Buffer {
	b := &Buffer{}
	b.wpos = b.addChunk()
	b.rpos = b.wpos
	return b
}

// Reserve makes sure at least n contiguous bytes are available in the current
// write chunk, adding a new chunk if need be. It returns false iff n exceeds
// BlockSize. If the buffer was fully consumed, reserving may also reclaim the
// empty prefix. Calling Reserve before writing is optional provided the
// producer won't write more than WriteSize bytes.
func (b *Buffer) Reserve(n int) bool {
	if n > BlockSize {
		return false
	}

	// Current write chunk has room enough.
	if BlockSize-b.wpos.off >= n {
		return true
	}

	// If the current chunk was fully consumed already, move the read
	// position along to the chunk about to be allocated.
	shouldAdvance := b.rpos == b.wpos

	b.wpos = b.addChunk()
	if shouldAdvance {
		b.rpos = b.wpos
		b.dropChunks(1)
	}

	return true
}

// WriteSize returns the size of the available writing area in the current
// chunk.
func (b *Buffer) WriteSize() int { return BlockSize - b.wpos.off }

// WriteSlice returns the available writing area of the current chunk. Bytes
// copied into it become part of the stream only after Advance.
func (b *Buffer) WriteSlice() []byte {
	return b.chunks[b.wpos.idx][b.wpos.off:BlockSize]
}

// Advance commits n bytes previously copied into WriteSlice. It returns false
// if n is not positive or exceeds the current chunk's remaining capacity.
func (b *Buffer) Advance(n int) bool {
	if n <= 0 {
		return false
	}
	if n <= b.WriteSize() {
		b.wpos.off += n
		b.addFill(b.wpos.idx, n)
		return true
	}
	return false
}

// Write appends p to the stream, allocating chunks as needed. It is
// equivalent to reserving, copying into WriteSlice and advancing, repeated
// across chunk boundaries.
func (b *Buffer) Write(p []byte) {
	for len(p) > 0 {
		n := copy(b.WriteSlice(), p)
		if n == 0 {
			b.wpos = b.addChunk()
			continue
		}
		b.addFill(b.wpos.idx, n)
		b.wpos.off += n
		p = p[n:]

		if len(p) > 0 || b.wpos.off == BlockSize {
			b.wpos = b.addChunk()
		}
	}
}

// WriteString appends s to the stream.
func (b *Buffer) WriteString(s string) { b.Write([]byte(s)) }

// AppendFrom moves all chunks of other into b. The source must never have
// been consumed; it is left empty and reusable.
func (b *Buffer) AppendFrom(other *Buffer) {
	if other.isConsumed() {
		logrus.Fatalf("buffer: can't append from consumed buffer")
		return
	}

	// Anything to append from?
	if other.ReadSize() == 0 {
		return
	}

	// Avoid appending empty chunks or appending after one.
	lastChunk := b.maybeRemoveLastChunk()
	otherLastChunk := other.maybeRemoveLastChunk()

	b.chunks = append(b.chunks, other.chunks...)
	b.fill = append(b.fill, other.fill...)

	// If the last appended chunk is full, add a new (or the saved) chunk.
	if b.loadFill(len(b.fill)-1) == BlockSize {
		if lastChunk == nil {
			b.addChunk()
		} else {
			b.chunks = append(b.chunks, lastChunk)
			b.fill = append(b.fill, 0)
		}
	}

	// Adjust the read position if it sat at end-of-buffer before.
	if b.ReadSize() == 0 {
		b.rpos.idx++
		b.rpos.off = 0
	}

	// The write position lands on the new ending chunk.
	b.wpos.idx = len(b.chunks) - 1
	b.wpos.off = b.loadFill(len(b.fill) - 1)

	// Leave other empty and ready for reuse.
	other.chunks = nil
	other.fill = nil
	if otherLastChunk == nil {
		other.wpos = other.addChunk()
	} else {
		other.chunks = append(other.chunks, otherLastChunk)
		other.fill = append(other.fill, 0)
		other.wpos = position{0, 0}
	}
	other.rpos = other.wpos
}

// CopyFrom duplicates the live span of other into b; other is not changed.
// The source must never have been consumed.
func (b *Buffer) CopyFrom(other *Buffer) {
	if other.isConsumed() {
		logrus.Fatalf("buffer: can't copy from consumed buffer")
		return
	}

	if other.ReadSize() == 0 {
		return
	}

	for i := range other.chunks {
		// The first chunk from other may fit in the last chunk of b.
		n := other.loadFill(i)
		if i != 0 || n > b.WriteSize() {
			b.wpos = b.addChunk()
		}

		copy(b.chunks[b.wpos.idx][b.wpos.off:], other.chunks[i][:n])
		b.addFill(b.wpos.idx, n)
		b.wpos.off += n
	}

	if b.wpos.off == BlockSize {
		b.wpos = b.addChunk()
	}
}

// ReadSize returns the number of contiguous bytes available for reading in
// the current chunk. More data may follow in later chunks.
func (b *Buffer) ReadSize() int { return b.loadFill(b.rpos.idx) - b.rpos.off }

// ReadSlice returns the contiguous readable area of the current chunk.
func (b *Buffer) ReadSlice() []byte {
	return b.chunks[b.rpos.idx][b.rpos.off:b.loadFill(b.rpos.idx)]
}

// Consume advances the read position by n bytes, dropping fully consumed
// chunks.
func (b *Buffer) Consume(n int) {
	drop := 0

	// Consume chunks before the write chunk.
	for n > 0 && b.rpos.idx < b.wpos.idx {
		m := min(n, b.ReadSize())
		n -= m
		b.rpos.off += m

		if b.ReadSize() == 0 {
			drop++
			b.rpos.idx++
			b.rpos.off = 0
		}
	}

	// Consume within the write chunk itself.
	if n > 0 {
		b.rpos.off += min(n, b.ReadSize())
	}

	b.dropChunks(drop)
}

// ByteCount returns the total number of unread bytes across all chunks.
func (b *Buffer) ByteCount() int {
	count := b.ReadSize()
	for i := b.rpos.idx + 1; i < len(b.fill); i++ {
		count += b.loadFill(i)
	}
	return count
}

// NumChunks returns the number of chunks currently allocated.
func (b *Buffer) NumChunks() int { return len(b.chunks) }

func (b *Buffer) addChunk() position {
	b.chunks = append(b.chunks, make([]byte, BlockSize))
	b.fill = append(b.fill, 0)
	return position{len(b.chunks) - 1, 0}
}

func (b *Buffer) dropChunks(n int) {
	if n == 0 {
		return
	}
	b.wpos.idx -= n
	b.rpos.idx -= n
	b.chunks = b.chunks[n:]
	b.fill = b.fill[n:]
}

// maybeRemoveLastChunk pops the write chunk if it is empty and returns it.
// The write position is left dangling; the caller must fix it.
func (b *Buffer) maybeRemoveLastChunk() []byte {
	if b.loadFill(b.wpos.idx) != 0 {
		return nil
	}
	last := b.chunks[b.wpos.idx]
	b.chunks = b.chunks[:len(b.chunks)-1]
	b.fill = b.fill[:len(b.fill)-1]
	return last
}

func (b *Buffer) isConsumed() bool {
	return b.rpos.idx != 0 || b.rpos.off != 0
}
