package buffer

// Iterator peeks at buffered content as if it were contiguous. It never
// consumes: after parsing, callers report how far they got via BytesRead and
// Consume on the Buffer. The iterator has a fast path while there is budget
// left inside the current chunk and a slow path to cross chunk boundaries.
type Iterator struct {
	b   *Buffer
	pos position

	bytesRead  int
	bytesTotal int

	budget     int    // at least this many positions left in chunk
	chunkStart []byte // budget refers to this base
}

// Begin returns an iterator positioned at the read point.
func (b *Buffer) Begin() *Iterator {
	it := &Iterator{
		b:          b,
		pos:        b.rpos,
		bytesTotal: b.ByteCount(),
		chunkStart: b.chunks[b.rpos.idx],
	}
	it.budget = it.getBudget()
	return it
}

// EOB reports whether the iterator reached the end of buffered data.
func (it *Iterator) EOB() bool {
	if it.budget > 0 {
		return false
	}
	return it.pos == it.b.wpos
}

// Next moves the iterator one byte forward.
func (it *Iterator) Next() {
	// Fast path: there's certainly content left in this chunk.
	if it.budget > 1 {
		it.budget--
		it.pos.off++
		it.bytesRead++
		return
	}
	it.slowNext()
}

// Byte returns the byte at the current position.
func (it *Iterator) Byte() byte { return it.chunkStart[it.pos.off] }

// BytesRead returns how many bytes the iterator has stepped over.
func (it *Iterator) BytesRead() int { return it.bytesRead }

// BytesTotal returns the number of unread bytes at the time Begin was called.
func (it *Iterator) BytesTotal() int { return it.bytesTotal }

func (it *Iterator) getBudget() int {
	// As many positions as are left until the end of this chunk. The
	// acquire load pairs with the producer's release publish of fill.
	return it.b.loadFill(it.pos.idx) - it.pos.off
}

func (it *Iterator) slowNext() {
	// Try advancing in the current chunk first.
	if it.pos.off < it.b.loadFill(it.pos.idx) {
		it.pos.off++
		it.bytesRead++

		// Fell off the chunk, or the remainder of the chunk is empty?
		if it.pos.off == it.b.loadFill(it.pos.idx) && it.pos.idx < it.b.wpos.idx {
			it.pos.idx++
			it.pos.off = 0
			it.chunkStart = it.b.chunks[it.pos.idx]
		}

		it.budget = it.getBudget()
	}
}
