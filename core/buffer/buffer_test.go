package buffer

import (
	"bytes"
	"testing"
)

func fillPattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte('a' + i%26)
	}
	return p
}

func readAll(b *Buffer) []byte {
	var out []byte
	for it := b.Begin(); !it.EOB(); it.Next() {
		out = append(out, it.Byte())
	}
	return out
}

func TestWriteReadSingleChunk(t *testing.T) {
	b := New()
	b.WriteString("hello")

	if b.ByteCount() != 5 {
		t.Errorf("ByteCount = %d, want 5", b.ByteCount())
	}
	if got := string(b.ReadSlice()); got != "hello" {
		t.Errorf("ReadSlice = %q, want %q", got, "hello")
	}
	if b.NumChunks() != 1 {
		t.Errorf("NumChunks = %d, want 1", b.NumChunks())
	}
}

func TestWriteReadManyChunks(t *testing.T) {
	src := fillPattern(3*BlockSize + 100)

	b := New()
	b.Write(src)

	if b.ByteCount() != len(src) {
		t.Fatalf("ByteCount = %d, want %d", b.ByteCount(), len(src))
	}
	if got := readAll(b); !bytes.Equal(got, src) {
		t.Errorf("round-trip mismatch: got %d bytes", len(got))
	}
}

func TestByteCountTracksWritesAndConsumes(t *testing.T) {
	b := New()
	written, consumed := 0, 0

	steps := []struct{ write, consume int }{
		{100, 0}, {BlockSize, 50}, {10, BlockSize}, {0, 60}, {5000, 2000},
	}
	for _, s := range steps {
		if s.write > 0 {
			b.Write(fillPattern(s.write))
			written += s.write
		}
		if s.consume > 0 {
			b.Consume(s.consume)
			consumed += s.consume
		}
		if b.ByteCount() != written-consumed {
			t.Fatalf("ByteCount = %d, want %d", b.ByteCount(), written-consumed)
		}
	}
}

func TestConsumeAllDropsReadChunks(t *testing.T) {
	b := New()
	b.Write(fillPattern(2*BlockSize + 10))

	b.Consume(b.ByteCount())

	if b.ReadSize() != 0 {
		t.Errorf("ReadSize = %d, want 0", b.ReadSize())
	}
	if b.ByteCount() != 0 {
		t.Errorf("ByteCount = %d, want 0", b.ByteCount())
	}
	// Only the current write chunk survives.
	if b.NumChunks() != 1 {
		t.Errorf("NumChunks = %d, want 1", b.NumChunks())
	}
}

func TestConsumePartialChunks(t *testing.T) {
	src := fillPattern(2*BlockSize + 500)
	b := New()
	b.Write(src)

	b.Consume(BlockSize + 100)

	if got := readAll(b); !bytes.Equal(got, src[BlockSize+100:]) {
		t.Errorf("remainder mismatch after partial consume")
	}
}

func TestReserveTooLarge(t *testing.T) {
	b := New()
	if b.Reserve(BlockSize + 1) {
		t.Error("Reserve(BlockSize+1) = true, want false")
	}
	if !b.Reserve(BlockSize) {
		t.Error("Reserve(BlockSize) = false, want true")
	}
}

func TestReserveAddsChunk(t *testing.T) {
	b := New()
	b.Write(fillPattern(BlockSize - 10))

	if !b.Reserve(100) {
		t.Fatal("Reserve(100) failed")
	}
	if b.WriteSize() < 100 {
		t.Errorf("WriteSize = %d after Reserve(100)", b.WriteSize())
	}
	// The partially filled chunk still holds its data.
	if b.ByteCount() != BlockSize-10 {
		t.Errorf("ByteCount = %d, want %d", b.ByteCount(), BlockSize-10)
	}
}

func TestReserveReclaimsConsumedPrefix(t *testing.T) {
	b := New()
	b.Write(fillPattern(BlockSize - 1))
	b.Consume(BlockSize - 1)

	// The write chunk is nearly full but everything was consumed, so
	// reserving may reclaim it.
	if !b.Reserve(1024) {
		t.Fatal("Reserve(1024) failed")
	}
	if b.NumChunks() != 1 {
		t.Errorf("NumChunks = %d, want 1", b.NumChunks())
	}
	if b.ByteCount() != 0 {
		t.Errorf("ByteCount = %d, want 0", b.ByteCount())
	}

	b.WriteString("fresh")
	if got := string(readAll(b)); got != "fresh" {
		t.Errorf("after reclaim got %q, want %q", got, "fresh")
	}
}

func TestAdvance(t *testing.T) {
	b := New()
	if !b.Reserve(10) {
		t.Fatal("Reserve failed")
	}
	copy(b.WriteSlice(), "0123456789")
	if !b.Advance(10) {
		t.Fatal("Advance(10) failed")
	}
	if got := string(b.ReadSlice()); got != "0123456789" {
		t.Errorf("ReadSlice = %q", got)
	}

	if b.Advance(b.WriteSize() + 1) {
		t.Error("Advance beyond WriteSize succeeded")
	}
	if b.Advance(0) {
		t.Error("Advance(0) succeeded")
	}
}

func TestAppendFrom(t *testing.T) {
	head := []byte("head:")
	tail := fillPattern(BlockSize + 900)

	dst := New()
	dst.Write(head)
	src := New()
	src.Write(tail)

	dst.AppendFrom(src)

	want := append(append([]byte{}, head...), tail...)
	if got := readAll(dst); !bytes.Equal(got, want) {
		t.Errorf("AppendFrom result mismatch: got %d bytes, want %d", len(got), len(want))
	}

	// The source is empty and reusable.
	if src.ByteCount() != 0 {
		t.Errorf("source ByteCount = %d, want 0", src.ByteCount())
	}
	src.WriteString("again")
	if got := string(readAll(src)); got != "again" {
		t.Errorf("reused source = %q, want %q", got, "again")
	}
}

func TestAppendFromIntoEmpty(t *testing.T) {
	src := New()
	src.WriteString("payload")

	dst := New()
	dst.AppendFrom(src)

	if got := string(readAll(dst)); got != "payload" {
		t.Errorf("got %q, want %q", got, "payload")
	}
}

func TestCopyFrom(t *testing.T) {
	src := New()
	data := fillPattern(2*BlockSize + 33)
	src.Write(data)

	dst := New()
	dst.WriteString("pre|")
	dst.CopyFrom(src)

	want := append([]byte("pre|"), data...)
	if got := readAll(dst); !bytes.Equal(got, want) {
		t.Errorf("CopyFrom result mismatch")
	}

	// The source is untouched.
	if src.ByteCount() != len(data) {
		t.Errorf("source ByteCount = %d, want %d", src.ByteCount(), len(data))
	}
	if got := readAll(src); !bytes.Equal(got, data) {
		t.Errorf("source changed by CopyFrom")
	}
}

func TestIteratorCrossesChunks(t *testing.T) {
	src := fillPattern(BlockSize + 10)
	b := New()
	b.Write(src)

	it := b.Begin()
	for i := 0; i < len(src); i++ {
		if it.EOB() {
			t.Fatalf("EOB after %d bytes, want %d", i, len(src))
		}
		if it.Byte() != src[i] {
			t.Fatalf("byte %d = %q, want %q", i, it.Byte(), src[i])
		}
		it.Next()
	}
	if !it.EOB() {
		t.Error("iterator not at EOB after all bytes")
	}
	if it.BytesRead() != len(src) {
		t.Errorf("BytesRead = %d, want %d", it.BytesRead(), len(src))
	}
	if it.BytesTotal() != len(src) {
		t.Errorf("BytesTotal = %d, want %d", it.BytesTotal(), len(src))
	}
}

func TestIteratorDoesNotConsume(t *testing.T) {
	b := New()
	b.WriteString("peek")

	it := b.Begin()
	for !it.EOB() {
		it.Next()
	}

	if b.ByteCount() != 4 {
		t.Errorf("ByteCount = %d after iteration, want 4", b.ByteCount())
	}
}

func TestIteratorEmptyBuffer(t *testing.T) {
	b := New()
	if it := b.Begin(); !it.EOB() {
		t.Error("empty buffer iterator not at EOB")
	}
}

func BenchmarkWriteConsume(b *testing.B) {
	piece := fillPattern(512)
	buf := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Write(piece)
		buf.Consume(len(piece))
	}
}

func BenchmarkIterator(b *testing.B) {
	buf := New()
	buf.Write(fillPattern(8 * BlockSize))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var sum byte
		for it := buf.Begin(); !it.EOB(); it.Next() {
			sum += it.Byte()
		}
		_ = sum
	}
}
