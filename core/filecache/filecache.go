// Package filecache maintains a map from file names to their contents, held
// in memory as Buffers. The sum of all cached contents never exceeds the
// size the cache was built with.
//
// Pinning a file that is already cached is the fast path: a read lock on the
// map plus an atomic increment of the node's pin count. The increment is
// safe under the read lock because eviction needs the write lock, so no node
// can disappear while a hit is in flight.
//
// A miss is slower but expected to be rarer: the file is loaded without any
// lock held, then the write lock is taken to insert the node. Eviction walks
// the nodes in FIFO order and removes the unpinned ones until enough space
// was cleared; if not enough unpinned space exists, the pin fails.
//
// Usage:
//
//	cache := filecache.New(50 << 20)
//
//	h, buf, err := cache.Pin("a_file.html")
//	switch {
//	case h != nil:
//	    // read contents of buf, then cache.Unpin(h)
//	case err == nil:
//	    // no unpinned room; read the file on your own
//	default:
//	    // err is the open/read failure
//	}
//
// Pin and Unpin are safe from any goroutine. Destroying the cache while
// pins are outstanding is not.
package filecache

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/reactor-server/core/buffer"
)

// Handle identifies a pinned cache entry. The zero value (nil) means the pin
// failed. The buffer returned alongside a handle stays valid until Unpin.
type Handle *node

type node struct {
	path string
	buf  *buffer.Buffer
	size int64

	pinCount atomic.Int64

	// FIFO list links; guarded by the cache's write lock.
	prev, next *node
}

// FileCache is a pinned in-memory file cache with FIFO eviction.
type FileCache struct {
	maxSize int64

	mu    sync.RWMutex
	nodes map[string]*node
	// FIFO of nodes in insertion order: head is oldest, first in line
	// for eviction; new nodes append at tail.
	head, tail *node

	bytesUsed atomic.Int64
	pins      atomic.Int64
	hits      atomic.Int64
	failed    atomic.Int64
}

// New creates a cache that holds at most maxSize bytes of file contents.
func New(maxSize int64) *FileCache {
	return &FileCache{
		maxSize: maxSize,
		nodes:   make(map[string]*node),
	}
}

// Pin returns the cached contents of path, loading the file on a miss. The
// returned buffer must not be consumed and stays valid until Unpin.
//
// Three outcomes:
//   - handle non-nil: hit (or a load that succeeded); buf is the contents.
//   - handle nil, err nil: no unpinned room for the file (or a concurrent
//     load won the insert); the caller should read the file on its own.
//   - handle nil, err non-nil: the file could not be opened or read.
func (fc *FileCache) Pin(path string) (Handle, *buffer.Buffer, error) {
	// The short path: the file is loaded already.
	fc.mu.RLock()
	if n, ok := fc.nodes[path]; ok {
		// Incrementing under the read lock is fine: eviction requires
		// the write lock, so the node can't vanish between the lookup
		// and the increment.
		n.pinCount.Add(1)
		fc.mu.RUnlock()

		fc.pins.Add(1)
		fc.hits.Add(1)
		return n, n.buf, nil
	}
	fc.mu.RUnlock()

	return fc.load(path)
}

// load brings a file into the cache. More than one goroutine may be loading
// the same path, since no lock is held during the file read; holding the
// write lock instead would stall every reader behind disk I/O. The trade-off
// is that a loser of the insert race throws its copy away.
func (fc *FileCache) load(path string) (Handle, *buffer.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		logrus.Warnf("filecache: could not open %s: %v", path, err)
		fc.pins.Add(1)
		fc.failed.Add(1)
		return nil, nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		fc.pins.Add(1)
		fc.failed.Add(1)
		return nil, nil, err
	}
	size := st.Size()

	// Make room if there isn't any.
	if fc.maxSize-fc.bytesUsed.Load() < size {
		if !fc.evict(size) {
			// Not enough available or unpinned space.
			fc.pins.Add(1)
			fc.failed.Add(1)
			return nil, nil, nil
		}
	}

	buf := buffer.New()
	var loaded int64
	for loaded < size {
		buf.Reserve(buffer.BlockSize)
		n, err := f.Read(buf.WriteSlice())
		if n > 0 {
			buf.Advance(n)
			loaded += int64(n)
			continue
		}
		if err != nil {
			logrus.Errorf("filecache: can't read %s: %v", path, err)
			fc.pins.Add(1)
			fc.failed.Add(1)
			return nil, nil, err
		}
		// EOF before the stat size: the file changed under us.
		logrus.Warnf("filecache: %s changed while reading", path)
		break
	}

	newNode := &node{path: path, buf: buf, size: loaded}
	newNode.pinCount.Store(1)

	fc.mu.Lock()
	if _, exists := fc.nodes[path]; exists {
		// Another load won the race; discard this copy.
		fc.mu.Unlock()
		fc.pins.Add(1)
		fc.failed.Add(1)
		return nil, nil, nil
	}
	fc.nodes[path] = newNode
	fc.listAppend(newNode)
	fc.mu.Unlock()

	fc.pins.Add(1)
	fc.bytesUsed.Add(loaded)
	return newNode, buf, nil
}

// Unpin releases one pin on h. Unpinned entries become eligible for
// eviction.
func (fc *FileCache) Unpin(h Handle) {
	if h == nil {
		return
	}
	n := (*node)(h)
	if n.pinCount.Add(-1) < 0 {
		logrus.Fatalf("filecache: unpin of %s without a matching pin", n.path)
	}
}

// evict walks the FIFO and removes unpinned nodes until at least need bytes
// were reclaimed. Returns false if the walk could not free enough.
func (fc *FileCache) evict(need int64) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.head == nil {
		return false
	}

	// Signed arithmetic throughout: remaining may well go negative when
	// the last evicted file overshoots.
	remaining := need
	var evicted int64

	for n := fc.head; n != nil && remaining > 0; {
		next := n.next
		if n.pinCount.Load() == 0 {
			evicted += n.size
			remaining -= n.size
			delete(fc.nodes, n.path)
			fc.listRemove(n)
		}
		n = next
	}

	fc.bytesUsed.Add(-evicted)
	return remaining <= 0
}

// listAppend and listRemove maintain the intrusive FIFO; callers hold the
// write lock.

func (fc *FileCache) listAppend(n *node) {
	n.prev = fc.tail
	n.next = nil
	if fc.tail != nil {
		fc.tail.next = n
	} else {
		fc.head = n
	}
	fc.tail = n
}

func (fc *FileCache) listRemove(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		fc.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		fc.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

// Accessors.

// MaxSize returns the cache capacity in bytes.
func (fc *FileCache) MaxSize() int64 { return fc.maxSize }

// BytesUsed returns the bytes currently cached, pinned or not.
func (fc *FileCache) BytesUsed() int64 { return fc.bytesUsed.Load() }

// Pins returns the total number of pin requests.
func (fc *FileCache) Pins() int64 { return fc.pins.Load() }

// Hits returns how many pin requests were hits.
func (fc *FileCache) Hits() int64 { return fc.hits.Load() }

// Failed returns how many pin requests failed.
func (fc *FileCache) Failed() int64 { return fc.failed.Load() }
