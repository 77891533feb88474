// Package stats approximates requests-per-second without cross-core
// contention.
//
// One rolling second is split into NumSlots bins. Each worker owns a private,
// cache-line padded record of bins that only it writes; a reader sums the
// bins that still fall inside the last second across all workers, taking no
// locks. Stale reads can undercount, but never overcount: a bin is always
// zeroed before it is reused for a new stretch of time.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Ticks is a monotonic timestamp in nanoseconds.
type Ticks int64

var base = time.Now()

// Now returns the current tick count.
func Now() Ticks { return Ticks(time.Since(base)) }

const (
	// NumSlots is how many bins one second is divided into.
	NumSlots = 10

	// TicksPerSecond is the tick resolution.
	TicksPerSecond Ticks = Ticks(time.Second)

	// TicksPerSlot is the width of one bin.
	TicksPerSlot = TicksPerSecond / NumSlots
)

// counts is one worker's circular vector of per-bin totals. basePos/baseTick
// track the bin the worker last wrote into and when that bin started. The
// struct is padded so two workers never share a cache line.
type counts struct {
	basePos  atomic.Uint32
	baseTick atomic.Int64
	val      [NumSlots]atomic.Uint32

	_ [64]byte
}

// RequestStats tracks request completions per worker.
type RequestStats struct {
	numWorkers int
	counts     []counts
}

// New creates stats records for numWorkers workers.
func New(numWorkers int) *RequestStats {
	return &RequestStats{
		numWorkers: numWorkers,
		counts:     make([]counts, numWorkers),
	}
}

// Finished records that worker completed one request at tick now. Only the
// owning worker may call this for its index; different workers may call it
// concurrently for their own indexes.
func (s *RequestStats) Finished(worker int, now Ticks) {
	if worker < 0 || worker >= s.numWorkers {
		logrus.Fatalf("stats: bad worker number %d", worker)
		return
	}
	c := &s.counts[worker]

	// Has at least one bin expired since this worker's last request?
	baseTick := Ticks(c.baseTick.Load())
	if now > baseTick+TicksPerSlot {
		newPos := posForTick(now)

		// If the last request came in more than a second ago, all the
		// bins are stale. Otherwise only those between the last
		// request and now are.
		if baseTick+TicksPerSecond < now {
			for i := range c.val {
				c.val[i].Store(0)
			}
		} else {
			for pos := incPos(c.basePos.Load()); ; pos = incPos(pos) {
				c.val[pos].Store(0)
				if pos == newPos {
					break
				}
			}
		}

		c.basePos.Store(newPos)
		c.baseTick.Store(int64(roundTick(now)))
	}

	c.val[c.basePos.Load()].Add(1)
}

// LastSec returns the number of requests completed in the second finishing
// roughly at now, summed across workers. The reader takes no locks; the
// result may undercount under concurrent updates but never overcounts.
func (s *RequestStats) LastSec(now Ticks) uint32 {
	var acc uint32

	for i := range s.counts {
		c := &s.counts[i]

		// A worker whose last request is over a second old contributes
		// nothing; skip it rather than read expired bins.
		baseTick := Ticks(c.baseTick.Load())
		if now-baseTick > TicksPerSecond {
			continue
		}

		// posForTick(now - 1s) == posForTick(now), so walking from the
		// bin after now's position up to the worker's current bin
		// covers exactly the live window.
		basePos := c.basePos.Load()
		for pos := incPos(posForTick(now)); ; pos = incPos(pos) {
			acc += c.val[pos].Load()
			if pos == basePos {
				break
			}
		}
	}

	return acc
}

func incPos(p uint32) uint32 { return (p + 1) % NumSlots }

func posForTick(t Ticks) uint32 { return uint32(t / TicksPerSlot % NumSlots) }

func roundTick(t Ticks) Ticks { return t - t%TicksPerSlot }
