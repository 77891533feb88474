package pools

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsEverything(t *testing.T) {
	p := New(4)

	var counter atomic.Int64
	for i := 0; i < 200; i++ {
		p.AddTask(func() {
			counter.Add(1)
		})
	}

	// Stop joins the workers after everything submitted ahead of it ran.
	p.Stop()

	if got := counter.Load(); got != 200 {
		t.Errorf("counter = %d after Stop, want 200", got)
	}
}

func TestPoolSingleWorkerSerializes(t *testing.T) {
	p := New(1)

	var running atomic.Int32
	var overlap atomic.Bool
	for i := 0; i < 50; i++ {
		p.AddTask(func() {
			if running.Add(1) > 1 {
				overlap.Store(true)
			}
			running.Add(-1)
		})
	}
	p.Stop()

	if overlap.Load() {
		t.Error("two tasks overlapped on a single-worker pool")
	}
}

func TestStopFromWorker(t *testing.T) {
	p := New(2)

	done := make(chan struct{})
	p.AddTask(func() {
		p.Stop()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop from inside a worker deadlocked")
	}
}

func TestStopTwice(t *testing.T) {
	p := New(2)
	p.Stop()
	p.Stop() // must be a no-op
}

func TestCountBoundsQueuedTasks(t *testing.T) {
	p := New(1)

	started := make(chan struct{})
	release := make(chan struct{})
	p.AddTask(func() {
		close(started)
		<-release
	})
	<-started

	// The only worker is blocked; everything else has to queue.
	const queued = 5
	for i := 0; i < queued; i++ {
		p.AddTask(func() {})
	}

	if got := p.Count(); got != queued {
		t.Errorf("Count = %d, want %d", got, queued)
	}

	close(release)
	p.Stop()

	if got := p.Count(); got != 0 {
		t.Errorf("Count = %d after Stop, want 0", got)
	}
}

func BenchmarkAddTask(b *testing.B) {
	p := New(8)

	var done atomic.Int64
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			p.AddTask(func() {
				done.Add(1)
			})
		}
	})

	for done.Load() < int64(b.N) {
		time.Sleep(time.Millisecond)
	}
	p.Stop()
}

func TestWorkerIdentity(t *testing.T) {
	const workers = 4
	p := New(workers)

	var bad atomic.Int32
	var wait atomic.Int32
	wait.Store(100)
	done := make(chan struct{})

	for i := 0; i < 100; i++ {
		p.AddTask(func() {
			if id := ME(); id < 0 || id >= workers {
				bad.Add(1)
			}
			if wait.Add(-1) == 0 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not finish")
	}
	p.Stop()

	if n := bad.Load(); n != 0 {
		t.Errorf("%d tasks saw an out-of-range worker id", n)
	}
	if id := ME(); id != -1 {
		t.Errorf("ME outside a worker = %d, want -1", id)
	}
}
