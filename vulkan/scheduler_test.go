// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"testing"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// newChannelScheduler runs a worker with no device resources attached,
// enough to exercise the queue discipline on its own.
func newChannelScheduler() *Scheduler {
	s := &Scheduler{
		work:     make(chan workItem, 64),
		finished: make(chan struct{}),
	}
	go s.worker()
	return s
}

// Presentation touches the shared device queue only after WaitWorker
// returns, so everything queued before it must be processed by then.
func TestWaitWorkerDrainsQueuedWork(t *testing.T) {
	s := newChannelScheduler()
	defer func() {
		close(s.work)
		<-s.finished
	}()

	queued := make([]chan struct{}, 3)
	for i := range queued {
		queued[i] = make(chan struct{})
		s.work <- workItem{drained: queued[i]}
	}

	s.WaitWorker()

	for i, ch := range queued {
		select {
		case <-ch:
		default:
			t.Errorf("item %d not processed before WaitWorker returned", i)
		}
	}
}

func TestFlushCarriesFrameSemaphores(t *testing.T) {
	s := &Scheduler{work: make(chan workItem, 64)}

	var a, r int
	acquire := vk.Semaphore(unsafe.Pointer(&a))
	render := vk.Semaphore(unsafe.Pointer(&r))

	s.SetWaitSemaphore(acquire)
	s.Flush(render)

	item := <-s.work
	if item.submit == nil {
		t.Fatal("flush must enqueue a submission")
	}
	if item.submit.wait != acquire {
		t.Error("submission must wait on the acquire semaphore")
	}
	if item.submit.signal != render {
		t.Error("submission must signal the render semaphore")
	}

	s.Flush(render)
	item = <-s.work
	if item.submit.wait != vk.NullSemaphore {
		t.Error("the acquire semaphore must be waited on exactly once")
	}
}
