// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"errors"
	"math"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// schedulerSlots is the command buffer ring depth. Deep enough that the
// worker never stalls behind presentation under triple buffering.
const schedulerSlots = 4

// workItem is one unit handed to the worker. Only one of the fields is
// set per item.
type workItem struct {
	record  func(vk.CommandBuffer)
	submit  *submission
	drained chan struct{}
}

// submission asks the worker to close the current command buffer and
// hand it to the queue.
type submission struct {
	wait   vk.Semaphore
	signal vk.Semaphore
}

type schedulerSlot struct {
	buffer    vk.CommandBuffer
	fence     vk.Fence
	submitted bool
}

// NewScheduler spawns the command-recording worker on its own
// goroutine. The worker owns the command pool; the presentation
// context talks to it only through Record, WaitWorker and Flush.
func NewScheduler(device *Device) (*Scheduler, error) {
	s := &Scheduler{
		device:   device,
		work:     make(chan workItem, 64),
		finished: make(chan struct{}),
	}
	if err := s.createSlots(); err != nil {
		return nil, err
	}
	go s.worker()
	return s, nil
}

// Scheduler records and submits GPU commands on a background worker,
// exposing explicit synchronization points to the presentation loop.
// pendingWait is only touched from the presentation context, between
// a Draw and the Flush that consumes it.
type Scheduler struct {
	device   *Device
	work     chan workItem
	finished chan struct{}

	pool    vk.CommandPool
	slots   [schedulerSlots]schedulerSlot
	current int
	begun   bool

	pendingWait vk.Semaphore
}

func (s *Scheduler) createSlots() error {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: s.device.QueueIndex(),
	}
	if err := vk.Error(vk.CreateCommandPool(s.device.Logical(), &cpci, nil, &s.pool)); err != nil {
		return errors.New("vk.CreateCommandPool(): " + err.Error())
	}

	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        s.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: schedulerSlots,
	}
	buffers := make([]vk.CommandBuffer, schedulerSlots)
	if err := vk.Error(vk.AllocateCommandBuffers(s.device.Logical(), &cbai, buffers)); err != nil {
		return errors.New("vk.AllocateCommandBuffers(): " + err.Error())
	}

	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	for i := range s.slots {
		s.slots[i].buffer = buffers[i]
		if err := vk.Error(vk.CreateFence(s.device.Logical(), &fci, nil, &s.slots[i].fence)); err != nil {
			return errors.New("vk.CreateFence(): " + err.Error())
		}
	}
	return nil
}

func (s *Scheduler) worker() {
	defer close(s.finished)
	for item := range s.work {
		switch {
		case item.record != nil:
			s.beginSlot()
			item.record(s.slots[s.current].buffer)
		case item.submit != nil:
			s.submitSlot(item.submit)
		case item.drained != nil:
			close(item.drained)
		}
	}
}

// beginSlot opens the current slot's command buffer, waiting out any
// previous submission that still owns it.
func (s *Scheduler) beginSlot() {
	if s.begun {
		return
	}
	slot := &s.slots[s.current]
	if slot.submitted {
		vk.WaitForFences(s.device.Logical(), 1, []vk.Fence{slot.fence}, vk.True, math.MaxUint64)
		vk.ResetFences(s.device.Logical(), 1, []vk.Fence{slot.fence})
		slot.submitted = false
	}

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(slot.buffer, &cbbi)); err != nil {
		log.Error("vk.BeginCommandBuffer(): " + err.Error())
		return
	}
	s.begun = true
}

func (s *Scheduler) submitSlot(sub *submission) {
	// An empty flush still signals, so presentation never waits on
	// a semaphore nothing will fire.
	s.beginSlot()

	slot := &s.slots[s.current]
	if err := vk.Error(vk.EndCommandBuffer(slot.buffer)); err != nil {
		log.Error("vk.EndCommandBuffer(): " + err.Error())
		return
	}

	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{slot.buffer},
	}
	if sub.wait != vk.NullSemaphore {
		si.WaitSemaphoreCount = 1
		si.PWaitSemaphores = []vk.Semaphore{sub.wait}
		si.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
	}
	if sub.signal != vk.NullSemaphore {
		si.SignalSemaphoreCount = 1
		si.PSignalSemaphores = []vk.Semaphore{sub.signal}
	}

	if err := vk.Error(vk.QueueSubmit(s.device.Queue(), 1, []vk.SubmitInfo{si}, slot.fence)); err != nil {
		log.Error("vk.QueueSubmit(): " + err.Error())
		return
	}
	slot.submitted = true
	s.begun = false
	s.current = (s.current + 1) % schedulerSlots
}

// Record queues command-recording work for the worker.
func (s *Scheduler) Record(record func(vk.CommandBuffer)) {
	s.work <- workItem{record: record}
}

// WaitWorker blocks the presentation context until the worker drained
// all work queued before the call. It is the safe point to acquire a
// new presentable image.
func (s *Scheduler) WaitWorker() {
	drained := make(chan struct{})
	s.work <- workItem{drained: drained}
	<-drained
}

// SetWaitSemaphore arranges for the next Flush to order its submission
// after the given semaphore, typically the swapchain's image
// acquisition. Consumed by the flush.
func (s *Scheduler) SetWaitSemaphore(wait vk.Semaphore) {
	s.pendingWait = wait
}

// Flush submits all commands recorded since the last flush, signalling
// signal on completion. Fire-and-forget: presentation is ordered after
// the work through the semaphore, not by blocking here.
func (s *Scheduler) Flush(signal vk.Semaphore) {
	wait := s.pendingWait
	s.pendingWait = vk.NullSemaphore
	s.work <- workItem{submit: &submission{wait: wait, signal: signal}}
}

// Stop drains and joins the worker, then releases the pool. The device
// must still be alive.
func (s *Scheduler) Stop() {
	s.WaitWorker()
	close(s.work)
	<-s.finished

	for i := range s.slots {
		vk.DestroyFence(s.device.Logical(), s.slots[i].fence, nil)
	}
	vk.DestroyCommandPool(s.device.Logical(), s.pool, nil)
}
