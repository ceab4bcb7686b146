// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"errors"
	"reflect"
	"testing"

	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/vizor/core"
)

// callLog records the order collaborators were driven in.
type callLog struct {
	calls []string
}

func (l *callLog) add(name string) {
	l.calls = append(l.calls, name)
}

type fakeWindow struct {
	log    *callLog
	layout core.FramebufferLayout
	shown  bool
}

func (w *fakeWindow) GetFramebufferLayout() core.FramebufferLayout { return w.layout }
func (w *fakeWindow) IsShown() bool                                { return w.shown }
func (w *fakeWindow) GetWindowInfo() core.WindowInfo               { return core.WindowInfo{} }
func (w *fakeWindow) OnFrameDisplayed()                            { w.log.add("OnFrameDisplayed") }

type fakeRasterizer struct {
	log         *callLog
	accelerated bool
}

func (r *fakeRasterizer) AccelerateDisplay(fb core.FramebufferConfig, addr uint64, stride uint32) bool {
	r.log.add("AccelerateDisplay")
	return r.accelerated
}

func (r *fakeRasterizer) TickFrame() { r.log.add("TickFrame") }

type fakeSwapchain struct {
	log *callLog

	width, height uint32
	srgb          bool

	createErr  error
	acquireErr error
	suboptimal bool
}

func (s *fakeSwapchain) Create(width, height uint32, srgb bool) error {
	s.log.add("Swapchain.Create")
	if s.createErr != nil {
		return s.createErr
	}
	s.width, s.height, s.srgb = width, height, srgb
	return nil
}

func (s *fakeSwapchain) HasFramebufferChanged(layout core.FramebufferLayout) bool {
	return layout.Width != s.width || layout.Height != s.height
}

func (s *fakeSwapchain) GetSrgbState() bool { return s.srgb }

func (s *fakeSwapchain) AcquireNextImage() (uint32, error) {
	s.log.add("AcquireNextImage")
	return 0, s.acquireErr
}

func (s *fakeSwapchain) Present(render vk.Semaphore) bool {
	s.log.add("Present")
	return s.suboptimal
}

type fakeScheduler struct {
	log *callLog
}

func (s *fakeScheduler) WaitWorker()               { s.log.add("WaitWorker") }
func (s *fakeScheduler) Flush(signal vk.Semaphore) { s.log.add("Flush") }

type fakeBlit struct {
	log *callLog

	recreateErr error
	drawErr     error
}

func (b *fakeBlit) Recreate() error {
	b.log.add("Blit.Recreate")
	return b.recreateErr
}

func (b *fakeBlit) Draw(fb core.FramebufferConfig, useAccelerated bool) (vk.Semaphore, error) {
	b.log.add("Draw")
	return vk.NullSemaphore, b.drawErr
}

type protocolFixture struct {
	log        *callLog
	window     *fakeWindow
	rasterizer *fakeRasterizer
	swapchain  *fakeSwapchain
	scheduler  *fakeScheduler
	blit       *fakeBlit
	renderer   *Renderer
}

func newProtocolFixture() *protocolFixture {
	log := &callLog{}
	f := &protocolFixture{
		log:        log,
		window:     &fakeWindow{log: log, layout: core.FramebufferLayout{Width: 1280, Height: 720}, shown: true},
		rasterizer: &fakeRasterizer{log: log},
		swapchain:  &fakeSwapchain{log: log, width: 1280, height: 720},
		scheduler:  &fakeScheduler{log: log},
		blit:       &fakeBlit{log: log},
	}
	f.renderer = &Renderer{
		window:     f.window,
		rasterizer: f.rasterizer,
		swapchain:  f.swapchain,
		scheduler:  f.scheduler,
		blit:       f.blit,
	}
	return f
}

func (f *protocolFixture) swap() {
	f.renderer.SwapBuffers(&core.FramebufferConfig{Address: 0x1000, Width: 320, Height: 240, Stride: 1280})
}

func expectCalls(t *testing.T, log *callLog, expected []string) {
	t.Helper()
	if !reflect.DeepEqual(log.calls, expected) {
		t.Errorf("call order mismatch:\n got %v\nwant %v", log.calls, expected)
	}
}

func TestSwapBuffersNilFramebuffer(t *testing.T) {
	f := newProtocolFixture()
	f.renderer.SwapBuffers(nil)
	expectCalls(t, f.log, nil)
}

func TestSwapBuffersNormalFrame(t *testing.T) {
	f := newProtocolFixture()
	f.swap()
	expectCalls(t, f.log, []string{
		"AccelerateDisplay",
		"WaitWorker",
		"AcquireNextImage",
		"Draw",
		"Flush",
		"Present",
		"TickFrame",
		"OnFrameDisplayed",
	})
}

func TestSwapBuffersZeroAreaSkipsDrawing(t *testing.T) {
	f := newProtocolFixture()
	f.window.layout = core.FramebufferLayout{}
	f.swap()
	expectCalls(t, f.log, []string{"OnFrameDisplayed"})
}

func TestSwapBuffersHiddenWindowSkipsDrawing(t *testing.T) {
	f := newProtocolFixture()
	f.window.shown = false
	f.swap()
	expectCalls(t, f.log, []string{"OnFrameDisplayed"})
}

func TestSwapBuffersLayoutChangeRecreatesOnce(t *testing.T) {
	f := newProtocolFixture()
	f.window.layout = core.FramebufferLayout{Width: 1920, Height: 1080}
	f.swap()
	expectCalls(t, f.log, []string{
		"AccelerateDisplay",
		"Swapchain.Create",
		"Blit.Recreate",
		"WaitWorker",
		"AcquireNextImage",
		"Draw",
		"Flush",
		"Present",
		"TickFrame",
		"OnFrameDisplayed",
	})

	// Same layout next frame, no further recreation.
	f.log.calls = nil
	f.swap()
	expectCalls(t, f.log, []string{
		"AccelerateDisplay",
		"WaitWorker",
		"AcquireNextImage",
		"Draw",
		"Flush",
		"Present",
		"TickFrame",
		"OnFrameDisplayed",
	})
}

func TestSwapBuffersSrgbToggleRecreates(t *testing.T) {
	f := newProtocolFixture()
	f.window.layout.Srgb = true
	f.rasterizer.accelerated = true
	f.swap()
	expectCalls(t, f.log, []string{
		"AccelerateDisplay",
		"Swapchain.Create",
		"Blit.Recreate",
		"WaitWorker",
		"AcquireNextImage",
		"Draw",
		"Flush",
		"Present",
		"TickFrame",
		"OnFrameDisplayed",
	})
	if !f.swapchain.srgb {
		t.Error("swapchain must be recreated with srgb enabled")
	}
}

func TestSwapBuffersSrgbRequiresAcceleration(t *testing.T) {
	f := newProtocolFixture()
	f.window.layout.Srgb = true
	f.rasterizer.accelerated = false
	f.swap()
	if f.swapchain.srgb {
		t.Error("software frames must not flip the swapchain to srgb")
	}
}

func TestSwapBuffersRecreateFailureStillNotifies(t *testing.T) {
	f := newProtocolFixture()
	f.window.layout = core.FramebufferLayout{Width: 1920, Height: 1080}
	f.swapchain.createErr = errors.New("device lost")
	f.swap()
	expectCalls(t, f.log, []string{
		"AccelerateDisplay",
		"Swapchain.Create",
		"OnFrameDisplayed",
	})
}

func TestSwapBuffersStaleAcquireSkipsFrame(t *testing.T) {
	f := newProtocolFixture()
	f.swapchain.acquireErr = ErrSwapchainStale
	f.swap()
	expectCalls(t, f.log, []string{
		"AccelerateDisplay",
		"WaitWorker",
		"AcquireNextImage",
		"TickFrame",
		"OnFrameDisplayed",
	})
}

func TestSwapBuffersStalePresentRecreatesBlitOnly(t *testing.T) {
	f := newProtocolFixture()
	f.swapchain.suboptimal = true
	f.swap()
	expectCalls(t, f.log, []string{
		"AccelerateDisplay",
		"WaitWorker",
		"AcquireNextImage",
		"Draw",
		"Flush",
		"Present",
		"Blit.Recreate",
		"TickFrame",
		"OnFrameDisplayed",
	})
}

func TestSwapBuffersDrawFailureSkipsPresent(t *testing.T) {
	f := newProtocolFixture()
	f.blit.drawErr = errors.New("missing image")
	f.swap()
	expectCalls(t, f.log, []string{
		"AccelerateDisplay",
		"WaitWorker",
		"AcquireNextImage",
		"Draw",
		"TickFrame",
		"OnFrameDisplayed",
	})
}

func TestShutDownWithoutInit(t *testing.T) {
	var r Renderer
	r.ShutDown()
	r.ShutDown()
}
