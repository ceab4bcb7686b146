// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core holds the contracts between the display backend and the
// rest of the emulation frontend: the host window, the rasterizer that
// consumes the emulated GPU's command stream, telemetry and configuration.
// The vulkan package implements the backend side of these contracts.
package core

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// WindowSystemType identifies the windowing system a host window
// belongs to. The set is closed, there is no fallback between variants.
type WindowSystemType int

// Known window system variants.
const (
	WindowSystemHeadless WindowSystemType = iota
	WindowSystemWindows
	WindowSystemX11
	WindowSystemWayland
)

func (t WindowSystemType) String() string {
	switch t {
	case WindowSystemWindows:
		return "win32"
	case WindowSystemX11:
		return "x11"
	case WindowSystemWayland:
		return "wayland"
	default:
		return "headless"
	}
}

// SurfaceConstructor is the platform entry point that builds a presentable
// surface on the native window and returns the raw Vulkan handle.
// A window that cannot present leaves it nil.
type SurfaceConstructor func(instance vk.Instance) (unsafe.Pointer, error)

// WindowInfo describes the native identity of a host window.
// DisplayConnection and RenderSurface are the windowing system's own
// handles and are only meaningful for the declared Type. ProcAddr is
// the loader's vkGetInstanceProcAddr as resolved by the windowing
// layer; nil selects the system loader.
type WindowInfo struct {
	Type               WindowSystemType
	DisplayConnection  unsafe.Pointer
	RenderSurface      unsafe.Pointer
	CreateSurface      SurfaceConstructor
	ProcAddr           unsafe.Pointer
	InstanceExtensions []string
}

// FramebufferLayout is the host window's current output layout.
// Srgb marks whether the presented content is interpreted as sRGB.
type FramebufferLayout struct {
	Width  uint32
	Height uint32
	Srgb   bool
}

// HasZeroArea reports whether nothing can be presented into the layout.
func (l FramebufferLayout) HasZeroArea() bool {
	return l.Width == 0 || l.Height == 0
}

// FramebufferConfig describes one frame produced by the emulated GPU.
type FramebufferConfig struct {
	Address uint64
	Offset  uint64
	Width   uint32
	Height  uint32
	Stride  uint32
}

// Memory reads the emulated machine's memory. The software display
// path uses it to fetch framebuffer pixels the rasterizer could not
// accelerate.
type Memory interface {
	ReadBlock(addr uint64, dest []byte)
}

// Window is the host window the backend presents into.
type Window interface {
	// GetFramebufferLayout returns the current client-area layout.
	GetFramebufferLayout() FramebufferLayout

	// IsShown reports whether the window is currently visible.
	IsShown() bool

	// GetWindowInfo returns the native window identity used for
	// surface creation.
	GetWindowInfo() WindowInfo

	// OnFrameDisplayed is invoked once per SwapBuffers call,
	// presented or not.
	OnFrameDisplayed()
}

// Rasterizer records the emulated GPU's work and can sometimes display
// a framebuffer without a host-side copy.
type Rasterizer interface {
	// AccelerateDisplay reports whether the framebuffer contents are
	// already resident on the device and can be blitted directly.
	AccelerateDisplay(fb FramebufferConfig, addr uint64, stride uint32) bool

	// TickFrame advances the rasterizer's frame bookkeeping.
	TickFrame()
}

// Telemetry collects capability fields for diagnostics.
type Telemetry interface {
	AddField(category, key, value string)
}

// Backend is the renderer lifecycle exposed to the emulation core.
// Init must succeed before any SwapBuffers call; ShutDown may be called
// at any time, including before Init.
type Backend interface {
	// Init builds the whole backend. Returns false on any
	// unrecoverable setup failure, in which case no frame may be
	// presented.
	Init() bool

	// SwapBuffers presents one emulated output frame. A nil
	// framebuffer means there is nothing to present this tick.
	SwapBuffers(fb *FramebufferConfig)

	// ShutDown blocks until outstanding device work completes and
	// releases every handle in reverse creation order.
	ShutDown()
}

// Swapchain owns the ring of presentable images. Implemented by the
// vulkan package; a seam for exercising the presentation protocol.
type Swapchain interface {
	Create(width, height uint32, srgb bool) error
	HasFramebufferChanged(layout FramebufferLayout) bool
	GetSrgbState() bool
	AcquireNextImage() (uint32, error)
	Present(render vk.Semaphore) bool
}

// Scheduler is the only synchronization boundary between the
// presentation context and the command-recording worker.
type Scheduler interface {
	// WaitWorker blocks until the worker drained all recording work
	// queued before the call.
	WaitWorker()

	// Flush submits everything recorded since the last flush and
	// arranges for signal to fire on completion.
	Flush(signal vk.Semaphore)
}

// BlitScreen turns a source framebuffer into draw commands targeting the
// swapchain image acquired for this frame.
type BlitScreen interface {
	// Recreate rebuilds the blit target after a swapchain change or a
	// stale present.
	Recreate() error

	// Draw records this frame's commands and returns the semaphore
	// that will signal their completion.
	Draw(fb FramebufferConfig, useAccelerated bool) (vk.Semaphore, error)
}
