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

	"github.com/devblok/vizor/core"
)

// ErrSwapchainStale is returned by AcquireNextImage when the surface
// changed under the swapchain. The frame is skipped; the next frame's
// layout comparison rebuilds the chain.
var ErrSwapchainStale = errors.New("swapchain image acquisition found a stale surface")

// frameSync holds the acquisition semaphore of one frame slot.
// Exactly one is live per in-flight frame; command-buffer reuse is
// fenced by the scheduler, not here, so the ring can be replaced
// without invalidating in-flight submissions.
type frameSync struct {
	imageAvailable vk.Semaphore
}

// NewSwapchain creates an uninitialized swapchain bound to a device,
// surface and the command scheduler sharing its queue. Create must run
// before the first acquisition.
func NewSwapchain(device *Device, surface vk.Surface, scheduler *Scheduler, minImageCount uint32) *Swapchain {
	if minImageCount < 2 {
		minImageCount = 2
	}
	return &Swapchain{
		device:        device,
		surface:       surface,
		scheduler:     scheduler,
		minImageCount: minImageCount,
	}
}

// Swapchain owns the ring of presentable images together with the
// layout it was created for. Recreation is an atomic replace of the
// whole ring, never a partial rebuild.
type Swapchain struct {
	device        *Device
	surface       vk.Surface
	scheduler     *Scheduler
	minImageCount uint32

	swapchain  vk.Swapchain
	images     []vk.Image
	format     vk.Format
	colorSpace vk.ColorSpace

	frames     []frameSync
	frameIndex int
	imageIndex uint32

	width  uint32
	height uint32
	srgb   bool
}

// Create builds (or rebuilds) the image chain for the given layout.
// The previous chain, if any, is retired into OldSwapchain and torn
// down after the new one exists.
func (s *Swapchain) Create(width, height uint32, srgb bool) error {
	physical := s.device.Physical()

	var capabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(physical, s.surface, &capabilities)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceCapabilities(): " + err.Error())
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	minImageCount := clampImageCount(capabilities, s.minImageCount)
	width, height = clampImageExtent(capabilities, width, height)

	format, colorSpace, err := s.pickSurfaceFormat(srgb)
	if err != nil {
		return err
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if capabilities.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	oldSwapchain := s.swapchain

	var swapchain vk.Swapchain
	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         s.surface,
		MinImageCount:   minImageCount,
		ImageFormat:     format,
		ImageColorSpace: colorSpace,
		ImageExtent: vk.Extent2D{
			Width:  width,
			Height: height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     oldSwapchain,
	}

	if err := vk.Error(vk.CreateSwapchain(s.device.Logical(), &scci, nil, &swapchain)); err != nil {
		return errors.New("vk.CreateSwapchain(): " + err.Error())
	}

	s.destroySyncRing()
	if oldSwapchain != vk.NullSwapchain {
		vk.DestroySwapchain(s.device.Logical(), oldSwapchain, nil)
	}
	s.swapchain = swapchain

	var imageCount uint32
	if err := vk.Error(vk.GetSwapchainImages(s.device.Logical(), s.swapchain, &imageCount, nil)); err != nil {
		return errors.New("vk.GetSwapchainImages(): " + err.Error())
	}
	s.images = make([]vk.Image, imageCount)
	if err := vk.Error(vk.GetSwapchainImages(s.device.Logical(), s.swapchain, &imageCount, s.images)); err != nil {
		return errors.New("vk.GetSwapchainImages(): " + err.Error())
	}

	if err := s.createSyncRing(int(imageCount)); err != nil {
		return err
	}

	s.format = format
	s.colorSpace = colorSpace
	s.width = width
	s.height = height
	s.srgb = srgb
	s.frameIndex = 0

	log.Debugf("swapchain created: %dx%d srgb=%t images=%d", width, height, srgb, imageCount)
	return nil
}

// clampImageCount fits the requested image count into the surface's
// supported range. MaxImageCount zero means no upper bound.
func clampImageCount(capabilities vk.SurfaceCapabilities, want uint32) uint32 {
	if want < capabilities.MinImageCount {
		want = capabilities.MinImageCount
	}
	if capabilities.MaxImageCount > 0 && want > capabilities.MaxImageCount {
		want = capabilities.MaxImageCount
	}
	return want
}

// clampImageExtent resolves the chain extent against the surface. A
// pinned CurrentExtent must be matched exactly; the all-ones sentinel
// means the surface takes its size from the chain, bounded by the
// min and max image extents.
func clampImageExtent(capabilities vk.SurfaceCapabilities, width, height uint32) (uint32, uint32) {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent.Width, capabilities.CurrentExtent.Height
	}

	clamp := func(value, min, max uint32) uint32 {
		if value < min {
			return min
		}
		if value > max {
			return max
		}
		return value
	}
	return clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)
}

// pickSurfaceFormat selects the image format honoring the requested
// color-space flag, falling back to whatever the surface reports first.
func (s *Swapchain) pickSurfaceFormat(srgb bool) (vk.Format, vk.ColorSpace, error) {
	var count uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(s.device.Physical(), s.surface, &count, nil)); err != nil {
		return 0, 0, errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(s.device.Physical(), s.surface, &count, formats)); err != nil {
		return 0, 0, errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}
	if count == 0 {
		return 0, 0, errors.New("no surface formats exposed")
	}

	wanted := vk.FormatB8g8r8a8Unorm
	if srgb {
		wanted = vk.FormatB8g8r8a8Srgb
	}
	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == wanted {
			return formats[i].Format, formats[i].ColorSpace, nil
		}
	}
	return formats[0].Format, formats[0].ColorSpace, nil
}

func (s *Swapchain) createSyncRing(count int) error {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	s.frames = make([]frameSync, count)
	for i := range s.frames {
		if err := vk.Error(vk.CreateSemaphore(s.device.Logical(), &sci, nil, &s.frames[i].imageAvailable)); err != nil {
			return errors.New("vk.CreateSemaphore(): " + err.Error())
		}
	}
	return nil
}

func (s *Swapchain) destroySyncRing() {
	for _, frame := range s.frames {
		vk.DestroySemaphore(s.device.Logical(), frame.imageAvailable, nil)
	}
	s.frames = nil
}

// HasFramebufferChanged reports whether the host layout diverged from
// the layout the chain was created for. This comparison is the only
// trigger for recreation; no dimension is cached anywhere else.
func (s *Swapchain) HasFramebufferChanged(layout core.FramebufferLayout) bool {
	return layout.Width != s.width || layout.Height != s.height
}

// GetSrgbState reports the color-space flag the chain was created with.
func (s *Swapchain) GetSrgbState() bool {
	return s.srgb
}

// AcquireNextImage blocks until the driver hands out the next
// presentable image and pairs it with this slot's semaphore.
func (s *Swapchain) AcquireNextImage() (uint32, error) {
	frame := &s.frames[s.frameIndex]

	var index uint32
	result := vk.AcquireNextImage(s.device.Logical(), s.swapchain, math.MaxUint64,
		frame.imageAvailable, vk.NullFence, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return 0, ErrSwapchainStale
	default:
		return 0, errors.New("vk.AcquireNextImage(): " + vk.Error(result).Error())
	}

	s.imageIndex = index
	return index, nil
}

// ImageAvailable returns the acquisition semaphore of the current
// frame slot; submissions rendering into the acquired image wait on it.
func (s *Swapchain) ImageAvailable() vk.Semaphore {
	return s.frames[s.frameIndex].imageAvailable
}

// ImageIndex returns the image acquired for the current frame.
func (s *Swapchain) ImageIndex() uint32 {
	return s.imageIndex
}

// ImageCount returns the length of the image ring.
func (s *Swapchain) ImageCount() int {
	return len(s.images)
}

// Images returns the presentable image ring.
func (s *Swapchain) Images() []vk.Image {
	return s.images
}

// Format returns the image format of the current chain.
func (s *Swapchain) Format() vk.Format {
	return s.format
}

// Extent returns the dimensions of the current chain.
func (s *Swapchain) Extent() (uint32, uint32) {
	return s.width, s.height
}

// Present queues presentation of the acquired image, ordered after the
// render semaphore. It reports whether the driver considers the chain
// stale; the rebuild happens on the next frame, never here.
func (s *Swapchain) Present(render vk.Semaphore) bool {
	// The worker submits on the same queue. Draining it puts the
	// submission that signals render on the queue before the present
	// waiting on it, and keeps both goroutines from touching the
	// queue at once.
	s.scheduler.WaitWorker()

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{render},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.swapchain},
		PImageIndices:      []uint32{s.imageIndex},
	}

	result := vk.QueuePresent(s.device.Queue(), &presentInfo)
	s.frameIndex = (s.frameIndex + 1) % len(s.frames)

	switch result {
	case vk.Success:
		return false
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return true
	default:
		log.Error("vk.QueuePresent(): " + vk.Error(result).Error())
		return false
	}
}

// Destroy tears down the sync ring and the image chain.
func (s *Swapchain) Destroy() {
	s.destroySyncRing()
	if s.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(s.device.Logical(), s.swapchain, nil)
		s.swapchain = vk.NullSwapchain
	}
	s.images = nil
}
