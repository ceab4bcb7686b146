// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"errors"
	"os"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/vizor/core"
	"github.com/devblok/vizor/utility/pak"
)

// NewRenderer wires the backend to its collaborators. Nothing touches
// the driver until Init.
func NewRenderer(window core.Window, rasterizer core.Rasterizer, memory core.Memory,
	telemetry core.Telemetry, cfg core.RendererConfiguration) *Renderer {
	return &Renderer{
		window:     window,
		rasterizer: rasterizer,
		memory:     memory,
		telemetry:  telemetry,
		cfg:        cfg,
	}
}

// Renderer is the Vulkan display backend. It owns the instance,
// surface, device, swapchain, scheduler and blit screen, in that
// creation order; ShutDown releases them in reverse.
type Renderer struct {
	window     core.Window
	rasterizer core.Rasterizer
	memory     core.Memory
	telemetry  core.Telemetry
	cfg        core.RendererConfiguration

	instance *Instance
	surface  vk.Surface
	device   *Device

	// Interface views drive the presentation protocol; the concrete
	// handles below them drive teardown.
	swapchain core.Swapchain
	scheduler core.Scheduler
	blit      core.BlitScreen

	vkSwapchain *Swapchain
	vkScheduler *Scheduler
	vkBlit      *BlitScreen

	shaderFile *os.File
}

// Init composes loader, instance, surface, device, scheduler,
// swapchain and blit screen in strict order. Returns false on any
// setup failure; there is no partially usable state.
func (r *Renderer) Init() bool {
	if err := r.init(); err != nil {
		log.Error("vulkan backend initialisation failed: " + err.Error())
		return false
	}
	return true
}

func (r *Renderer) init() error {
	info := r.window.GetWindowInfo()

	if err := OpenLibrary(info.ProcAddr); err != nil {
		return err
	}

	instance, err := NewInstance(info.InstanceExtensions, r.cfg.DebugMode)
	if err != nil {
		return err
	}
	r.instance = instance

	surface, err := CreateSurface(r.instance, info)
	if err != nil {
		return err
	}
	r.surface = surface

	devices, err := r.instance.PhysicalDevices()
	if err != nil {
		return err
	}
	device, err := PickDevice(r.instance, devices, r.cfg.DeviceIndex, r.surface)
	if err != nil {
		return err
	}
	r.device = device

	r.report()

	scheduler, err := NewScheduler(r.device)
	if err != nil {
		return err
	}
	r.vkScheduler = scheduler
	r.scheduler = scheduler

	layout := r.window.GetFramebufferLayout()
	swapchain := NewSwapchain(r.device, r.surface, scheduler, r.cfg.SwapchainSize)
	if err := swapchain.Create(layout.Width, layout.Height, false); err != nil {
		return err
	}
	r.vkSwapchain = swapchain
	r.swapchain = swapchain

	archive, err := r.openShaderArchive()
	if err != nil {
		return err
	}
	blit, err := NewBlitScreen(r.device, swapchain, scheduler, r.memory, archive)
	if err != nil {
		return err
	}
	r.vkBlit = blit
	r.blit = blit

	return nil
}

func (r *Renderer) openShaderArchive() (*pak.Archive, error) {
	f, err := os.Open(r.cfg.ShaderArchive)
	if err != nil {
		return nil, errors.New("shader archive: " + err.Error())
	}
	archive, err := pak.Open(f)
	if err != nil {
		f.Close()
		return nil, errors.New("shader archive: " + err.Error())
	}
	r.shaderFile = f
	return archive, nil
}

// SwapBuffers presents one emulated output frame. A nil framebuffer is
// a no-op; a hidden window or a zero-area layout skips drawing but
// still ticks the frame-displayed bookkeeping.
func (r *Renderer) SwapBuffers(fb *core.FramebufferConfig) {
	if fb == nil {
		return
	}

	layout := r.window.GetFramebufferLayout()
	if !layout.HasZeroArea() && r.window.IsShown() {
		addr := fb.Address + fb.Offset
		useAccelerated := r.rasterizer.AccelerateDisplay(*fb, addr, fb.Stride)
		srgb := useAccelerated && layout.Srgb

		if r.swapchain.HasFramebufferChanged(layout) || r.swapchain.GetSrgbState() != srgb {
			if err := r.swapchain.Create(layout.Width, layout.Height, srgb); err != nil {
				log.Error("swapchain recreation failed: " + err.Error())
				r.window.OnFrameDisplayed()
				return
			}
			if err := r.blit.Recreate(); err != nil {
				log.Error("blit screen recreation failed: " + err.Error())
				r.window.OnFrameDisplayed()
				return
			}
		}

		r.scheduler.WaitWorker()

		if _, err := r.swapchain.AcquireNextImage(); err != nil {
			// A stale acquire skips the frame; the next frame's
			// layout comparison rebuilds the chain.
			log.Debug(err)
		} else if render, err := r.blit.Draw(*fb, useAccelerated); err != nil {
			log.Error("blit draw failed: " + err.Error())
		} else {
			r.scheduler.Flush(render)
			if r.swapchain.Present(render) {
				if err := r.blit.Recreate(); err != nil {
					log.Error("blit screen recreation failed: " + err.Error())
				}
			}
		}

		r.rasterizer.TickFrame()
	}

	r.window.OnFrameDisplayed()
}

// ShutDown blocks until the device idles, then releases every handle
// in reverse creation order. Safe to call when Init never ran or
// failed; a backend without a device has nothing to release.
func (r *Renderer) ShutDown() {
	if r.device == nil {
		return
	}
	r.device.WaitIdle()

	if r.vkBlit != nil {
		r.vkBlit.Destroy()
		r.vkBlit = nil
		r.blit = nil
	}
	if r.vkScheduler != nil {
		r.vkScheduler.Stop()
		r.vkScheduler = nil
		r.scheduler = nil
	}
	if r.vkSwapchain != nil {
		r.vkSwapchain.Destroy()
		r.vkSwapchain = nil
		r.swapchain = nil
	}

	r.device.Destroy()
	r.device = nil

	if r.surface != vk.NullSurface {
		vk.DestroySurface(r.instance.Handle(), r.surface, nil)
		r.surface = vk.NullSurface
	}
	if r.instance != nil {
		r.instance.Destroy()
		r.instance = nil
	}
	if r.shaderFile != nil {
		r.shaderFile.Close()
		r.shaderFile = nil
	}
}

// EnumerateDevices lists the display names of every physical device a
// throwaway instance can see. Usable without Init; returns an empty
// list when no driver or instance is available.
func EnumerateDevices() []string {
	if err := OpenLibrary(nil); err != nil {
		log.Debug(err)
		return nil
	}
	instance, err := NewInstance(nil, false)
	if err != nil {
		log.Debug(err)
		return nil
	}
	defer instance.Destroy()

	devices, err := instance.PhysicalDevices()
	if err != nil {
		log.Debug(err)
		return nil
	}

	names := make([]string, 0, len(devices))
	for _, device := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &properties)
		properties.Deref()
		names = append(names, vk.ToString(properties.DeviceName[:]))
	}
	return names
}
