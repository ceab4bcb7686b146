// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/vizor/core"
)

// sdlWindow adapts an SDL window to the host-window contract the
// display backend consumes.
type sdlWindow struct {
	window *sdl.Window
}

func newSdlWindow(width, height int32) (*sdlWindow, error) {
	window, err := sdl.CreateWindow("Vizor",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		width, height,
		sdl.WINDOW_VULKAN|sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return nil, err
	}
	return &sdlWindow{window: window}, nil
}

func (w *sdlWindow) GetFramebufferLayout() core.FramebufferLayout {
	width, height := w.window.VulkanGetDrawableSize()
	return core.FramebufferLayout{
		Width:  uint32(width),
		Height: uint32(height),
	}
}

func (w *sdlWindow) IsShown() bool {
	flags := w.window.GetFlags()
	return flags&sdl.WINDOW_SHOWN != 0 && flags&sdl.WINDOW_MINIMIZED == 0
}

func (w *sdlWindow) GetWindowInfo() core.WindowInfo {
	return core.WindowInfo{
		Type:               w.systemType(),
		ProcAddr:           sdl.VulkanGetVkGetInstanceProcAddr(),
		InstanceExtensions: w.window.VulkanGetInstanceExtensions(),
		CreateSurface: func(instance vk.Instance) (unsafe.Pointer, error) {
			return w.window.VulkanCreateSurface(instance)
		},
	}
}

func (w *sdlWindow) OnFrameDisplayed() {}

func (w *sdlWindow) systemType() core.WindowSystemType {
	info, err := w.window.GetWMInfo()
	if err != nil {
		return core.WindowSystemHeadless
	}
	switch info.Subsystem {
	case sdl.SYSWM_WINDOWS:
		return core.WindowSystemWindows
	case sdl.SYSWM_X11:
		return core.WindowSystemX11
	case sdl.SYSWM_WAYLAND:
		return core.WindowSystemWayland
	default:
		return core.WindowSystemHeadless
	}
}

func (w *sdlWindow) Destroy() {
	w.window.Destroy()
}
