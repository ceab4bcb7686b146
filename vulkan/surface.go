// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/vizor/core"
)

// ErrPresentationUnsupported is returned when the host window's
// declared system type cannot present at all.
var ErrPresentationUnsupported = errors.New("presentation not supported on this platform")

// surfaceStrategy builds a presentable surface for one window system
// variant. Exactly one strategy runs per window; there is no fallback
// between variants.
type surfaceStrategy func(instance *Instance, info core.WindowInfo) (vk.Surface, error)

var surfaceStrategies = map[core.WindowSystemType]surfaceStrategy{
	core.WindowSystemWindows: createWin32Surface,
	core.WindowSystemX11:     createXlibSurface,
	core.WindowSystemWayland: createWaylandSurface,
}

// CreateSurface creates the drawable target bound to the host window.
// The declared system type picks the strategy; a headless window or an
// absent platform entry point is a hard failure.
func CreateSurface(instance *Instance, info core.WindowInfo) (vk.Surface, error) {
	create, ok := surfaceStrategies[info.Type]
	if !ok {
		log.Error(ErrPresentationUnsupported)
		return vk.NullSurface, ErrPresentationUnsupported
	}

	surface, err := create(instance, info)
	if err != nil {
		log.Errorf("failed to initialize %s surface: %s", info.Type, err)
		return vk.NullSurface, err
	}
	return surface, nil
}

func createWin32Surface(instance *Instance, info core.WindowInfo) (vk.Surface, error) {
	if info.RenderSurface == nil {
		return vk.NullSurface, errors.New("win32 window handle missing")
	}
	return nativeSurface(instance, info)
}

func createXlibSurface(instance *Instance, info core.WindowInfo) (vk.Surface, error) {
	if info.DisplayConnection == nil || info.RenderSurface == nil {
		return vk.NullSurface, errors.New("xlib display or window handle missing")
	}
	return nativeSurface(instance, info)
}

func createWaylandSurface(instance *Instance, info core.WindowInfo) (vk.Surface, error) {
	if info.DisplayConnection == nil || info.RenderSurface == nil {
		return vk.NullSurface, errors.New("wayland display or surface handle missing")
	}
	return nativeSurface(instance, info)
}

// nativeSurface invokes the windowing system's own surface constructor
// and wraps the raw handle. The entry point being absent means the
// platform cannot present.
func nativeSurface(instance *Instance, info core.WindowInfo) (vk.Surface, error) {
	if info.CreateSurface == nil {
		return vk.NullSurface, ErrPresentationUnsupported
	}
	raw, err := info.CreateSurface(instance.Handle())
	if err != nil {
		return vk.NullSurface, fmt.Errorf("surface constructor: %s", err)
	}
	if raw == nil {
		return vk.NullSurface, ErrPresentationUnsupported
	}
	return vk.SurfaceFromPointer(uintptr(raw)), nil
}
