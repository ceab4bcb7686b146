// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vulkan is the Vulkan display backend of Vizor. It negotiates
// an instance and device, owns the presentable surface and swapchain,
// and synchronizes a command-recording worker with per-frame
// presentation into the host window.
package vulkan

import (
	"errors"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// OpenLibrary points the bindings at the loader's vkGetInstanceProcAddr
// and resolves the global dispatch table. procAddr may come from the
// windowing layer; nil selects the system loader.
func OpenLibrary(procAddr unsafe.Pointer) error {
	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return errors.New("vk.SetDefaultGetInstanceProcAddr(): " + err.Error())
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}

	if err := vk.Init(); err != nil {
		return errors.New("vk.Init(): " + err.Error())
	}
	return nil
}
