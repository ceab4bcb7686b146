// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"strconv"

	"github.com/gobuffalo/envy"
)

// Configuration defines a global backend configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	// DeviceIndex selects the physical device, read once at
	// device-pick time. An index outside the enumerated range
	// fails device selection.
	DeviceIndex int

	// SwapchainSize is the minimum image count negotiated for
	// the swapchain.
	SwapchainSize uint32

	// DebugMode attaches the validation layer and a debug
	// reporter to the instance.
	DebugMode bool

	// ShaderArchive is the pak archive the blit screen loads its
	// SPIR-V stages from.
	ShaderArchive string
}

// FromEnvironment assembles a Configuration from VIZOR_* variables,
// falling back to defaults for anything unset.
func FromEnvironment() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: envInt("VIZOR_FPS", 60),
		},
		Renderer: RendererConfiguration{
			DeviceIndex:   envInt("VIZOR_DEVICE_INDEX", 0),
			SwapchainSize: uint32(envInt("VIZOR_SWAPCHAIN_SIZE", 3)),
			DebugMode:     envy.Get("VIZOR_DEBUG", "") != "",
			ShaderArchive: envy.Get("VIZOR_SHADER_ARCHIVE", "./shaders.pak"),
		},
	}
}

func envInt(key string, fallback int) int {
	num, err := strconv.Atoi(envy.Get(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return num
}
