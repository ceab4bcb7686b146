// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

// An index outside the enumerated range is a configuration error: no
// clamping, no fallback to another device, no crash.
func TestPickDeviceIndexValidation(t *testing.T) {
	devices := make([]vk.PhysicalDevice, 2)

	for _, index := range []int{-1, 2, 100} {
		if _, err := PickDevice(nil, devices, index, vk.NullSurface); err == nil {
			t.Errorf("index %d outside the enumerated range must fail", index)
		}
	}

	if _, err := PickDevice(nil, nil, 0, vk.NullSurface); err == nil {
		t.Error("an empty device list must fail for any index")
	}
}
