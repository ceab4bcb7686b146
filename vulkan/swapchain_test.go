// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"math"
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestClampImageCount(t *testing.T) {
	bounded := vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3}

	if got := clampImageCount(bounded, 1); got != 2 {
		t.Errorf("below minimum: got %d, want 2", got)
	}
	if got := clampImageCount(bounded, 3); got != 3 {
		t.Errorf("inside range: got %d, want 3", got)
	}
	if got := clampImageCount(bounded, 8); got != 3 {
		t.Errorf("above maximum: got %d, want 3", got)
	}

	unbounded := vk.SurfaceCapabilities{MinImageCount: 2}
	if got := clampImageCount(unbounded, 8); got != 8 {
		t.Errorf("unbounded surface: got %d, want 8", got)
	}
}

func TestClampImageExtentPinned(t *testing.T) {
	pinned := vk.SurfaceCapabilities{
		CurrentExtent: vk.Extent2D{Width: 800, Height: 600},
	}

	width, height := clampImageExtent(pinned, 1280, 720)
	if width != 800 || height != 600 {
		t.Errorf("pinned surface must dictate the extent, got %dx%d", width, height)
	}
}

func TestClampImageExtentFree(t *testing.T) {
	free := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 64, Height: 64},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
	}

	cases := []struct {
		name                  string
		width, height         uint32
		wantWidth, wantHeight uint32
	}{
		{"inside range", 1280, 720, 1280, 720},
		{"below minimum", 16, 16, 64, 64},
		{"above maximum", 10000, 10000, 4096, 4096},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			width, height := clampImageExtent(free, tc.width, tc.height)
			if width != tc.wantWidth || height != tc.wantHeight {
				t.Errorf("got %dx%d, want %dx%d", width, height, tc.wantWidth, tc.wantHeight)
			}
		})
	}
}
