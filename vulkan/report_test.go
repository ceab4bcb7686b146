// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestDriverVersionString(t *testing.T) {
	c := qt.New(t)

	cases := []struct {
		name     string
		vendorID uint32
		version  uint32
		expected string
	}{
		{
			// 430.86.0.0 packed the way the blob driver reports it.
			name:     "nvidia",
			vendorID: VendorNvidia,
			version:  430<<22 | 86<<14,
			expected: "430.86.0.0",
		},
		{
			name:     "nvidia low bits",
			vendorID: VendorNvidia,
			version:  1<<22 | 2<<14 | 3<<6 | 4,
			expected: "1.2.3.4",
		},
		{
			name:     "intel",
			vendorID: VendorIntel,
			version:  100<<14 | 7925,
			expected: "100.7925",
		},
		{
			name:     "generic vendor uses api packing",
			vendorID: VendorAMD,
			version:  2<<22 | 0<<12 | 116,
			expected: "2.0.116",
		},
	}

	for _, tc := range cases {
		c.Run(tc.name, func(c *qt.C) {
			c.Assert(driverVersionString(tc.vendorID, tc.version), qt.Equals, tc.expected)
		})
	}
}

func TestJoinExtensions(t *testing.T) {
	c := qt.New(t)

	cases := []struct {
		name       string
		extensions []string
		expected   string
	}{
		{"sorted", []string{"VK_KHR_swapchain", "VK_EXT_debug_report", "VK_KHR_surface"},
			"VK_EXT_debug_report,VK_KHR_surface,VK_KHR_swapchain"},
		{"single", []string{"VK_KHR_surface"}, "VK_KHR_surface"},
		{"empty", nil, ""},
	}

	for _, tc := range cases {
		c.Run(tc.name, func(c *qt.C) {
			c.Assert(joinExtensions(tc.extensions), qt.Equals, tc.expected)
		})
	}
}

func TestJoinExtensionsDoesNotReorderInput(t *testing.T) {
	c := qt.New(t)

	input := []string{"b", "a", "c"}
	c.Assert(joinExtensions(input), qt.Equals, "a,b,c")
	c.Assert(input, qt.DeepEquals, []string{"b", "a", "c"})
}

func TestReadableVersion(t *testing.T) {
	c := qt.New(t)
	c.Assert(readableVersion(1<<22|1<<12|126), qt.Equals, "1.1.126")
}
