// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/vizor/core"
)

func TestFramebufferLayoutHasZeroArea(t *testing.T) {
	c := qt.New(t)

	c.Assert(core.FramebufferLayout{Width: 1280, Height: 720}.HasZeroArea(), qt.Equals, false)
	c.Assert(core.FramebufferLayout{Width: 0, Height: 720}.HasZeroArea(), qt.Equals, true)
	c.Assert(core.FramebufferLayout{Width: 1280, Height: 0}.HasZeroArea(), qt.Equals, true)
	c.Assert(core.FramebufferLayout{}.HasZeroArea(), qt.Equals, true)
}

func TestWindowSystemTypeString(t *testing.T) {
	c := qt.New(t)

	c.Assert(core.WindowSystemWindows.String(), qt.Equals, "win32")
	c.Assert(core.WindowSystemX11.String(), qt.Equals, "x11")
	c.Assert(core.WindowSystemWayland.String(), qt.Equals, "wayland")
	c.Assert(core.WindowSystemHeadless.String(), qt.Equals, "headless")
}
