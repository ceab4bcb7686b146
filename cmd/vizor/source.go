// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"sync"

	"github.com/devblok/vizor/core"
)

const (
	patternWidth   = 320
	patternHeight  = 240
	patternAddress = 0x10000000
)

// patternSource stands in for the emulated GPU. It animates a gradient
// into a fake guest framebuffer and hands the backend its address, so
// every presented frame travels the software display path.
type patternSource struct {
	mutex  sync.Mutex
	pixels []byte
	frames uint64
}

func newPatternSource() *patternSource {
	return &patternSource{
		pixels: make([]byte, patternWidth*patternHeight*4),
	}
}

// NextFrame advances the animation and describes the fresh framebuffer.
func (s *patternSource) NextFrame() *core.FramebufferConfig {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	shift := byte(s.frames)
	for y := 0; y < patternHeight; y++ {
		for x := 0; x < patternWidth; x++ {
			offset := (y*patternWidth + x) * 4
			s.pixels[offset] = byte(x) + shift
			s.pixels[offset+1] = byte(y) + shift
			s.pixels[offset+2] = byte(x ^ y)
			s.pixels[offset+3] = 0xff
		}
	}

	return &core.FramebufferConfig{
		Address: patternAddress,
		Width:   patternWidth,
		Height:  patternHeight,
		Stride:  patternWidth * 4,
	}
}

// ReadBlock serves the backend's guest-memory reads from the pattern
// buffer. Reads outside it come back zeroed.
func (s *patternSource) ReadBlock(addr uint64, dest []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range dest {
		dest[i] = 0
	}
	if addr < patternAddress || addr >= patternAddress+uint64(len(s.pixels)) {
		return
	}
	copy(dest, s.pixels[addr-patternAddress:])
}

// AccelerateDisplay always declines, there is no device-resident copy
// of the pattern.
func (s *patternSource) AccelerateDisplay(fb core.FramebufferConfig, addr uint64, stride uint32) bool {
	return false
}

func (s *patternSource) TickFrame() {
	s.mutex.Lock()
	s.frames++
	s.mutex.Unlock()
}
