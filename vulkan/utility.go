// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import "unsafe"

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

// sliceUint32 reslices SPIR-V bytes into the uint32 words the shader
// module constructor wants, without copying.
func sliceUint32(data []byte) []uint32 {
	const m = 0x7fffffff
	return (*[m / 4]uint32)(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&data)).Data))[:len(data)/4]
}
