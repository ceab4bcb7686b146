// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// apiVersion is the instance version requested from the loader.
var apiVersion = vk.MakeVersion(1, 0, 0)

// defaultApplicationInfo identifies Vizor to the driver.
var defaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         uint32(apiVersion),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   "Vizor\x00",
	PEngineName:        "Vizor\x00",
}

// NewInstance creates a versioned Vulkan instance. When debug is set the
// standard validation layer is enabled and a debug reporter attached;
// reporter failure is not fatal, validation output is best effort.
func NewInstance(extensions []string, debug bool) (*Instance, error) {
	layers := []string{}
	if debug {
		layers = append(layers, "VK_LAYER_LUNARG_standard_validation\x00")
		extensions = append(extensions, "VK_EXT_debug_report\x00")
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        defaultApplicationInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.New("vk.CreateInstance(): " + err.Error())
	}
	vk.InitInstance(instance)

	inst := &Instance{
		instance: instance,
		version:  uint32(apiVersion),
	}
	if debug {
		inst.attachDebugReporter()
	}
	return inst, nil
}

// Instance owns the loaded API context and, in debug mode, the
// validation reporter. Destroyed once, after every dependent handle.
type Instance struct {
	instance      vk.Instance
	version       uint32
	debugCallback vk.DebugReportCallback
}

// Handle returns the raw vk.Instance.
func (i *Instance) Handle() vk.Instance {
	return i.instance
}

// Version returns the instance API version.
func (i *Instance) Version() uint32 {
	return i.version
}

// PhysicalDevices enumerates the physical devices visible to the
// instance. An empty or failing enumeration is a hard failure.
func (i *Instance) PhysicalDevices() ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(i.instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	if deviceCount == 0 {
		return nil, errors.New("vulkan physical device enumeration failed: no devices")
	}
	devices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(i.instance, &deviceCount, devices)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	return devices, nil
}

// Destroy releases the reporter and the instance. Every surface and
// device created from the instance must be gone by now.
func (i *Instance) Destroy() {
	if i.instance == nil {
		return
	}
	if i.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(i.instance, i.debugCallback, nil)
		i.debugCallback = vk.NullDebugReportCallback
	}
	vk.DestroyInstance(i.instance, nil)
	i.instance = nil
}

func (i *Instance) attachDebugReporter() {
	dci := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
		PfnCallback: debugReport,
	}

	var callback vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(i.instance, &dci, nil, &callback)); err != nil {
		log.Warn("vk.CreateDebugReportCallback(): " + err.Error())
		return
	}
	i.debugCallback = callback
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, layerPrefix string,
	message string, userData unsafe.Pointer) vk.Bool32 {

	if flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0 {
		log.Errorf("validation [%s]: %s", layerPrefix, message)
	} else {
		log.Warnf("validation [%s]: %s", layerPrefix, message)
	}
	return vk.False
}
