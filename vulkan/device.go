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
)

// PCI vendor identifiers of the GPUs worth naming.
const (
	VendorAMD      = 0x1002
	VendorImgTec   = 0x1010
	VendorNvidia   = 0x10de
	VendorARM      = 0x13b5
	VendorQualcomm = 0x5143
	VendorIntel    = 0x8086
)

var vendorNames = map[uint32]string{
	VendorAMD:      "AMD",
	VendorImgTec:   "ImgTec",
	VendorNvidia:   "NVIDIA",
	VendorARM:      "ARM",
	VendorQualcomm: "Qualcomm",
	VendorIntel:    "Intel",
}

// PhysicalDeviceInfo describes the queried, immutable properties of an
// enumerated physical device.
type PhysicalDeviceInfo struct {
	Name          string
	VendorID      uint32
	DriverVersion uint32
	APIVersion    uint32
	Extensions    []string
}

// DescribePhysicalDevice queries the identity of one physical device.
func DescribePhysicalDevice(physical vk.PhysicalDevice) PhysicalDeviceInfo {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physical, &properties)
	properties.Deref()

	return PhysicalDeviceInfo{
		Name:          vk.ToString(properties.DeviceName[:]),
		VendorID:      properties.VendorID,
		DriverVersion: properties.DriverVersion,
		APIVersion:    properties.ApiVersion,
		Extensions:    deviceExtensions(physical),
	}
}

func deviceExtensions(physical vk.PhysicalDevice) []string {
	var count uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(physical, "", &count, nil)); err != nil {
		return nil
	}
	properties := make([]vk.ExtensionProperties, count)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(physical, "", &count, properties)); err != nil {
		return nil
	}

	extensions := make([]string, 0, count)
	for _, ext := range properties {
		ext.Deref()
		extensions = append(extensions, vk.ToString(ext.ExtensionName[:]))
	}
	return extensions
}

// PickDevice validates the configured index against the enumerated list
// and builds the logical device. An index outside [0, count) is a
// configuration error, it is not clamped and no other index is tried.
func PickDevice(instance *Instance, devices []vk.PhysicalDevice, index int, surface vk.Surface) (*Device, error) {
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("invalid device index %d", index)
	}

	device := NewDevice(instance, devices[index], surface)
	if ok, reason := device.IsSuitable(); !ok {
		return nil, errors.New("unsuitable device: " + reason)
	}
	if err := device.Create(); err != nil {
		return nil, err
	}
	return device, nil
}

// NewDevice wraps a physical device choice. Create must be called
// before the logical handle is usable.
func NewDevice(instance *Instance, physical vk.PhysicalDevice, surface vk.Surface) *Device {
	device := &Device{
		instance: instance,
		physical: physical,
		surface:  surface,
	}
	device.info = DescribePhysicalDevice(physical)
	return device
}

// Device is the selected, initialized logical device. All dependent
// components hold a non-owning reference bounded by its lifetime.
type Device struct {
	instance *Instance
	physical vk.PhysicalDevice
	surface  vk.Surface
	info     PhysicalDeviceInfo

	logical    vk.Device
	queue      vk.Queue
	queueIndex uint32
}

// IsSuitable checks the physical device can present to the surface and
// exposes the required queue and extension set. The reason string is
// filled when the device is rejected.
func (d *Device) IsSuitable() (bool, string) {
	if !d.hasExtension(vk.KhrSwapchainExtensionName) {
		return false, "missing " + vk.KhrSwapchainExtensionName
	}

	index, found := d.findQueueFamily()
	if !found {
		return false, "no queue family with graphics and present support"
	}
	d.queueIndex = index

	var formatCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &formatCount, nil)); err != nil {
		return false, "vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error()
	}
	if formatCount == 0 {
		return false, "no surface formats exposed"
	}
	return true, ""
}

// Create initializes the logical device with the selected queue family
// and the swapchain extension, deterministically from the descriptor.
func (d *Device) Create() error {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.queueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	extensions := []string{
		vk.KhrSwapchainExtensionName + "\x00",
	}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	var logical vk.Device
	if err := vk.Error(vk.CreateDevice(d.physical, &dci, nil, &logical)); err != nil {
		return errors.New("vk.CreateDevice(): " + err.Error())
	}
	d.logical = logical

	var queue vk.Queue
	vk.GetDeviceQueue(d.logical, d.queueIndex, 0, &queue)
	d.queue = queue

	log.Infof("created logical device on %s", d.info.Name)
	return nil
}

func (d *Device) hasExtension(name string) bool {
	for _, ext := range d.info.Extensions {
		if ext == name {
			return true
		}
	}
	return false
}

func (d *Device) findQueueFamily() (uint32, bool) {
	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physical, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physical, &familyCount, families)

	for i := uint32(0); i < familyCount; i++ {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(d.physical, i, d.surface, &supportsPresent)
		if supportsPresent.B() {
			return i, true
		}
	}
	return 0, false
}

// Physical returns the underlying physical device handle.
func (d *Device) Physical() vk.PhysicalDevice {
	return d.physical
}

// Logical returns the initialized logical device handle.
func (d *Device) Logical() vk.Device {
	return d.logical
}

// Queue returns the graphics/present queue.
func (d *Device) Queue() vk.Queue {
	return d.queue
}

// QueueIndex returns the selected queue family.
func (d *Device) QueueIndex() uint32 {
	return d.queueIndex
}

// VendorName resolves the PCI vendor id to a readable name.
func (d *Device) VendorName() string {
	if name, ok := vendorNames[d.info.VendorID]; ok {
		return name
	}
	return fmt.Sprintf("vendor 0x%04x", d.info.VendorID)
}

// ModelName returns the device name reported by the driver.
func (d *Device) ModelName() string {
	return d.info.Name
}

// VendorID returns the PCI vendor identifier.
func (d *Device) VendorID() uint32 {
	return d.info.VendorID
}

// DriverVersion returns the raw, vendor-packed driver version.
func (d *Device) DriverVersion() uint32 {
	return d.info.DriverVersion
}

// APIVersion returns the device's supported API version.
func (d *Device) APIVersion() uint32 {
	return d.info.APIVersion
}

// AvailableExtensions returns the device extension names.
func (d *Device) AvailableExtensions() []string {
	return d.info.Extensions
}

// WaitIdle blocks until all queued device work completes.
func (d *Device) WaitIdle() {
	if d.logical != nil {
		vk.DeviceWaitIdle(d.logical)
	}
}

// Destroy releases the logical device.
func (d *Device) Destroy() {
	if d.logical != nil {
		vk.DestroyDevice(d.logical, nil)
		d.logical = nil
	}
}
