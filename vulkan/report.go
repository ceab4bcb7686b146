// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// telemetryCategory groups the capability fields on the telemetry side.
const telemetryCategory = "UserSystem"

// readableVersion renders a Vulkan-packed version number.
func readableVersion(version uint32) string {
	v := vk.Version(version)
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// driverVersionString decodes the vendor-packed driver version.
// The bit splits are vendor lore, not API contract:
// https://github.com/SaschaWillems/vulkan.gpuinfo.org/blob/5dddea46/functions.php#L308-L314
// Unrecognized vendors fall back to the generic encoding.
func driverVersionString(vendorID, version uint32) string {
	switch vendorID {
	case VendorNvidia:
		major := (version >> 22) & 0x3ff
		minor := (version >> 14) & 0x0ff
		secondary := (version >> 6) & 0x0ff
		tertiary := version & 0x003f
		return fmt.Sprintf("%d.%d.%d.%d", major, minor, secondary, tertiary)
	case VendorIntel:
		major := version >> 14
		minor := version & 0x3fff
		return fmt.Sprintf("%d.%d", major, minor)
	default:
		return readableVersion(version)
	}
}

// joinExtensions produces the deterministic extension list used in
// diagnostics: sorted lexicographically and comma-joined.
func joinExtensions(extensions []string) string {
	sorted := make([]string, len(extensions))
	copy(sorted, extensions)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// report extracts the device identity once, after device creation, and
// hands one telemetry field per capability. Pure query otherwise.
func (r *Renderer) report() {
	vendorName := r.device.VendorName()
	modelName := r.device.ModelName()
	driverVersion := driverVersionString(r.device.VendorID(), r.device.DriverVersion())
	driverName := fmt.Sprintf("%s %s", vendorName, driverVersion)
	apiVersion := readableVersion(r.device.APIVersion())
	extensions := joinExtensions(r.device.AvailableExtensions())

	log.Infof("Driver: %s", driverName)
	log.Infof("Device: %s", modelName)
	log.Infof("Vulkan: %s", apiVersion)

	if r.telemetry == nil {
		return
	}
	r.telemetry.AddField(telemetryCategory, "GPU_Vendor", vendorName)
	r.telemetry.AddField(telemetryCategory, "GPU_Model", modelName)
	r.telemetry.AddField(telemetryCategory, "GPU_Vulkan_Driver", driverName)
	r.telemetry.AddField(telemetryCategory, "GPU_Vulkan_Version", apiVersion)
	r.telemetry.AddField(telemetryCategory, "GPU_Vulkan_Extensions", extensions)
}
