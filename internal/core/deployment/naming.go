package deployment

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Resource Naming Functions
// =============================================================================

// ContainerName generates the container name for a profile.
// Pattern: quyca_{profile}
//
// Example:
//
//	ContainerName("dev") // returns "quyca_dev"
func ContainerName(profileName string) string {
	return fmt.Sprintf("quyca_%s", profileName)
}

// Label keys used to recognise containers started by the launcher.
const (
	LabelManaged  = "org.colav.quyca.managed"
	LabelProfile  = "org.colav.quyca.profile"
	LabelInstance = "org.colav.quyca.instance"
	LabelTarget   = "org.colav.quyca.target"
	LabelPorts    = "org.colav.quyca.ports"
)

// Labels returns the ownership labels for an instance of a profile.
func Labels(profileName, instanceID, target string) map[string]string {
	return map[string]string{
		LabelManaged:  "true",
		LabelProfile:  profileName,
		LabelInstance: instanceID,
		LabelTarget:   target,
	}
}

// ManagedFilter is the label filter selecting launcher-managed containers.
func ManagedFilter() string {
	return LabelManaged + "=true"
}

// PortsLabel encodes ports as a sorted comma-separated label value.
func PortsLabel(ports []int) string {
	sorted := append([]int(nil), ports...)
	sort.Ints(sorted)
	parts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ",")
}

// ParsePortsLabel decodes a PortsLabel value. Malformed entries are skipped.
func ParsePortsLabel(value string) []int {
	var ports []int
	for _, part := range strings.Split(value, ",") {
		if p, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && p > 0 {
			ports = append(ports, p)
		}
	}
	return ports
}
