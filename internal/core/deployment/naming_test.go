package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// ContainerName Tests
// =============================================================================

func TestContainerName_Simple(t *testing.T) {
	assert.Equal(t, "quyca_dev", ContainerName("dev"))
	assert.Equal(t, "quyca_prod", ContainerName("prod"))
}

func TestContainerName_Empty(t *testing.T) {
	assert.Equal(t, "quyca_", ContainerName(""))
}

// =============================================================================
// Label Tests
// =============================================================================

func TestLabels(t *testing.T) {
	labels := Labels("dev", "inst-1", "development")

	assert.Equal(t, map[string]string{
		"org.colav.quyca.managed":  "true",
		"org.colav.quyca.profile":  "dev",
		"org.colav.quyca.instance": "inst-1",
		"org.colav.quyca.target":   "development",
	}, labels)
}

func TestManagedFilter(t *testing.T) {
	assert.Equal(t, "org.colav.quyca.managed=true", ManagedFilter())
}

func TestPortsLabel(t *testing.T) {
	assert.Equal(t, "8000,9000", PortsLabel([]int{9000, 8000}))
	assert.Equal(t, "", PortsLabel(nil))
}

func TestParsePortsLabel(t *testing.T) {
	assert.Equal(t, []int{8000, 9000}, ParsePortsLabel("8000,9000"))
	assert.Equal(t, []int{8000}, ParsePortsLabel("8000, x, -1"))
	assert.Empty(t, ParsePortsLabel(""))
}
