package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShaderModuleDescriptor(t *testing.T) {
	spirv := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}
	desc := shaderModuleDescriptor(ShaderCode{Name: "world", Source: "fn main() {}", Binary: spirv})
	require.NotNil(t, desc.SPIRVDescriptor)
	assert.Equal(t, spirv, desc.SPIRVDescriptor.Code, "the build output is passed through untouched")
	assert.Nil(t, desc.WGSLDescriptor)
	assert.Equal(t, "world", desc.Label)

	desc = shaderModuleDescriptor(ShaderCode{Name: "ui", Source: "fn main() {}", Binary: spirv[:6]})
	assert.Nil(t, desc.SPIRVDescriptor, "a partial word is not SPIR-V")
	require.NotNil(t, desc.WGSLDescriptor)
	assert.Equal(t, "fn main() {}", desc.WGSLDescriptor.Code)

	desc = shaderModuleDescriptor(ShaderCode{Name: "temp", Source: "fn main() {}"})
	require.NotNil(t, desc.WGSLDescriptor)
}
