package shader

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/srender/common"
)

// GPUModelViewProjectionSource is the WGSL definition of the ModelViewProjection struct.
//
//go:embed assets/model_view_projection.wgsl
var GPUModelViewProjectionSource string

// GPUBaseVertexDataSource is the WGSL vertex input struct matching SBaseVertexData.
//
//go:embed assets/base_vertex_data.wgsl
var GPUBaseVertexDataSource string

// GPUTextureMetadataSource is the WGSL definition of the TextureMetadata struct.
//
//go:embed assets/texture_metadata.wgsl
var GPUTextureMetadataSource string

// GPUVertexSkinningDataSource is the WGSL definition of the VertexSkinningData struct.
//
//go:embed assets/vertex_skinning_data.wgsl
var GPUVertexSkinningDataSource string

// GPUSkinningConstantsSource is the WGSL definition of the SkinningConstants struct.
//
//go:embed assets/skinning_constants.wgsl
var GPUSkinningConstantsSource string

// GPUShadowConstantsSource is the WGSL definition of the ShadowConstants struct.
//
//go:embed assets/shadow_constants.wgsl
var GPUShadowConstantsSource string

// GPUTempVertexSource is the WGSL vertex input struct matching STempVertex.
//
//go:embed assets/temp_vertex.wgsl
var GPUTempVertexSource string

// GPUTempConstantsSource is the WGSL definition of the TempConstants struct.
//
//go:embed assets/temp_constants.wgsl
var GPUTempConstantsSource string

// GPUUIVertexSource is the WGSL vertex input struct matching SUIVertex.
//
//go:embed assets/ui_vertex.wgsl
var GPUUIVertexSource string

// GPUUIConstantsSource is the WGSL definition of the UIConstants struct.
//
//go:embed assets/ui_constants.wgsl
var GPUUIConstantsSource string

// putFloats writes vals as little-endian float32 values starting at off.
func putFloats(buf []byte, off int, vals ...float32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[off+i*4:], math.Float32bits(v))
	}
}

// putUints writes vals as little-endian uint32 values starting at off.
func putUints(buf []byte, off int, vals ...uint32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[off+i*4:], v)
	}
}

// SModelViewProjection is the per-draw transform block of the shadow and world vertex shaders.
// Matches the WGSL ModelViewProjection struct (192 bytes).
type SModelViewProjection struct {
	Model      common.Mat4 // offset   0
	View       common.Mat4 // offset  64
	Projection common.Mat4 // offset 128
}

// Size returns the size of the struct in bytes (192).
func (s *SModelViewProjection) Size() int {
	return int(unsafe.Sizeof(*s))
}

// Marshal serializes the struct for upload as root constants.
//
// Returns:
//   - []byte: the serialized bytes
func (s *SModelViewProjection) Marshal() []byte {
	buf := make([]byte, s.Size())
	putFloats(buf, 0, s.Model[:]...)
	putFloats(buf, 64, s.View[:]...)
	putFloats(buf, 128, s.Projection[:]...)
	return buf
}

// SBaseVertexData is one static mesh vertex. Meshes store each attribute in its own stream so
// the skinning pass can read and write positions and normals independently; the struct is the
// interleaved form handed to the mesh loader (32 bytes, no padding).
type SBaseVertexData struct {
	Position [3]float32 // offset  0, @location(0)
	Normal   [3]float32 // offset 12, @location(1)
	UV       [2]float32 // offset 24, @location(2)
}

// Size returns the size of the struct in bytes (32).
func (s *SBaseVertexData) Size() int {
	return int(unsafe.Sizeof(*s))
}

// Marshal serializes the vertex.
func (s *SBaseVertexData) Marshal() []byte {
	buf := make([]byte, s.Size())
	putFloats(buf, 0, s.Position[:]...)
	putFloats(buf, 12, s.Normal[:]...)
	putFloats(buf, 24, s.UV[:]...)
	return buf
}

// STextureMetadata describes how the world pixel shader shades one draw.
// Matches the WGSL TextureMetadata struct (32 bytes).
type STextureMetadata struct {
	BaseColor      [4]float32 // offset  0
	HasTexture     uint32     // offset 16: sample the bound texture when nonzero
	ReceivesShadow uint32     // offset 20
	_pad           [2]uint32  // offset 24
}

// Size returns the size of the struct in bytes (32).
func (s *STextureMetadata) Size() int {
	return int(unsafe.Sizeof(*s))
}

// Marshal serializes the struct for upload as root constants.
func (s *STextureMetadata) Marshal() []byte {
	buf := make([]byte, s.Size())
	putFloats(buf, 0, s.BaseColor[:]...)
	putUints(buf, 16, s.HasTexture, s.ReceivesShadow, 0, 0)
	return buf
}

// SVertexSkinningData holds the four joint influences of one vertex.
// Matches the WGSL VertexSkinningData struct (32 bytes).
type SVertexSkinningData struct {
	Joints  [4]uint32  // offset  0
	Weights [4]float32 // offset 16
}

// Size returns the size of the struct in bytes (32).
func (s *SVertexSkinningData) Size() int {
	return int(unsafe.Sizeof(*s))
}

// Marshal serializes the struct.
func (s *SVertexSkinningData) Marshal() []byte {
	buf := make([]byte, s.Size())
	putUints(buf, 0, s.Joints[:]...)
	putFloats(buf, 16, s.Weights[:]...)
	return buf
}

// SSkinningConstants are the per-dispatch constants of the skinning compute shader (16 bytes).
type SSkinningConstants struct {
	VertexCount uint32
	JointCount  uint32
	_pad        [2]uint32
}

// Size returns the size of the struct in bytes (16).
func (s *SSkinningConstants) Size() int {
	return int(unsafe.Sizeof(*s))
}

// Marshal serializes the struct for upload as root constants.
func (s *SSkinningConstants) Marshal() []byte {
	buf := make([]byte, s.Size())
	putUints(buf, 0, s.VertexCount, s.JointCount, 0, 0)
	return buf
}

// SShadowConstants locate the point light the shadow cube was rendered from.
// Matches the WGSL ShadowConstants struct (32 bytes).
type SShadowConstants struct {
	LightPosition [3]float32 // offset  0
	FarPlane      float32    // offset 12
	NearPlane     float32    // offset 16
	Bias          float32    // offset 20
	_pad          [2]float32 // offset 24
}

// Size returns the size of the struct in bytes (32).
func (s *SShadowConstants) Size() int {
	return int(unsafe.Sizeof(*s))
}

// Marshal serializes the struct for upload as root constants.
func (s *SShadowConstants) Marshal() []byte {
	buf := make([]byte, s.Size())
	putFloats(buf, 0, s.LightPosition[0], s.LightPosition[1], s.LightPosition[2], s.FarPlane, s.NearPlane, s.Bias, 0, 0)
	return buf
}

// STempVertex is one debug line or triangle vertex (28 bytes).
type STempVertex struct {
	Position [3]float32 // @location(0)
	Color    [4]float32 // @location(1)
}

// Size returns the size of the struct in bytes (28).
func (s *STempVertex) Size() int {
	return int(unsafe.Sizeof(*s))
}

// Marshal serializes the vertex.
func (s *STempVertex) Marshal() []byte {
	buf := make([]byte, s.Size())
	putFloats(buf, 0, s.Position[:]...)
	putFloats(buf, 12, s.Color[:]...)
	return buf
}

// STempConstants is the view-projection used by the debug geometry passes (64 bytes).
type STempConstants struct {
	ViewProjection common.Mat4
}

// Size returns the size of the struct in bytes (64).
func (s *STempConstants) Size() int {
	return int(unsafe.Sizeof(*s))
}

// Marshal serializes the struct for upload as root constants.
func (s *STempConstants) Marshal() []byte {
	buf := make([]byte, s.Size())
	putFloats(buf, 0, s.ViewProjection[:]...)
	return buf
}

// SUIVertex is one UI vertex as produced by immediate-mode UI libraries (20 bytes).
// Color is packed RGBA8 and bound as unorm8x4.
type SUIVertex struct {
	Position [2]float32 // @location(0)
	UV       [2]float32 // @location(1)
	Color    uint32     // @location(2)
}

// Size returns the size of the struct in bytes (20).
func (s *SUIVertex) Size() int {
	return int(unsafe.Sizeof(*s))
}

// Marshal serializes the vertex.
func (s *SUIVertex) Marshal() []byte {
	buf := make([]byte, s.Size())
	putFloats(buf, 0, s.Position[0], s.Position[1], s.UV[0], s.UV[1])
	putUints(buf, 16, s.Color)
	return buf
}

// SUIConstants is the orthographic projection of the UI pass (64 bytes).
type SUIConstants struct {
	Projection common.Mat4
}

// Size returns the size of the struct in bytes (64).
func (s *SUIConstants) Size() int {
	return int(unsafe.Sizeof(*s))
}

// Marshal serializes the struct for upload as root constants.
func (s *SUIConstants) Marshal() []byte {
	buf := make([]byte, s.Size())
	putFloats(buf, 0, s.Projection[:]...)
	return buf
}
