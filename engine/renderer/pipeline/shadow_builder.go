package pipeline

// ShadowBuilderOption is a functional option for configuring a ShadowMappingPipeline.
type ShadowBuilderOption func(*shadowMappingPipeline)

// WithShadowResolution sets the edge length of each cube face in texels.
//
// Parameters:
//   - size: the face resolution
//
// Returns:
//   - ShadowBuilderOption: a function that applies the resolution option
func WithShadowResolution(size uint32) ShadowBuilderOption {
	return func(s *shadowMappingPipeline) {
		if size == 0 {
			panic("pipeline: shadow resolution must be positive")
		}
		s.resolution = size
	}
}

// WithShadowPlanes sets the near and far planes of the cube face projections.
//
// Parameters:
//   - near: the near plane distance, greater than zero
//   - far: the far plane distance, greater than near
//
// Returns:
//   - ShadowBuilderOption: a function that applies the planes option
func WithShadowPlanes(near, far float32) ShadowBuilderOption {
	return func(s *shadowMappingPipeline) {
		if near <= 0 || far <= near {
			panic("pipeline: shadow planes must satisfy 0 < near < far")
		}
		s.near, s.far = near, far
	}
}

// WithShadowBias sets the comparison bias the world pass subtracts and the raster depth bias
// of the shadow pass.
func WithShadowBias(compare float32, depthBias int32, slopeScale float32) ShadowBuilderOption {
	return func(s *shadowMappingPipeline) {
		s.bias = compare
		s.depthBias = depthBias
		s.slopeBias = slopeScale
	}
}
