package pipeline

// TempBuilderOption is a functional option for configuring a TempGeometryPipeline.
type TempBuilderOption func(*tempGeometryPipeline)

// WithTempBackBuffers sets how many vertex buffers are cycled, one per back buffer.
//
// Parameters:
//   - n: the back buffer count
//
// Returns:
//   - TempBuilderOption: a function that applies the back buffer option
func WithTempBackBuffers(n int) TempBuilderOption {
	return func(t *tempGeometryPipeline) {
		t.backBuffers = max(n, 1)
	}
}

// WithTempCapacity sets how many vertices one frame of debug geometry can hold over both layers.
func WithTempCapacity(vertices uint32) TempBuilderOption {
	return func(t *tempGeometryPipeline) {
		if vertices < 3 {
			panic("pipeline: temp geometry capacity must hold a triangle")
		}
		t.maxVertices = vertices
	}
}
