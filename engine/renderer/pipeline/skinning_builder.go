package pipeline

// SkinningBuilderOption is a functional option for configuring a ComputeSkinningPipeline.
type SkinningBuilderOption func(*computeSkinningPipeline)

// WithSkinningBackBuffers sets how many joint buffers are cycled, one per back buffer.
//
// Parameters:
//   - n: the back buffer count
//
// Returns:
//   - SkinningBuilderOption: a function that applies the back buffer option
func WithSkinningBackBuffers(n int) SkinningBuilderOption {
	return func(p *computeSkinningPipeline) {
		p.backBuffers = max(n, 1)
	}
}

// WithMaxJointMatrices sets how many joint matrices one frame can skin with, summed over every
// animated instance.
//
// Parameters:
//   - n: the joint buffer capacity
//
// Returns:
//   - SkinningBuilderOption: a function that applies the capacity option
func WithMaxJointMatrices(n uint32) SkinningBuilderOption {
	return func(p *computeSkinningPipeline) {
		p.maxJoints = n
	}
}

// WithRetireAfter sets after how many frames without skinning an instance's streams are
// released. It must exceed the number of frames in flight.
func WithRetireAfter(frames uint64) SkinningBuilderOption {
	return func(p *computeSkinningPipeline) {
		p.retireAfter = frames
	}
}
