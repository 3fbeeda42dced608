package pipeline

import (
	"github.com/Carmen-Shannon/srender/engine/renderer/gpu"
)

// WorldBuilderOption is a functional option for configuring a WorldPipeline.
type WorldBuilderOption func(*worldPipeline)

// WithFrustumCulling enables or disables skipping static models outside the view frustum.
//
// Parameters:
//   - enabled: true to cull
//
// Returns:
//   - WorldBuilderOption: a function that applies the culling option
func WithFrustumCulling(enabled bool) WorldBuilderOption {
	return func(w *worldPipeline) {
		w.culling = enabled
	}
}

// WithWorldCullMode sets the face culling of the world pipeline.
func WithWorldCullMode(mode gpu.CullMode) WorldBuilderOption {
	return func(w *worldPipeline) {
		w.cullMode = mode
	}
}
