package gpu

// SwapChain is the presentation surface. Back buffers are external resources that start in
// ResourceStatePresent every time the chain is (re)created.
type SwapChain interface {
	// BufferCount returns the number of back buffers.
	BufferCount() int
	// CurrentBackBufferIndex returns the back buffer the next frame renders into.
	CurrentBackBufferIndex() int
	// BackBuffer returns back buffer i.
	BackBuffer(i int) *Resource
	// Format returns the back buffer format.
	Format() Format
	// Size returns the back buffer dimensions.
	Size() (width, height uint32)
	// Resize recreates the back buffers. The caller must have drained all work using them.
	Resize(width, height uint32) error
	// Present shows the current back buffer and advances the index.
	Present() error
	// Release destroys the chain.
	Release()
}
