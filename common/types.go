// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNoTextureSource is returned when a TextureSource carries neither bytes nor a path.
var ErrNoTextureSource = errors.New("texture has neither data nor path")

// TextureData holds decoded RGBA8 pixel data ready for GPU upload.
type TextureData struct {
	// Pixels is tightly packed RGBA, 4 bytes per pixel, row-major.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}

// RowPitch returns the number of bytes in one row of pixels.
func (t TextureData) RowPitch() uint32 {
	return t.Width * 4
}

// TextureSource references an encoded image, either embedded bytes or a file on disk.
// Encoded formats are PNG, JPEG, GIF, BMP, TIFF and WebP.
type TextureSource struct {
	// Name is an identifier for this texture (e.g., "diffuse").
	Name string

	// Path is the file path for external textures (empty for embedded).
	Path string

	// Data contains raw encoded image bytes for embedded textures.
	Data []byte

	// MimeType indicates the image format (e.g., "image/png"). Informational only,
	// the decoder sniffs the format from the bytes.
	MimeType string
}

// Bytes returns the encoded bytes of the source, reading Path from disk when Data is empty.
//
// Returns:
//   - []byte: the encoded image bytes
//   - error: ErrNoTextureSource or a read failure
func (t *TextureSource) Bytes() ([]byte, error) {
	if t == nil {
		return nil, ErrNoTextureSource
	}
	if len(t.Data) > 0 {
		return t.Data, nil
	}
	if t.Path == "" {
		return nil, ErrNoTextureSource
	}
	data, err := os.ReadFile(t.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read texture file %s: %w", t.Path, err)
	}
	return data, nil
}

// Decode decodes the texture to raw RGBA pixel data.
// Reference: https://pkg.go.dev/image
//
// Returns:
//   - TextureData: the decoded pixels and dimensions
//   - error: error if reading or decoding fails
func (t *TextureSource) Decode() (TextureData, error) {
	data, err := t.Bytes()
	if err != nil {
		return TextureData{}, err
	}
	return DecodeImage(data)
}

// DecodeImage decodes any registered image format into tightly packed RGBA8.
//
// Parameters:
//   - data: the encoded image bytes
//
// Returns:
//   - TextureData: the decoded pixels and dimensions
//   - error: error if the format is unknown or the data is corrupt
func DecodeImage(data []byte) (TextureData, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return TextureData{}, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	return TextureData{
		Pixels: rgba.Pix,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}, nil
}

// ContentHash returns a 64-bit content hash of the given byte slices, used as a cache uid for
// meshes and textures.
func ContentHash(parts ...[]byte) uint64 {
	h := sha256.New()
	var lenBuf [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}
