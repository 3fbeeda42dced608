package common

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeImagePNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 3))
	src.Set(1, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	td, err := (&TextureSource{Data: buf.Bytes()}).Decode()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), td.Width)
	assert.Equal(t, uint32(3), td.Height)
	assert.Len(t, td.Pixels, 2*3*4)
	off := 2*td.RowPitch() + 4
	assert.Equal(t, []byte{10, 20, 30, 255}, td.Pixels[off:off+4])
}

func TestTextureSourceWithoutData(t *testing.T) {
	_, err := (&TextureSource{}).Decode()
	assert.ErrorIs(t, err, ErrNoTextureSource)
}

func TestContentHashSeparatesParts(t *testing.T) {
	a := ContentHash([]byte("ab"), []byte("c"))
	b := ContentHash([]byte("a"), []byte("bc"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ContentHash([]byte("ab"), []byte("c")))
}
