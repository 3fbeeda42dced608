package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidGLTF is returned for documents the importer cannot read.
var ErrInvalidGLTF = errors.New("loader: invalid glTF")

// gltfParser holds one parsed document with its buffers resolved, and reads accessors out of
// it.
type gltfParser struct {
	baseDir string
	doc     *gltfDocument
}

// parseGLTFFile reads a .gltf or .glb file. GLB is detected by its magic as well as its
// extension.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - *gltfParser: the parser over the document
//   - error: a read or format error
func parseGLTFFile(path string) (*gltfParser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	isGLB := strings.EqualFold(filepath.Ext(path), ".glb") ||
		(len(data) >= 4 && binary.LittleEndian.Uint32(data) == glbMagic)
	return parseGLTFBytes(filepath.Dir(path), data, isGLB)
}

// parseGLTFReader reads a document from r. Relative buffer and image URIs cannot be resolved
// without a base directory, so only embedded data is supported.
func parseGLTFReader(r io.Reader, isGLB bool) (*gltfParser, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parseGLTFBytes("", data, isGLB)
}

func parseGLTFBytes(baseDir string, data []byte, isGLB bool) (*gltfParser, error) {
	p := &gltfParser{baseDir: baseDir}
	var bin []byte
	if isGLB {
		var err error
		if data, bin, err = splitGLB(data); err != nil {
			return nil, err
		}
	}

	var doc gltfDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGLTF, err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, fmt.Errorf("%w: asset version %q", ErrInvalidGLTF, doc.Asset.Version)
	}
	if len(doc.ExtensionsRequired) > 0 {
		return nil, fmt.Errorf("%w: required extensions %v", ErrInvalidGLTF, doc.ExtensionsRequired)
	}
	for i := range doc.Buffers {
		buf := &doc.Buffers[i]
		switch {
		case buf.URI != "":
			d, err := p.readURI(buf.URI)
			if err != nil {
				return nil, fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.data = d
		case i == 0 && bin != nil:
			buf.data = bin
		default:
			return nil, fmt.Errorf("%w: buffer %d has no data", ErrInvalidGLTF, i)
		}
		if len(buf.data) < buf.ByteLength {
			return nil, fmt.Errorf("%w: buffer %d holds %d of %d bytes", ErrInvalidGLTF, i, len(buf.data), buf.ByteLength)
		}
	}
	p.doc = &doc
	return p, nil
}

// splitGLB returns the JSON and BIN chunks of a GLB container.
func splitGLB(data []byte) (jsonChunk, bin []byte, err error) {
	if len(data) < 12 {
		return nil, nil, fmt.Errorf("%w: GLB of %d bytes", ErrInvalidGLTF, len(data))
	}
	if binary.LittleEndian.Uint32(data[0:]) != glbMagic {
		return nil, nil, fmt.Errorf("%w: bad GLB magic", ErrInvalidGLTF)
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != glbVersion {
		return nil, nil, fmt.Errorf("%w: GLB version %d", ErrInvalidGLTF, v)
	}
	rest := data[12:]
	for len(rest) >= 8 {
		n := binary.LittleEndian.Uint32(rest[0:])
		typ := binary.LittleEndian.Uint32(rest[4:])
		rest = rest[8:]
		if uint64(n) > uint64(len(rest)) {
			return nil, nil, fmt.Errorf("%w: truncated GLB chunk", ErrInvalidGLTF)
		}
		switch typ {
		case glbChunkJSON:
			jsonChunk = rest[:n]
		case glbChunkBIN:
			bin = rest[:n]
		}
		rest = rest[n:]
	}
	if jsonChunk == nil {
		return nil, nil, fmt.Errorf("%w: GLB has no JSON chunk", ErrInvalidGLTF)
	}
	return jsonChunk, bin, nil
}

// readURI resolves a data URI or a path relative to the document.
func (p *gltfParser) readURI(uri string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(uri, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("%w: unsupported data uri", ErrInvalidGLTF)
		}
		return base64.StdEncoding.DecodeString(payload)
	}
	if p.baseDir == "" {
		return nil, fmt.Errorf("%w: external uri %q without a base directory", ErrInvalidGLTF, uri)
	}
	return os.ReadFile(filepath.Join(p.baseDir, filepath.FromSlash(uri)))
}

// bufferView returns the bytes of a buffer view.
func (p *gltfParser) bufferView(index int) ([]byte, error) {
	if index < 0 || index >= len(p.doc.BufferViews) {
		return nil, fmt.Errorf("%w: buffer view %d", ErrInvalidGLTF, index)
	}
	bv := p.doc.BufferViews[index]
	if bv.Buffer < 0 || bv.Buffer >= len(p.doc.Buffers) {
		return nil, fmt.Errorf("%w: buffer %d", ErrInvalidGLTF, bv.Buffer)
	}
	data := p.doc.Buffers[bv.Buffer].data
	if bv.ByteOffset+bv.ByteLength > len(data) {
		return nil, fmt.Errorf("%w: buffer view %d exceeds its buffer", ErrInvalidGLTF, index)
	}
	return data[bv.ByteOffset : bv.ByteOffset+bv.ByteLength], nil
}

func componentSize(componentType int) int {
	switch componentType {
	case gltfByte, gltfUnsignedByte:
		return 1
	case gltfShort, gltfUnsignedShort:
		return 2
	case gltfUnsignedInt, gltfFloat:
		return 4
	}
	return 0
}

func componentCount(typ string) int {
	switch typ {
	case "SCALAR":
		return 1
	case "VEC2":
		return 2
	case "VEC3":
		return 3
	case "VEC4", "MAT2":
		return 4
	case "MAT3":
		return 9
	case "MAT4":
		return 16
	}
	return 0
}

// component decodes one component. Normalized integers map to [0,1] or [-1,1]; other integers
// keep their value.
func component(b []byte, componentType int, normalized bool) float32 {
	switch componentType {
	case gltfFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case gltfUnsignedByte:
		if normalized {
			return float32(b[0]) / 255
		}
		return float32(b[0])
	case gltfByte:
		if normalized {
			return max(float32(int8(b[0]))/127, -1)
		}
		return float32(int8(b[0]))
	case gltfUnsignedShort:
		v := binary.LittleEndian.Uint16(b)
		if normalized {
			return float32(v) / 65535
		}
		return float32(v)
	case gltfShort:
		v := int16(binary.LittleEndian.Uint16(b))
		if normalized {
			return max(float32(v)/32767, -1)
		}
		return float32(v)
	case gltfUnsignedInt:
		return float32(binary.LittleEndian.Uint32(b))
	}
	return 0
}

// walk visits every element of an accessor with the raw bytes of each component.
//
// Parameters:
//   - index: the accessor index
//   - typ: the required accessor type
//   - fn: called per element with the element index and its bytes
//
// Returns:
//   - *gltfAccessor: the accessor
//   - error: a type mismatch or a range error
func (p *gltfParser) walk(index int, typ string, fn func(i int, elem []byte)) (*gltfAccessor, error) {
	if index < 0 || index >= len(p.doc.Accessors) {
		return nil, fmt.Errorf("%w: accessor %d", ErrInvalidGLTF, index)
	}
	acc := &p.doc.Accessors[index]
	if acc.Type != typ {
		return nil, fmt.Errorf("%w: accessor %d is %s, want %s", ErrInvalidGLTF, index, acc.Type, typ)
	}
	if acc.Sparse != nil {
		return nil, fmt.Errorf("%w: accessor %d is sparse", ErrInvalidGLTF, index)
	}
	size := componentSize(acc.ComponentType) * componentCount(acc.Type)
	if size == 0 {
		return nil, fmt.Errorf("%w: accessor %d component type %d", ErrInvalidGLTF, index, acc.ComponentType)
	}
	if acc.BufferView == nil {
		// no buffer view means all zeros
		zero := make([]byte, size)
		for i := 0; i < acc.Count; i++ {
			fn(i, zero)
		}
		return acc, nil
	}
	view, err := p.bufferView(*acc.BufferView)
	if err != nil {
		return nil, err
	}
	stride := size
	if s := p.doc.BufferViews[*acc.BufferView].ByteStride; s != nil && *s > 0 {
		stride = *s
	}
	if acc.Count > 0 && acc.ByteOffset+(acc.Count-1)*stride+size > len(view) {
		return nil, fmt.Errorf("%w: accessor %d overruns its buffer view", ErrInvalidGLTF, index)
	}
	for i := 0; i < acc.Count; i++ {
		off := acc.ByteOffset + i*stride
		fn(i, view[off:off+size])
	}
	return acc, nil
}

// floats reads an accessor of n components per element into float32s.
func (p *gltfParser) floats(index int, typ string, n int) ([]float32, error) {
	var out []float32
	acc, err := p.walk(index, typ, func(i int, elem []byte) {
		if out == nil {
			out = make([]float32, p.doc.Accessors[index].Count*n)
		}
		cs := len(elem) / n
		for c := 0; c < n; c++ {
			out[i*n+c] = component(elem[c*cs:], p.doc.Accessors[index].ComponentType, p.doc.Accessors[index].Normalized)
		}
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = make([]float32, acc.Count*n)
	}
	return out, nil
}

func (p *gltfParser) scalars(index int) ([]float32, error) {
	return p.floats(index, "SCALAR", 1)
}

func (p *gltfParser) vec2s(index int) ([][2]float32, error) {
	f, err := p.floats(index, "VEC2", 2)
	if err != nil {
		return nil, err
	}
	out := make([][2]float32, len(f)/2)
	for i := range out {
		out[i] = [2]float32{f[i*2], f[i*2+1]}
	}
	return out, nil
}

func (p *gltfParser) vec3s(index int) ([][3]float32, error) {
	f, err := p.floats(index, "VEC3", 3)
	if err != nil {
		return nil, err
	}
	out := make([][3]float32, len(f)/3)
	for i := range out {
		out[i] = [3]float32{f[i*3], f[i*3+1], f[i*3+2]}
	}
	return out, nil
}

func (p *gltfParser) vec4s(index int) ([][4]float32, error) {
	f, err := p.floats(index, "VEC4", 4)
	if err != nil {
		return nil, err
	}
	out := make([][4]float32, len(f)/4)
	for i := range out {
		out[i] = [4]float32{f[i*4], f[i*4+1], f[i*4+2], f[i*4+3]}
	}
	return out, nil
}

func (p *gltfParser) mat4s(index int) ([][16]float32, error) {
	f, err := p.floats(index, "MAT4", 16)
	if err != nil {
		return nil, err
	}
	out := make([][16]float32, len(f)/16)
	for i := range out {
		copy(out[i][:], f[i*16:])
	}
	return out, nil
}

// indices reads an unsigned integer index accessor.
func (p *gltfParser) indices(index int) ([]uint32, error) {
	var out []uint32
	_, err := p.walk(index, "SCALAR", func(i int, elem []byte) {
		acc := &p.doc.Accessors[index]
		if out == nil {
			out = make([]uint32, acc.Count)
		}
		switch acc.ComponentType {
		case gltfUnsignedByte:
			out[i] = uint32(elem[0])
		case gltfUnsignedShort:
			out[i] = uint32(binary.LittleEndian.Uint16(elem))
		case gltfUnsignedInt:
			out[i] = binary.LittleEndian.Uint32(elem)
		}
	})
	if err != nil {
		return nil, err
	}
	if ct := p.doc.Accessors[index].ComponentType; ct != gltfUnsignedByte && ct != gltfUnsignedShort && ct != gltfUnsignedInt {
		return nil, fmt.Errorf("%w: index component type %d", ErrInvalidGLTF, ct)
	}
	return out, nil
}

// joints reads a JOINTS_n accessor of unsigned bytes or shorts.
func (p *gltfParser) joints(index int) ([][4]uint32, error) {
	if index >= 0 && index < len(p.doc.Accessors) {
		if ct := p.doc.Accessors[index].ComponentType; ct != gltfUnsignedByte && ct != gltfUnsignedShort {
			return nil, fmt.Errorf("%w: joints component type %d", ErrInvalidGLTF, ct)
		}
	}
	out := make([][4]uint32, 0)
	_, err := p.walk(index, "VEC4", func(i int, elem []byte) {
		var j [4]uint32
		cs := len(elem) / 4
		for c := 0; c < 4; c++ {
			if cs == 1 {
				j[c] = uint32(elem[c])
			} else {
				j[c] = uint32(binary.LittleEndian.Uint16(elem[c*2:]))
			}
		}
		out = append(out, j)
	})
	return out, err
}

// image returns the encoded bytes and mime type of an image stored in a buffer view, or the
// resolved path of an external image.
func (p *gltfParser) image(index int) (data []byte, path string, mime string, err error) {
	if index < 0 || index >= len(p.doc.Images) {
		return nil, "", "", fmt.Errorf("%w: image %d", ErrInvalidGLTF, index)
	}
	img := p.doc.Images[index]
	switch {
	case img.BufferView != nil:
		b, err := p.bufferView(*img.BufferView)
		return bytes.Clone(b), "", img.MimeType, err
	case strings.HasPrefix(img.URI, "data:"):
		mime, _, _ = strings.Cut(strings.TrimPrefix(img.URI, "data:"), ";")
		b, err := p.readURI(img.URI)
		return b, "", mime, err
	case img.URI != "" && p.baseDir != "":
		return nil, filepath.Join(p.baseDir, filepath.FromSlash(img.URI)), img.MimeType, nil
	}
	return nil, "", "", fmt.Errorf("%w: image %d has no data", ErrInvalidGLTF, index)
}
