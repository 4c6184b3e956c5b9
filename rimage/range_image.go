package rimage

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Encoding32FC1 is the pixel format of a range image: one 32-bit float channel per pixel.
const Encoding32FC1 = "32FC1"

// RangeImageBytesPerPixel is the size of one encoded range pixel.
const RangeImageBytesPerPixel = 4

// RangeImage is a dense, row-major grid of distances in meters as produced by a range finder.
// Pixels without a return hold +Inf or NaN and are kept as is.
type RangeImage struct {
	width  int
	height int

	data []float32
}

// NewRangeImage returns a zeroed range image of the given size.
func NewRangeImage(width, height int) *RangeImage {
	return &RangeImage{
		width:  width,
		height: height,
		data:   make([]float32, width*height),
	}
}

// Width returns the horizontal resolution.
func (ri *RangeImage) Width() int {
	return ri.width
}

// Height returns the vertical resolution.
func (ri *RangeImage) Height() int {
	return ri.height
}

// Data returns the underlying row-major buffer. Callers must not keep it past the next write.
func (ri *RangeImage) Data() []float32 {
	return ri.data
}

// At returns the range at column x and row y.
func (ri *RangeImage) At(x, y int) float32 {
	return ri.data[x+y*ri.width]
}

// Set stores the range at column x and row y.
func (ri *RangeImage) Set(x, y int, val float32) {
	ri.data[x+y*ri.width] = val
}

// CopyFrom overwrites the image with buf, which must hold exactly width*height values. The image
// keeps no reference to buf.
func (ri *RangeImage) CopyFrom(buf []float32) error {
	if len(buf) != len(ri.data) {
		return errors.Errorf("range buffer has %d values, expected %d (%dx%d)", len(buf), len(ri.data), ri.width, ri.height)
	}
	copy(ri.data, buf)
	return nil
}

// Stride returns the number of bytes in one encoded row.
func (ri *RangeImage) Stride() int {
	return RangeImageBytesPerPixel * ri.width
}

// EncodeTo writes the image as little-endian 32FC1 into dst, which must be exactly
// width*height*4 bytes long.
func (ri *RangeImage) EncodeTo(dst []byte) error {
	if len(dst) != len(ri.data)*RangeImageBytesPerPixel {
		return errors.Errorf("destination has %d bytes, expected %d", len(dst), len(ri.data)*RangeImageBytesPerPixel)
	}
	for i, v := range ri.data {
		binary.LittleEndian.PutUint32(dst[i*RangeImageBytesPerPixel:], math.Float32bits(v))
	}
	return nil
}
