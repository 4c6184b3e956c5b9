package pointcloud

import (
	"encoding/binary"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

const (
	// FloatsPerPoint is the number of float32 values stored for a point: x, y and z.
	FloatsPerPoint = 3
	// PointStep is the size in bytes of one encoded point, with no padding.
	PointStep = FloatsPerPoint * 4
)

// Organized is a dense point cloud laid out like the image it was computed from: one point per
// pixel, row-major, so the point of pixel (i, j) sits at index i + j*width. It is meant to be
// allocated once and overwritten in place.
type Organized struct {
	width  int
	height int

	points []float32
}

// NewOrganized returns a zeroed organized cloud of width*height points.
func NewOrganized(width, height int) *Organized {
	return &Organized{
		width:  width,
		height: height,
		points: make([]float32, width*height*FloatsPerPoint),
	}
}

// Width returns the number of points per row.
func (cloud *Organized) Width() int {
	return cloud.width
}

// Height returns the number of rows.
func (cloud *Organized) Height() int {
	return cloud.height
}

// Size returns the number of points in the cloud, valid or not.
func (cloud *Organized) Size() int {
	return cloud.width * cloud.height
}

// Floats returns the interleaved x, y, z buffer.
func (cloud *Organized) Floats() []float32 {
	return cloud.points
}

// SetIndex stores the point for the pixel with the given flat index.
func (cloud *Organized) SetIndex(idx int, x, y, z float32) {
	base := idx * FloatsPerPoint
	cloud.points[base] = x
	cloud.points[base+1] = y
	cloud.points[base+2] = z
}

// At returns the point for pixel column i and row j.
func (cloud *Organized) At(i, j int) r3.Vector {
	base := (i + j*cloud.width) * FloatsPerPoint
	return r3.Vector{
		X: float64(cloud.points[base]),
		Y: float64(cloud.points[base+1]),
		Z: float64(cloud.points[base+2]),
	}
}

// RowStep returns the number of bytes in one encoded row.
func (cloud *Organized) RowStep() int {
	return cloud.width * PointStep
}

// EncodeTo writes the cloud as little-endian float32 triples into dst, which must be exactly
// Size()*PointStep bytes long.
func (cloud *Organized) EncodeTo(dst []byte) error {
	if len(dst) != cloud.Size()*PointStep {
		return errors.Errorf("destination has %d bytes, expected %d", len(dst), cloud.Size()*PointStep)
	}
	for i, v := range cloud.points {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	return nil
}

// DecodeFrom reads little-endian float32 triples from src, the inverse of EncodeTo.
func (cloud *Organized) DecodeFrom(src []byte) error {
	if len(src) != cloud.Size()*PointStep {
		return errors.Errorf("source has %d bytes, expected %d", len(src), cloud.Size()*PointStep)
	}
	for i := range cloud.points {
		cloud.points[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return nil
}
