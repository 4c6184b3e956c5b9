// Package transform holds the camera models used to move between range images and 3D points.
package transform

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/simsensors/rangecloud/pointcloud"
	"github.com/simsensors/rangecloud/rimage"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// NewPinholeCameraIntrinsicsFromFOV derives the intrinsics of an ideal sensor from its resolution
// and its field of view in radians. The same field of view is applied to both axes and the
// principal point is the image center.
func NewPinholeCameraIntrinsicsFromFOV(width, height int, fov float64) (*PinholeCameraIntrinsics, error) {
	if width <= 0 || height <= 0 {
		return nil, NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", width, height))
	}
	// written so that NaN fails too
	if !(fov > 0 && fov < math.Pi) {
		return nil, NewNoIntrinsicsError(fmt.Sprintf("Invalid field of view %#v, must be in (0, pi)", fov))
	}
	tanHalfFOV := math.Tan(0.5 * fov)
	params := &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     0.5 * float64(width) / tanHalfFOV,
		Fy:     0.5 * float64(height) / tanHalfFOV,
		Ppx:    float64(width) / 2,
		Ppy:    float64(height) / 2,
	}
	return params, params.CheckValid()
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 || math.IsInf(params.Fx, 0) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 || math.IsInf(params.Fy, 0) {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// ProjectRangeImage writes into cloud the 3D point of every pixel of rng, in the sensor frame
// where x points forward. The range of a pixel becomes its x coordinate:
//
//	x = range[i + j*width]
//	y = -(i - ppx) * x / fx
//	z = -(j - ppy) * x / fy
//
// Ranges without a return are not filtered and yield invalid points at the same index. The
// only error is a size mismatch between rng, cloud and the intrinsics.
func (params *PinholeCameraIntrinsics) ProjectRangeImage(rng *rimage.RangeImage, cloud *pointcloud.Organized) error {
	if rng.Width() != params.Width || rng.Height() != params.Height {
		return errors.Errorf("range image and intrinsics dimensions don't match Range(%d,%d) != Intrinsics(%d,%d)",
			rng.Width(), rng.Height(), params.Width, params.Height)
	}
	if cloud.Width() != params.Width || cloud.Height() != params.Height {
		return errors.Errorf("point cloud and intrinsics dimensions don't match Cloud(%d,%d) != Intrinsics(%d,%d)",
			cloud.Width(), cloud.Height(), params.Width, params.Height)
	}

	width, height := params.Width, params.Height
	cx, cy := float32(params.Ppx), float32(params.Ppy)
	fx, fy := float32(params.Fx), float32(params.Fy)
	ranges := rng.Data()
	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			idx := i + j*width
			x := ranges[idx]
			y := -(float32(i) - cx) * x / fx
			z := -(float32(j) - cy) * x / fy
			cloud.SetIndex(idx, x, y, z)
		}
	}
	return nil
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// GetProjectionMatrix returns the 3x4 projection matrix [K|0] of a monocular camera.
func (params *PinholeCameraIntrinsics) GetProjectionMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	projection := mat.NewDense(3, 4, nil)
	projection.Slice(0, 3, 0, 3).(*mat.Dense).Copy(params.GetCameraMatrix())
	return projection
}
