package transform

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/simsensors/rangecloud/pointcloud"
	"github.com/simsensors/rangecloud/rimage"
)

func TestIntrinsicsFromFOV(t *testing.T) {
	params, err := NewPinholeCameraIntrinsicsFromFOV(4, 2, math.Pi/2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.Fx, test.ShouldAlmostEqual, 2)
	test.That(t, params.Fy, test.ShouldAlmostEqual, 1)
	test.That(t, params.Ppx, test.ShouldEqual, 2)
	test.That(t, params.Ppy, test.ShouldEqual, 1)

	for _, size := range []int{1, 64, 640} {
		for _, fov := range []float64{0.01, 1, math.Pi / 2, 3} {
			square, err := NewPinholeCameraIntrinsicsFromFOV(size, size, fov)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, square.Fx, test.ShouldEqual, square.Fy)
			test.That(t, square.Fx, test.ShouldBeGreaterThan, 0)
		}
	}
}

func TestIntrinsicsFromFOVErrors(t *testing.T) {
	for _, tc := range []struct {
		name          string
		width, height int
		fov           float64
	}{
		{"zero width", 0, 2, 1},
		{"negative height", 4, -1, 1},
		{"zero fov", 4, 2, 0},
		{"negative fov", 4, 2, -1},
		{"fov of pi", 4, 2, math.Pi},
		{"nan fov", 4, 2, math.NaN()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			params, err := NewPinholeCameraIntrinsicsFromFOV(tc.width, tc.height, tc.fov)
			test.That(t, params, test.ShouldBeNil)
			test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
		})
	}
}

func TestCheckValid(t *testing.T) {
	var nilParams *PinholeCameraIntrinsics
	test.That(t, nilParams.CheckValid(), test.ShouldNotBeNil)
	test.That(t, (&PinholeCameraIntrinsics{Width: 2, Height: 2, Fx: 1, Fy: 0}).CheckValid(), test.ShouldNotBeNil)
	test.That(t, (&PinholeCameraIntrinsics{Width: 2, Height: 2, Fx: 1, Fy: 1, Ppx: -1}).CheckValid(), test.ShouldNotBeNil)
	test.That(t, (&PinholeCameraIntrinsics{Width: 2, Height: 2, Fx: 1, Fy: 1, Ppx: 1, Ppy: 1}).CheckValid(), test.ShouldBeNil)
}

func filledRangeImage(width, height int, val float32) *rimage.RangeImage {
	rng := rimage.NewRangeImage(width, height)
	for i := range rng.Data() {
		rng.Data()[i] = val
	}
	return rng
}

func TestProjectRangeImageScenario(t *testing.T) {
	params, err := NewPinholeCameraIntrinsicsFromFOV(4, 2, math.Pi/2)
	test.That(t, err, test.ShouldBeNil)

	cloud := pointcloud.NewOrganized(4, 2)
	test.That(t, params.ProjectRangeImage(filledRangeImage(4, 2, 1), cloud), test.ShouldBeNil)
	test.That(t, cloud.Floats(), test.ShouldHaveLength, 4*2*3)

	corner := cloud.Floats()[0:3]
	test.That(t, corner[0], test.ShouldEqual, float32(1))
	test.That(t, corner[1], test.ShouldEqual, float32(1))
	test.That(t, corner[2], test.ShouldEqual, float32(1))

	// the ray through the principal point has no lateral offset
	center := cloud.At(2, 1)
	test.That(t, center.X, test.ShouldEqual, 1)
	test.That(t, center.Y, test.ShouldEqual, 0)
	test.That(t, center.Z, test.ShouldEqual, 0)

	// right of center goes to -y, below center goes to -z
	last := cloud.At(3, 1)
	test.That(t, last.Y, test.ShouldEqual, -0.5)
	test.That(t, last.Z, test.ShouldEqual, 0)
}

func TestProjectRangeImagePrincipalPoint(t *testing.T) {
	params, err := NewPinholeCameraIntrinsicsFromFOV(8, 6, 1.2)
	test.That(t, err, test.ShouldBeNil)
	cloud := pointcloud.NewOrganized(8, 6)
	for _, r := range []float32{0, 0.25, 3, 1e6} {
		test.That(t, params.ProjectRangeImage(filledRangeImage(8, 6, r), cloud), test.ShouldBeNil)
		center := cloud.At(4, 3)
		test.That(t, center.X, test.ShouldEqual, float64(r))
		test.That(t, center.Y, test.ShouldEqual, 0)
		test.That(t, center.Z, test.ShouldEqual, 0)
	}
}

func TestProjectRangeImageLocality(t *testing.T) {
	const width, height = 16, 9
	params, err := NewPinholeCameraIntrinsicsFromFOV(width, height, 1.0)
	test.That(t, err, test.ShouldBeNil)

	//nolint:gosec
	rnd := rand.New(rand.NewSource(7))
	original := rimage.NewRangeImage(width, height)
	for i := range original.Data() {
		original.Data()[i] = rnd.Float32() * 10
	}
	permutation := rnd.Perm(width * height)
	permuted := rimage.NewRangeImage(width, height)
	for dst, src := range permutation {
		permuted.Data()[dst] = original.Data()[src]
	}

	before := pointcloud.NewOrganized(width, height)
	after := pointcloud.NewOrganized(width, height)
	test.That(t, params.ProjectRangeImage(original, before), test.ShouldBeNil)
	test.That(t, params.ProjectRangeImage(permuted, after), test.ShouldBeNil)

	// every pixel depends only on its own range: the x of a point is its range, and y/z are the
	// pixel ray scaled by it.
	for idx := 0; idx < width*height; idx++ {
		i, j := idx%width, idx/width
		x := permuted.Data()[idx]
		test.That(t, after.Floats()[idx*3], test.ShouldEqual, x)
		test.That(t, after.Floats()[idx*3+1], test.ShouldEqual, -(float32(i)-float32(params.Ppx))*x/float32(params.Fx))
		test.That(t, after.Floats()[idx*3+2], test.ShouldEqual, -(float32(j)-float32(params.Ppy))*x/float32(params.Fy))
	}

	// a pixel holding the same range in both images yields the same point
	for idx, src := range permutation {
		if src == idx {
			test.That(t, after.Floats()[idx*3:idx*3+3], test.ShouldResemble, before.Floats()[idx*3:idx*3+3])
		}
	}
}

func TestProjectRangeImageIdempotent(t *testing.T) {
	params, err := NewPinholeCameraIntrinsicsFromFOV(5, 3, 0.8)
	test.That(t, err, test.ShouldBeNil)
	rng := filledRangeImage(5, 3, 2.5)
	rng.Set(1, 1, float32(math.Inf(1)))
	rng.Set(4, 2, float32(math.NaN()))

	first := pointcloud.NewOrganized(5, 3)
	second := pointcloud.NewOrganized(5, 3)
	test.That(t, params.ProjectRangeImage(rng, first), test.ShouldBeNil)
	test.That(t, params.ProjectRangeImage(rng, second), test.ShouldBeNil)
	for i := range first.Floats() {
		test.That(t, math.Float32bits(second.Floats()[i]), test.ShouldEqual, math.Float32bits(first.Floats()[i]))
	}

	// no-return ranges propagate instead of being zeroed
	test.That(t, math.IsInf(first.At(1, 1).X, 1), test.ShouldBeTrue)
	test.That(t, math.IsNaN(first.At(4, 2).X), test.ShouldBeTrue)
	test.That(t, math.IsNaN(first.At(4, 2).Y), test.ShouldBeTrue)
	test.That(t, first.At(0, 0).X, test.ShouldEqual, 2.5)
}

func TestProjectRangeImageSizeMismatch(t *testing.T) {
	params, err := NewPinholeCameraIntrinsicsFromFOV(4, 2, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.ProjectRangeImage(rimage.NewRangeImage(2, 4), pointcloud.NewOrganized(4, 2)), test.ShouldNotBeNil)
	test.That(t, params.ProjectRangeImage(rimage.NewRangeImage(4, 2), pointcloud.NewOrganized(4, 3)), test.ShouldNotBeNil)
}

func TestCameraAndProjectionMatrices(t *testing.T) {
	params := &PinholeCameraIntrinsics{Width: 4, Height: 2, Fx: 2, Fy: 1, Ppx: 2, Ppy: 1}
	k := params.GetCameraMatrix()
	test.That(t, mat.Equal(k, mat.NewDense(3, 3, []float64{
		2, 0, 2,
		0, 1, 1,
		0, 0, 1,
	})), test.ShouldBeTrue)

	p := params.GetProjectionMatrix()
	test.That(t, mat.Equal(p, mat.NewDense(3, 4, []float64{
		2, 0, 2, 0,
		0, 1, 1, 0,
		0, 0, 1, 0,
	})), test.ShouldBeTrue)

	var nilParams *PinholeCameraIntrinsics
	test.That(t, nilParams.GetCameraMatrix(), test.ShouldBeNil)
}

func TestNoDistortion(t *testing.T) {
	var d Distorter = NoDistortion()
	test.That(t, d.ModelType(), test.ShouldEqual, PlumbBobDistortionType)
	test.That(t, d.Parameters(), test.ShouldResemble, []float64{0, 0, 0, 0, 0})

	var nilModel *PlumbBob
	test.That(t, nilModel.Parameters(), test.ShouldHaveLength, 5)
}

func TestNoIntrinsicsErrorMessage(t *testing.T) {
	// messages carrying format verbs are kept verbatim
	err := NewNoIntrinsicsError("Invalid size (100%, 0)")
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldEqual,
		"Invalid size (100%, 0): camera intrinsic parameters are not available")
}
