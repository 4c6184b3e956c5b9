package transform

// DistortionType is the name of the distortion model.
type DistortionType string

// PlumbBobDistortionType is the five coefficient radial/tangential model (k1, k2, p1, p2, k3).
const PlumbBobDistortionType = DistortionType("plumb_bob")

// Distorter describes the lens distortion advertised alongside the intrinsics.
type Distorter interface {
	ModelType() DistortionType
	Parameters() []float64
}

// PlumbBob holds the radial (k1, k2, k3) and tangential (p1, p2) coefficients of the plumb_bob
// model. Simulated sensors are ideal pinholes, so every coefficient is zero.
type PlumbBob struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
}

// NoDistortion returns the plumb_bob model of an ideal lens.
func NoDistortion() *PlumbBob {
	return &PlumbBob{}
}

// ModelType returns the name of the model.
func (pb *PlumbBob) ModelType() DistortionType {
	return PlumbBobDistortionType
}

// Parameters returns the coefficients in ROS order: k1, k2, p1, p2, k3.
func (pb *PlumbBob) Parameters() []float64 {
	if pb == nil {
		return make([]float64, 5)
	}
	return []float64{pb.RadialK1, pb.RadialK2, pb.TangentialP1, pb.TangentialP2, pb.RadialK3}
}
