// Package ros defines the ROS shaped messages a range finder publishes: the raw range image, its
// camera calibration and the derived point cloud. They follow the field layout of
// sensor_msgs/Image, sensor_msgs/CameraInfo and sensor_msgs/PointCloud2 without depending on ROS.
package ros

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/simsensors/rangecloud/pointcloud"
	"github.com/simsensors/rangecloud/rimage"
	"github.com/simsensors/rangecloud/rimage/transform"
)

// Header is the metadata shared by every message.
type Header struct {
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

// Image is a raw, uncompressed image.
type Image struct {
	Header      Header `json:"header"`
	Height      uint32 `json:"height"`
	Width       uint32 `json:"width"`
	Encoding    string `json:"encoding"`
	IsBigEndian bool   `json:"is_bigendian"`
	Step        uint32 `json:"step"`
	Data        []byte `json:"data"`
}

// NewRangeImageMessage returns an image message sized for a 32FC1 range image. Data is allocated
// once and meant to be overwritten on every publication.
func NewRangeImageMessage(frameID string, width, height int) *Image {
	return &Image{
		Header:   Header{FrameID: frameID},
		Height:   uint32(height),
		Width:    uint32(width),
		Encoding: rimage.Encoding32FC1,
		Step:     uint32(rimage.RangeImageBytesPerPixel * width),
		Data:     make([]byte, rimage.RangeImageBytesPerPixel*width*height),
	}
}

// Clone returns a deep copy of the message.
func (msg *Image) Clone() *Image {
	if msg == nil {
		return nil
	}
	cp := *msg
	cp.Data = append([]byte(nil), msg.Data...)
	return &cp
}

// CameraInfo is the calibration of a monocular camera.
type CameraInfo struct {
	Header          Header      `json:"header"`
	Height          uint32      `json:"height"`
	Width           uint32      `json:"width"`
	DistortionModel string      `json:"distortion_model"`
	D               []float64   `json:"d"`
	K               [9]float64  `json:"k"`
	R               [9]float64  `json:"r"`
	P               [12]float64 `json:"p"`
}

// NewCameraInfo builds the calibration message of a camera from its intrinsics and distortion.
// The rectification is the identity and the projection is [K|0].
func NewCameraInfo(
	frameID string,
	intrinsics *transform.PinholeCameraIntrinsics,
	distortion transform.Distorter,
) *CameraInfo {
	info := &CameraInfo{
		Header:          Header{FrameID: frameID},
		Height:          uint32(intrinsics.Height),
		Width:           uint32(intrinsics.Width),
		DistortionModel: string(distortion.ModelType()),
		D:               distortion.Parameters(),
		R: [9]float64{
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		},
	}
	copy(info.K[:], rowMajor(intrinsics.GetCameraMatrix()))
	copy(info.P[:], rowMajor(intrinsics.GetProjectionMatrix()))
	return info
}

func rowMajor(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	flat := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		flat = append(flat, m.RawRowView(r)...)
	}
	return flat
}

// Clone returns a deep copy of the message.
func (msg *CameraInfo) Clone() *CameraInfo {
	if msg == nil {
		return nil
	}
	cp := *msg
	cp.D = append([]float64(nil), msg.D...)
	return &cp
}

// PointField datatypes.
const (
	PointFieldInt8    uint8 = 1
	PointFieldUint8   uint8 = 2
	PointFieldInt16   uint8 = 3
	PointFieldUint16  uint8 = 4
	PointFieldInt32   uint8 = 5
	PointFieldUint32  uint8 = 6
	PointFieldFloat32 uint8 = 7
	PointFieldFloat64 uint8 = 8
)

// PointField describes one channel of a PointCloud2 point.
type PointField struct {
	Name     string `json:"name"`
	Offset   uint32 `json:"offset"`
	Datatype uint8  `json:"datatype"`
	Count    uint32 `json:"count"`
}

// XYZFields returns the layout of a point made of three consecutive float32: x, y then z.
func XYZFields() []PointField {
	return []PointField{
		{Name: "x", Offset: 0, Datatype: PointFieldFloat32, Count: 1},
		{Name: "y", Offset: 4, Datatype: PointFieldFloat32, Count: 1},
		{Name: "z", Offset: 8, Datatype: PointFieldFloat32, Count: 1},
	}
}

// PointCloud2 is a point cloud as a raw byte buffer described by its fields.
type PointCloud2 struct {
	Header      Header       `json:"header"`
	Height      uint32       `json:"height"`
	Width       uint32       `json:"width"`
	Fields      []PointField `json:"fields"`
	IsBigEndian bool         `json:"is_bigendian"`
	PointStep   uint32       `json:"point_step"`
	RowStep     uint32       `json:"row_step"`
	Data        []byte       `json:"data"`
	IsDense     bool         `json:"is_dense"`
}

// NewPointCloud2 returns an organized xyz cloud message of width*height points. Data is
// allocated once and meant to be overwritten on every publication.
func NewPointCloud2(frameID string, width, height int) *PointCloud2 {
	return &PointCloud2{
		Header:    Header{FrameID: frameID},
		Height:    uint32(height),
		Width:     uint32(width),
		Fields:    XYZFields(),
		PointStep: pointcloud.PointStep,
		RowStep:   uint32(pointcloud.PointStep * width),
		Data:      make([]byte, pointcloud.PointStep*width*height),
	}
}

// Clone returns a deep copy of the message.
func (msg *PointCloud2) Clone() *PointCloud2 {
	if msg == nil {
		return nil
	}
	cp := *msg
	cp.Fields = append([]PointField(nil), msg.Fields...)
	cp.Data = append([]byte(nil), msg.Data...)
	return &cp
}
