package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

// ToPCD writes the organized cloud to out in the PCD v0.7 format. The header keeps the image
// layout (WIDTH x HEIGHT) and the cloud is flagged as not dense since points without a range
// return are kept.
func (cloud *Organized) ToPCD(out io.Writer, outputType PCDType) error {
	var dataLine string
	switch outputType {
	case PCDAscii:
		dataLine = "ascii"
	case PCDBinary:
		dataLine = "binary"
	case PCDCompressed:
		return errors.New("compressed PCD not yet implemented")
	default:
		return errors.Errorf("unknown PCD type %d", outputType)
	}

	w := bufio.NewWriter(out)
	_, err := fmt.Fprintf(w, "VERSION .7\n"+
		"FIELDS x y z\n"+
		"SIZE 4 4 4\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		cloud.width,
		cloud.height,
		cloud.Size(),
		dataLine)
	if err != nil {
		return err
	}

	if err := cloud.writePCDData(w, outputType); err != nil {
		return err
	}
	return w.Flush()
}

func (cloud *Organized) writePCDData(out io.Writer, pcdtype PCDType) error {
	buf := make([]byte, PointStep)
	for idx := 0; idx < cloud.Size(); idx++ {
		base := idx * FloatsPerPoint
		x, y, z := cloud.points[base], cloud.points[base+1], cloud.points[base+2]
		var err error
		switch pcdtype {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(y))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(z))
			_, err = out.Write(buf)
		case PCDAscii:
			_, err = fmt.Fprintf(out, "%f %f %f\n", x, y, z)
		case PCDCompressed:
			err = errors.New("compressed PCD not yet implemented")
		}
		if err != nil {
			return err
		}
	}
	return nil
}
