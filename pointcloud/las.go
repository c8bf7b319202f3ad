package pointcloud

import (
	"fmt"
	"math"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/bevdet/logging"
)

// LAS stores coordinates as scaled int32, so values beyond this range lose precision.
const (
	maxPreciseFloat64 = float64(1 << 31 / 1000)
	minPreciseFloat64 = -maxPreciseFloat64
)

// NewFromLASFile returns a point cloud from reading a LAS file. If any lossiness of points
// could occur from reading it in, it's reported but is not an error.
func NewFromLASFile(fn string, logger logging.Logger) (*PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	pc := NewWithPrealloc(lf.Header.NumberPoints, true)
	warned := false
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()

		x, y, z := data.X, data.Y, data.Z
		if !warned && (x < minPreciseFloat64 || x > maxPreciseFloat64 ||
			y < minPreciseFloat64 || y > maxPreciseFloat64 ||
			z < minPreciseFloat64 || z > maxPreciseFloat64) {
			logger.Warnw("potential floating point lossiness for LAS point",
				"index", i, "range", fmt.Sprintf("[%f,%f]", minPreciseFloat64, maxPreciseFloat64))
			warned = true
		}
		if err := pc.Append(r3.Vector{X: x, Y: y, Z: z}, float32(data.Intensity)); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// WriteToLASFile writes the point cloud out to a LAS file.
func WriteToLASFile(cloud *PointCloud, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, lf.Close())
	}()

	if err := lf.AddHeader(lidario.LasHeader{PointFormatID: 0}); err != nil {
		return err
	}
	cloud.Iterate(func(_ int, pos r3.Vector, intensity float32) bool {
		pr0 := &lidario.PointRecord0{
			X: pos.X,
			Y: pos.Y,
			Z: pos.Z,
			// return number 1 of 1
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3),
			},
			Intensity:     uint16(math.Max(0, math.Min(math.MaxUint16, float64(intensity)))),
			PointSourceID: 1,
		}
		if lerr := lf.AddLasPoint(pr0); lerr != nil {
			err = lerr
			return false
		}
		return true
	})
	return err
}
