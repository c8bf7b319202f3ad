package pointcloud

import (
	"io"

	"github.com/chenzhekl/goply"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ReadPLY reads the vertex element of an ascii PLY file. An "intensity" vertex property,
// when present, becomes the point intensity.
func ReadPLY(r io.Reader) (pc *PointCloud, err error) {
	// goply panics on malformed input
	defer func() {
		if p := recover(); p != nil {
			pc = nil
			err = errors.Errorf("invalid ply file: %v", p)
		}
	}()
	ply := goply.New(r)
	vertices := ply.Elements("vertex")
	withIntensity := len(vertices) > 0 && vertices[0].Property("intensity") != nil
	pc = NewWithPrealloc(len(vertices), withIntensity)
	for i, v := range vertices {
		var p r3.Vector
		for _, axis := range []struct {
			name string
			dst  *float64
		}{{"x", &p.X}, {"y", &p.Y}, {"z", &p.Z}} {
			value, err := plyFloat(v.Property(axis.name))
			if err != nil {
				return nil, errors.Wrapf(err, "vertex %d %s", i, axis.name)
			}
			*axis.dst = value
		}
		var intensity float64
		if withIntensity {
			if intensity, err = plyFloat(v.Property("intensity")); err != nil {
				return nil, errors.Wrapf(err, "vertex %d intensity", i)
			}
		}
		if err := pc.Append(p, float32(intensity)); err != nil {
			return nil, errors.Wrapf(err, "vertex %d", i)
		}
	}
	return pc, nil
}

func plyFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case int8:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, errors.Errorf("unsupported value type %T", v)
	}
}
