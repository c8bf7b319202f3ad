package referenceframe

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/bevdet/calibration"
	"go.viam.com/bevdet/logging"
	spatial "go.viam.com/bevdet/spatialmath"
	"go.viam.com/bevdet/vision/boxes"
)

// YawMode selects how the heading of a frame is extracted from its rotation.
type YawMode string

const (
	// YawEulerXYZ uses the third angle of the R = Rx·Ry·Rz decomposition with the first
	// angle folded into [0, pi]. This matches detectors trained on calibration exports that
	// use that decomposition. For a rotation that also rolls the result can be off by pi.
	YawEulerXYZ YawMode = "euler_xyz"
	// YawHeading uses the direction of the rotated x axis on the ground plane.
	YawHeading YawMode = "heading"
)

// InvalidBoxPolicy decides what happens to a box with non-finite values.
type InvalidBoxPolicy string

const (
	// DropInvalidBoxes removes the box and keeps the rest.
	DropInvalidBoxes InvalidBoxPolicy = "drop"
	// AbortOnInvalidBox fails the whole transform.
	AbortOnInvalidBox InvalidBoxPolicy = "abort"
)

// TransformerConfig configures a BoxTransformer.
type TransformerConfig struct {
	YawMode        YawMode
	RotateVelocity bool
	InvalidBoxes   InvalidBoxPolicy
	// Planar marks a frame already checked to lie flat on its parent's ground plane. Its
	// yaw is then the heading in every mode, since a tiny negative roll would otherwise
	// fold the XYZ decomposition by pi.
	Planar         bool
}

// Validate fills defaults and checks the config.
func (c *TransformerConfig) Validate() error {
	switch c.YawMode {
	case "":
		c.YawMode = YawEulerXYZ
	case YawEulerXYZ, YawHeading:
	default:
		return errors.Errorf("unknown yaw mode %q, expected %q or %q", c.YawMode, YawEulerXYZ, YawHeading)
	}
	switch c.InvalidBoxes {
	case "":
		c.InvalidBoxes = DropInvalidBoxes
	case DropInvalidBoxes, AbortOnInvalidBox:
	default:
		return errors.Errorf("unknown invalid box policy %q", c.InvalidBoxes)
	}
	return nil
}

// BoxTransformer maps boxes from a parent frame into a child frame. For the lidar frame,
// whose pose in ego is (R, t), a box center c becomes R⁻¹(c − t) and its yaw loses the
// heading of R. Extents, score and label are copied. Velocity is copied unless
// RotateVelocity is set, in which case it is rotated by R⁻¹.
type BoxTransformer struct {
	frame          Frame
	inverse        *spatial.RotationMatrix
	translation    r3.Vector
	yawOffset      float64
	rotateVelocity bool
	policy         InvalidBoxPolicy
	logger         logging.Logger
}

// NewBoxTransformer builds a transformer into frame from its parent.
func NewBoxTransformer(frame Frame, cfg TransformerConfig, logger logging.Logger) (*BoxTransformer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rm := frame.Pose().Orientation().RotationMatrix()
	if err := rm.CheckValid(spatial.DefaultOrthonormalTolerance); err != nil {
		return nil, errors.Wrapf(err, "frame %q", frame.Name())
	}
	var yaw float64
	switch {
	case cfg.YawMode == YawHeading, cfg.Planar:
		yaw = spatial.Heading(rm)
	default:
		_, _, yaw = spatial.EulerXYZ(rm)
	}
	logger.Debugw("box transformer ready",
		"from", frame.Parent(),
		"to", frame.Name(),
		"yaw_mode", cfg.YawMode,
		"planar", cfg.Planar,
		"yaw_offset", yaw,
		"rotate_velocity", cfg.RotateVelocity)
	return &BoxTransformer{
		frame:          frame,
		inverse:        rm.Transpose(),
		translation:    frame.Pose().Point(),
		yawOffset:      yaw,
		rotateVelocity: cfg.RotateVelocity,
		policy:         cfg.InvalidBoxes,
		logger:         logger,
	}, nil
}

// From is the frame boxes are expected in.
func (bt *BoxTransformer) From() string {
	return bt.frame.Parent()
}

// To is the frame boxes are returned in.
func (bt *BoxTransformer) To() string {
	return bt.frame.Name()
}

// YawOffset is the angle subtracted from every box yaw.
func (bt *BoxTransformer) YawOffset() float64 {
	return bt.yawOffset
}

// TransformBox maps one box. It returns an InvalidBoxError for non-finite input.
func (bt *BoxTransformer) TransformBox(b boxes.OrientedBox) (boxes.OrientedBox, error) {
	if err := b.Validate(); err != nil {
		return boxes.OrientedBox{}, err
	}
	out := b
	out.Center = bt.inverse.MulVec(b.Center.Sub(bt.translation))
	out.Yaw = b.Yaw - bt.yawOffset
	if bt.rotateVelocity {
		v := bt.inverse.MulVec(r3.Vector{X: b.VX, Y: b.VY})
		out.VX, out.VY = v.X, v.Y
	}
	return out, nil
}

// Transform maps every box, preserving order. Under the drop policy invalid boxes are
// removed and counted in dropped; under the abort policy the first invalid box fails the
// call and no boxes are returned.
func (bt *BoxTransformer) Transform(in []boxes.OrientedBox) (out []boxes.OrientedBox, dropped int, err error) {
	out = make([]boxes.OrientedBox, 0, len(in))
	for i, b := range in {
		tb, err := bt.TransformBox(b)
		if err != nil {
			var invalid *boxes.InvalidBoxError
			if errors.As(err, &invalid) {
				invalid.Index = i
			}
			if bt.policy == AbortOnInvalidBox {
				return nil, dropped, err
			}
			bt.logger.Warnw("dropping invalid box", "index", i, "error", err)
			dropped++
			continue
		}
		out = append(out, tb)
	}
	return out, dropped, nil
}

// NewLidarTransformer builds the ego to lidar box transformer for a vehicle.
func NewLidarTransformer(vehicle calibration.VehicleCalibration, cfg TransformerConfig, logger logging.Logger) (*BoxTransformer, error) {
	frame, err := NewStaticFrame(LidarFrame, EgoFrame, vehicle.LidarToEgo)
	if err != nil {
		return nil, err
	}
	return NewBoxTransformer(frame, cfg, logger)
}
