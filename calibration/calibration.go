// Package calibration turns a camera config file into the ordered camera parameters and the
// vehicle transform used by every processing cycle. A Calibration is built once at startup
// and is never mutated afterwards, so it can be shared between goroutines without locking.
package calibration

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/rimage/transform"
	"go.viam.com/bevdet/spatialmath"
)

// DefaultPlanarTolerance is the largest tilt, in radians, between the lidar and ego up axes
// accepted when planar lidar mounting is required.
const DefaultPlanarTolerance = 0.01

// CameraParameters describe one camera: its intrinsics, its pose in the ego frame and the
// image size it delivers.
type CameraParameters struct {
	Name        string
	Intrinsics  transform.PinholeCameraIntrinsics
	SensorToEgo spatialmath.Pose
	Width       int
	Height      int
}

// VehicleCalibration holds the lidar mounting pose. LidarToEgo maps lidar coordinates into
// the ego frame; ego-frame detections are brought into the lidar frame with its inverse,
// p' = R⁻¹(p − t).
type VehicleCalibration struct {
	LidarToEgo spatialmath.Pose
}

// EgoToLidar returns the transform from ego coordinates into lidar coordinates.
func (v VehicleCalibration) EgoToLidar() spatialmath.Pose {
	return spatialmath.PoseInverse(v.LidarToEgo)
}

// Calibration is the immutable result of loading a camera config.
type Calibration struct {
	cameras    []CameraParameters
	vehicle    VehicleCalibration
	egoToWorld spatialmath.Pose
	timestamp  int64
	sceneToken string
}

// Options tune how strictly a camera config is checked.
type Options struct {
	// RequirePlanarLidar rejects lidar mounts that roll or pitch relative to the ego frame.
	RequirePlanarLidar bool
	PlanarTolerance    float64
}

// Load reads the camera config at path and builds a Calibration for the cameras in order.
// An empty order uses every camera in the file sorted by name.
func Load(path string, order []string, width, height int, opts Options, logger logging.Logger) (*Calibration, error) {
	raw, err := ReadRawFile(path)
	if err != nil {
		return nil, err
	}
	calib, err := New(raw, order, width, height, opts)
	if err != nil {
		return nil, err
	}
	logger.Infow("loaded camera calibration",
		"path", path,
		"cameras", calib.Names(),
		"digest", fmt.Sprintf("%016x", calib.Digest()))
	return calib, nil
}

// New validates raw and builds a Calibration. Every camera in order must be present in raw;
// cameras in raw but not in order are ignored.
func New(raw *RawFile, order []string, width, height int, opts Options) (*Calibration, error) {
	if raw == nil {
		return nil, &ConfigError{Reason: errors.New("no camera config")}
	}
	if width <= 0 || height <= 0 {
		return nil, &ConfigError{Reason: errors.Errorf("invalid image size %dx%d", width, height)}
	}
	if len(order) == 0 {
		order = lo.Keys(raw.Cams)
		sort.Strings(order)
	}
	if len(order) == 0 {
		return nil, newVehicleError("cams", errors.New("no cameras configured"))
	}
	if dups := lo.FindDuplicates(order); len(dups) > 0 {
		return nil, newVehicleError("cams", errors.Errorf("cameras listed more than once: %v", dups))
	}
	missing := lo.Filter(order, func(name string, _ int) bool {
		_, ok := raw.Cams[name]
		return !ok
	})
	if len(missing) > 0 {
		return nil, newCameraError(missing[0], "", errors.Errorf("camera missing from config (all missing: %v)", missing))
	}

	calib := &Calibration{
		cameras:    make([]CameraParameters, 0, len(order)),
		timestamp:  raw.Timestamp,
		sceneToken: raw.SceneToken,
	}
	for _, name := range order {
		cam, err := newCameraParameters(name, raw.Cams[name], width, height)
		if err != nil {
			return nil, err
		}
		calib.cameras = append(calib.cameras, cam)
	}

	lidarToEgo, err := parsePose(raw.Lidar2EgoRotation, raw.Lidar2EgoTranslation)
	if err != nil {
		var field string
		if errors.Is(err, errBadTranslation) {
			field = "lidar2ego_translation"
		} else {
			field = "lidar2ego_rotation"
		}
		return nil, newVehicleError(field, err)
	}
	if opts.RequirePlanarLidar {
		tol := opts.PlanarTolerance
		if tol <= 0 {
			tol = DefaultPlanarTolerance
		}
		if tilt := Tilt(lidarToEgo.Orientation().RotationMatrix()); tilt > tol {
			return nil, newVehicleError("lidar2ego_rotation",
				errors.Errorf("lidar is tilted %.4f rad from the ego ground plane, more than %.4f allowed", tilt, tol))
		}
	}
	calib.vehicle = VehicleCalibration{LidarToEgo: lidarToEgo}

	if len(raw.Ego2GlobalRotation) > 0 || len(raw.Ego2GlobalTranslation) > 0 {
		egoToWorld, err := parsePose(raw.Ego2GlobalRotation, raw.Ego2GlobalTranslation)
		if err != nil {
			return nil, newVehicleError("ego2global", err)
		}
		calib.egoToWorld = egoToWorld
	}
	return calib, nil
}

func newCameraParameters(name string, raw RawCamera, width, height int) (CameraParameters, error) {
	intrinsics, err := transform.NewPinholeCameraIntrinsicsFromMatrix(raw.Intrinsic, width, height)
	if err != nil {
		return CameraParameters{}, newCameraError(name, "cam_intrinsic", err)
	}
	if _, err := intrinsics.InverseCameraMatrix(); err != nil {
		return CameraParameters{}, newCameraError(name, "cam_intrinsic", err)
	}
	sensorToEgo, err := parsePose(raw.Sensor2EgoRotation, raw.Sensor2EgoTranslation)
	if err != nil {
		field := "sensor2ego_rotation"
		if errors.Is(err, errBadTranslation) {
			field = "sensor2ego_translation"
		}
		return CameraParameters{}, newCameraError(name, field, err)
	}
	return CameraParameters{
		Name:        name,
		Intrinsics:  *intrinsics,
		SensorToEgo: sensorToEgo,
		Width:       width,
		Height:      height,
	}, nil
}

var errBadTranslation = errors.New("translation must be 3 finite values")

func parsePose(rotation, translation []float64) (spatialmath.Pose, error) {
	if len(translation) != 3 || !isFinite(translation...) {
		return nil, errors.Wrapf(errBadTranslation, "got %v", translation)
	}
	point := r3.Vector{X: translation[0], Y: translation[1], Z: translation[2]}
	switch len(rotation) {
	case 4:
		q, err := spatialmath.NewQuaternion(rotation[0], rotation[1], rotation[2], rotation[3])
		if err != nil {
			return nil, err
		}
		if err := q.RotationMatrix().CheckValid(spatialmath.DefaultOrthonormalTolerance); err != nil {
			return nil, err
		}
		return spatialmath.NewPose(point, q), nil
	case 9:
		rm, err := spatialmath.NewRotationMatrix(rotation)
		if err != nil {
			return nil, err
		}
		return spatialmath.NewPose(point, rm), nil
	default:
		return nil, errors.Errorf("rotation must be a quaternion (w, x, y, z) or a row-major 3x3 matrix, got %d values",
			len(rotation))
	}
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Tilt returns the angle between the rotated up axis and the original up axis.
func Tilt(rm *spatialmath.RotationMatrix) float64 {
	return math.Acos(math.Max(-1, math.Min(1, rm.At(2, 2))))
}

// Cameras returns the camera parameters in ingestion order.
func (c *Calibration) Cameras() []CameraParameters {
	return slices.Clone(c.cameras)
}

// Camera returns the parameters of the named camera.
func (c *Calibration) Camera(name string) (CameraParameters, bool) {
	return lo.Find(c.cameras, func(cam CameraParameters) bool { return cam.Name == name })
}

// Names returns the camera names in ingestion order.
func (c *Calibration) Names() []string {
	return lo.Map(c.cameras, func(cam CameraParameters, _ int) string { return cam.Name })
}

// NumCameras is the number of images each cycle must provide.
func (c *Calibration) NumCameras() int {
	return len(c.cameras)
}

// ImageSize returns the width and height every camera image must have.
func (c *Calibration) ImageSize() (int, int) {
	return c.cameras[0].Width, c.cameras[0].Height
}

// Vehicle returns the lidar mounting calibration.
func (c *Calibration) Vehicle() VehicleCalibration {
	return c.vehicle
}

// EgoToWorld returns the ego pose recorded with the config, if there was one.
func (c *Calibration) EgoToWorld() (spatialmath.Pose, bool) {
	return c.egoToWorld, c.egoToWorld != nil
}

// Timestamp is the capture time recorded in the config, in microseconds.
func (c *Calibration) Timestamp() int64 {
	return c.timestamp
}

// SceneToken is the dataset scene identifier recorded in the config.
func (c *Calibration) SceneToken() string {
	return c.sceneToken
}

// Digest hashes the canonical form of the calibration. Two calibrations built from the same
// input have the same digest.
func (c *Calibration) Digest() uint64 {
	h := xxhash.New()
	var buf [8]byte
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		//nolint:errcheck
		h.Write(buf[:])
	}
	writePose := func(p spatialmath.Pose) {
		pt := p.Point()
		q := p.Orientation().Quaternion()
		for _, v := range []float64{pt.X, pt.Y, pt.Z, q.Real, q.Imag, q.Jmag, q.Kmag} {
			writeFloat(v)
		}
	}
	for _, cam := range c.cameras {
		//nolint:errcheck
		h.WriteString(cam.Name)
		for _, v := range cam.Intrinsics.Matrix() {
			writeFloat(v)
		}
		writeFloat(float64(cam.Width))
		writeFloat(float64(cam.Height))
		writePose(cam.SensorToEgo)
	}
	writePose(c.vehicle.LidarToEgo)
	return h.Sum64()
}
