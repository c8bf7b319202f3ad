package testutils

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/bevdet/calibration"
	"go.viam.com/bevdet/spatialmath"
)

// NuScenesCameras are the six surround cameras in the order the detector expects them.
var NuScenesCameras = []string{
	"CAM_FRONT_LEFT", "CAM_FRONT", "CAM_FRONT_RIGHT",
	"CAM_BACK_LEFT", "CAM_BACK", "CAM_BACK_RIGHT",
}

// SyntheticRawFile returns a camera config with the named cameras spaced evenly around the
// vehicle, looking outwards, and a lidar mounted at lidarToEgo.
func SyntheticRawFile(names []string, width, height int, lidarToEgo spatialmath.Pose) *calibration.RawFile {
	raw := &calibration.RawFile{Cams: map[string]calibration.RawCamera{}}
	f := float64(width) / 2
	for i, name := range names {
		yaw := 2 * math.Pi * float64(i) / float64(len(names))
		// camera optical frame (z forward, x right, y down) to ego (x forward, y left, z up)
		opticalToBody := &spatialmath.EulerAngles{Roll: -math.Pi / 2, Yaw: -math.Pi / 2}
		heading := &spatialmath.EulerAngles{Yaw: yaw}
		q := spatialmath.Compose(
			spatialmath.NewPose(r3.Vector{}, heading),
			spatialmath.NewPose(r3.Vector{}, opticalToBody),
		).Orientation().Quaternion()
		raw.Cams[name] = calibration.RawCamera{
			Intrinsic: [][]float64{
				{f, 0, float64(width) / 2},
				{0, f, float64(height) / 2},
				{0, 0, 1},
			},
			Sensor2EgoRotation:    []float64{q.Real, q.Imag, q.Jmag, q.Kmag},
			Sensor2EgoTranslation: []float64{math.Cos(yaw), math.Sin(yaw), 1.5},
		}
	}
	if lidarToEgo == nil {
		lidarToEgo = spatialmath.NewZeroPose()
	}
	q := lidarToEgo.Orientation().Quaternion()
	pt := lidarToEgo.Point()
	raw.Lidar2EgoRotation = []float64{q.Real, q.Imag, q.Jmag, q.Kmag}
	raw.Lidar2EgoTranslation = []float64{pt.X, pt.Y, pt.Z}
	return raw
}

// SyntheticCalibration builds a Calibration from SyntheticRawFile and fails the test on error.
func SyntheticCalibration(tb testing.TB, names []string, width, height int, lidarToEgo spatialmath.Pose) *calibration.Calibration {
	tb.Helper()
	calib, err := calibration.New(SyntheticRawFile(names, width, height, lidarToEgo), names, width, height, calibration.Options{})
	test.That(tb, err, test.ShouldBeNil)
	return calib
}
