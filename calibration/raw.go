package calibration

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"
)

// RawCamera is one camera record as written in the camera config file.
type RawCamera struct {
	Intrinsic             [][]float64 `yaml:"cam_intrinsic"`
	Sensor2EgoRotation    []float64   `yaml:"sensor2ego_rotation"`
	Sensor2EgoTranslation []float64   `yaml:"sensor2ego_translation"`
	DataPath              string      `yaml:"data_path,omitempty"`
}

// RawFile is the camera config file. Rotations are quaternions stored as (w, x, y, z) or
// row-major 3x3 matrices.
type RawFile struct {
	Cams                 map[string]RawCamera `yaml:"cams"`
	Lidar2EgoRotation    []float64            `yaml:"lidar2ego_rotation"`
	Lidar2EgoTranslation []float64            `yaml:"lidar2ego_translation"`

	Ego2GlobalRotation    []float64 `yaml:"ego2global_rotation,omitempty"`
	Ego2GlobalTranslation []float64 `yaml:"ego2global_translation,omitempty"`
	Timestamp             int64     `yaml:"timestamp,omitempty"`
	SceneToken            string    `yaml:"scene_token,omitempty"`
}

// ReadRawFile reads and decodes a camera config file.
func ReadRawFile(path string) (*RawFile, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening camera config")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return DecodeRaw(f)
}

// DecodeRaw decodes a camera config document. Keys this package does not use, such as the
// per-camera sample tokens of nuScenes exports, are ignored.
func DecodeRaw(r io.Reader) (*RawFile, error) {
	var raw RawFile
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, newVehicleError("cams", errors.New("camera config is empty"))
		}
		return nil, &ConfigError{Reason: errors.Wrap(err, "error parsing camera config")}
	}
	return &raw, nil
}
