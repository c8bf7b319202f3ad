package calibration

import (
	"fmt"

	"github.com/pkg/errors"
)

// A ConfigError is returned when the calibration input is missing a camera or holds a
// malformed record. It is fatal at startup.
type ConfigError struct {
	// Camera is empty for vehicle-level records.
	Camera string
	Field  string
	Reason error
}

func (e *ConfigError) Error() string {
	if e.Camera == "" && e.Field == "" {
		return fmt.Sprintf("calibration: %s", e.Reason)
	}
	if e.Camera == "" {
		return fmt.Sprintf("calibration: field %q: %s", e.Field, e.Reason)
	}
	if e.Field == "" {
		return fmt.Sprintf("calibration: camera %q: %s", e.Camera, e.Reason)
	}
	return fmt.Sprintf("calibration: camera %q field %q: %s", e.Camera, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Reason
}

// IsConfigError returns if the given error is any kind of calibration config error.
func IsConfigError(err error) bool {
	var errArt *ConfigError
	return errors.As(err, &errArt)
}

func newCameraError(camera, field string, reason error) error {
	return &ConfigError{Camera: camera, Field: field, Reason: reason}
}

func newVehicleError(field string, reason error) error {
	return &ConfigError{Field: field, Reason: reason}
}
