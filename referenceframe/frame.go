// Package referenceframe moves detections between the coordinate frames of the vehicle.
package referenceframe

import (
	"github.com/pkg/errors"

	spatial "go.viam.com/bevdet/spatialmath"
)

// Names of the frames detections move between.
const (
	EgoFrame   = "ego"
	LidarFrame = "lidar"
)

// Frame is a named rigid frame whose pose is expressed in its parent.
type Frame interface {
	Name() string
	Parent() string
	// Pose maps coordinates in this frame into the parent frame.
	Pose() spatial.Pose
}

type staticFrame struct {
	name   string
	parent string
	pose   spatial.Pose
}

// NewStaticFrame creates a frame with a fixed pose relative to parent.
func NewStaticFrame(name, parent string, pose spatial.Pose) (Frame, error) {
	if pose == nil {
		return nil, errors.Errorf("frame %q needs a pose", name)
	}
	if name == "" || name == parent {
		return nil, errors.Errorf("frame name %q must be non-empty and differ from its parent", name)
	}
	return &staticFrame{name: name, parent: parent, pose: pose}, nil
}

func (sf *staticFrame) Name() string {
	return sf.name
}

func (sf *staticFrame) Parent() string {
	return sf.parent
}

func (sf *staticFrame) Pose() spatial.Pose {
	return sf.pose
}
