// Package sensors provides the per-cycle inputs of the pipeline: one image per camera and
// one lidar sweep.
package sensors

import (
	"context"
	"image"
	"sync"
	"time"

	"go.viam.com/bevdet/pointcloud"
)

// Capture is one cycle's worth of sensor data. Images are in camera order. The capture
// owns its images and cloud until Release is called.
type Capture struct {
	Images []image.Image
	Cloud  *pointcloud.PointCloud
	Stamp  time.Time

	releaseOnce sync.Once
	release     func()
}

// NewCapture returns a capture that calls release, if set, exactly once on Release.
func NewCapture(images []image.Image, cloud *pointcloud.PointCloud, stamp time.Time, release func()) *Capture {
	return &Capture{Images: images, Cloud: cloud, Stamp: stamp, release: release}
}

// Release hands the capture's data back to its source. The capture must not be used after.
func (c *Capture) Release() {
	c.releaseOnce.Do(func() {
		if c.release != nil {
			c.release()
		}
		c.Images = nil
		c.Cloud = nil
	})
}

// A Source produces captures on demand.
type Source interface {
	// Capture acquires the images and point cloud for one cycle.
	Capture(ctx context.Context) (*Capture, error)
	Close(ctx context.Context) error
}
