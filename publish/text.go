package publish

import (
	"context"
	"os"

	"go.viam.com/bevdet/pointcloud"
	"go.viam.com/bevdet/vision/boxes"
)

// TextPublisher overwrites a file with one line per box every cycle.
type TextPublisher struct {
	path         string
	withVelocity bool
}

// NewTextPublisher returns a publisher writing path.
func NewTextPublisher(path string, withVelocity bool) *TextPublisher {
	return &TextPublisher{path: path, withVelocity: withVelocity}
}

// Publish writes the boxes of res.
func (tp *TextPublisher) Publish(ctx context.Context, res *Result) error {
	return writeFileAtomic(tp.path, func(f *os.File) error {
		return boxes.WriteText(f, res.Boxes, tp.withVelocity)
	})
}

// Close does nothing.
func (tp *TextPublisher) Close(ctx context.Context) error {
	return nil
}

// CloudPublisher overwrites a PCD or LAS file with the cycle's point cloud.
type CloudPublisher struct {
	path string
}

// NewCloudPublisher returns a publisher writing path.
func NewCloudPublisher(path string) *CloudPublisher {
	return &CloudPublisher{path: path}
}

// Publish writes the cloud of res. A result without a cloud writes an empty one.
func (cp *CloudPublisher) Publish(ctx context.Context, res *Result) error {
	cloud := res.Cloud
	if cloud == nil {
		cloud = pointcloud.New()
	}
	return pointcloud.WriteToFile(cloud, cp.path)
}

// Close does nothing.
func (cp *CloudPublisher) Close(ctx context.Context) error {
	return nil
}
