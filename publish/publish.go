// Package publish delivers each cycle's sensor-frame detections and point cloud to their
// consumers: files on disk, a top-down render and the log.
package publish

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/pointcloud"
	"go.viam.com/bevdet/vision/boxes"
)

// DefaultFrameID is the frame the republished cloud and boxes are stamped with.
const DefaultFrameID = "map"

// Result is what one cycle publishes. Boxes are in the lidar frame.
type Result struct {
	Cycle   string
	Seq     uint64
	Stamp   time.Time
	FrameID string
	Boxes   []boxes.OrientedBox
	Cloud   *pointcloud.PointCloud
}

// A Publisher delivers results. Publish is only ever called by one goroutine at a time.
type Publisher interface {
	Publish(ctx context.Context, res *Result) error
	Close(ctx context.Context) error
}

// Config selects the publishers to build. Empty paths disable the file outputs.
type Config struct {
	FrameID      string  `json:"frame_id,omitempty"`
	TextFile     string  `json:"text_file,omitempty"`
	TextVelocity bool    `json:"text_velocity,omitempty"`
	CloudFile    string  `json:"cloud_file,omitempty"`
	RenderFile   string  `json:"render_file,omitempty"`
	RenderSize   int     `json:"render_size_px,omitempty"`
	RenderRange  float64 `json:"render_range_m,omitempty"`
	Log          bool    `json:"log,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.CloudFile != "" {
		switch filepath.Ext(c.CloudFile) {
		case ".pcd", ".las":
		default:
			return errors.Errorf("%s: cloud_file must end in .pcd or .las, got %q", path, c.CloudFile)
		}
	}
	if c.RenderFile != "" && filepath.Ext(c.RenderFile) != ".png" {
		return errors.Errorf("%s: render_file must end in .png, got %q", path, c.RenderFile)
	}
	if c.RenderSize < 0 {
		return errors.Errorf("%s: render_size_px must be positive, got %d", path, c.RenderSize)
	}
	if c.RenderRange < 0 {
		return errors.Errorf("%s: render_range_m must be positive, got %v", path, c.RenderRange)
	}
	return nil
}

// New builds the publishers cfg enables behind one fan-out publisher.
func New(cfg Config, logger logging.Logger) (Publisher, error) {
	if err := cfg.Validate("publish"); err != nil {
		return nil, err
	}
	var pubs []Publisher
	if cfg.TextFile != "" {
		pubs = append(pubs, NewTextPublisher(cfg.TextFile, cfg.TextVelocity))
	}
	if cfg.CloudFile != "" {
		pubs = append(pubs, NewCloudPublisher(cfg.CloudFile))
	}
	if cfg.RenderFile != "" {
		pubs = append(pubs, NewRenderPublisher(cfg.RenderFile, RenderOptions{Size: cfg.RenderSize, Range: cfg.RenderRange}))
	}
	if cfg.Log || len(pubs) == 0 {
		pubs = append(pubs, NewLogPublisher(logger))
	}
	return NewMulti(cfg.FrameID, pubs...), nil
}

// Multi publishes to every publisher in order, and stamps results with a frame id.
type Multi struct {
	frameID    string
	publishers []Publisher
}

// NewMulti returns a fan-out publisher. An empty frameID means DefaultFrameID.
func NewMulti(frameID string, publishers ...Publisher) *Multi {
	if frameID == "" {
		frameID = DefaultFrameID
	}
	return &Multi{frameID: frameID, publishers: publishers}
}

// Publish hands res to every publisher even if some fail, and returns all their errors.
// A missing frame id is filled in on a copy; res itself is not modified.
func (m *Multi) Publish(ctx context.Context, res *Result) error {
	if res.FrameID == "" {
		stamped := *res
		stamped.FrameID = m.frameID
		res = &stamped
	}
	var err error
	for _, p := range m.publishers {
		err = multierr.Combine(err, p.Publish(ctx, res))
	}
	return err
}

// Close closes every publisher.
func (m *Multi) Close(ctx context.Context) error {
	var err error
	for _, p := range m.publishers {
		err = multierr.Combine(err, p.Close(ctx))
	}
	return err
}

// writeFileAtomic writes fn through a temporary file in the same directory, so readers see
// either the previous or the new contents.
func writeFileAtomic(fn string, write func(f *os.File) error) error {
	f, err := os.CreateTemp(filepath.Dir(fn), "."+filepath.Base(fn)+".*")
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		return multierr.Combine(err, f.Close(), os.Remove(f.Name()))
	}
	if err := f.Close(); err != nil {
		return multierr.Combine(err, os.Remove(f.Name()))
	}
	return os.Rename(f.Name(), fn)
}
