package sensors

import (
	"context"
	"image"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	// register ppm
	_ "github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/pointcloud"
)

// FileSourceConfig names one image file per camera and an optional point cloud file.
type FileSourceConfig struct {
	Images     map[string]string `json:"images"`
	PointCloud string            `json:"pointcloud,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *FileSourceConfig) Validate(cameras []string) error {
	if len(c.Images) == 0 {
		return errors.New("no sample images configured")
	}
	missing := lo.Filter(cameras, func(name string, _ int) bool {
		_, ok := c.Images[name]
		return !ok
	})
	if len(missing) > 0 {
		return errors.Errorf("no sample image for cameras %v", missing)
	}
	return nil
}

// FileSource re-reads its files on every capture, so edits to the files show up on the
// next cycle.
type FileSource struct {
	cameras   []string
	paths     []string
	cloudPath string
	clock     clock.Clock
	logger    logging.Logger
	open      atomic.Int32
}

// NewFileSource returns a source reading cfg's files in the given camera order.
func NewFileSource(cfg FileSourceConfig, cameras []string, clk clock.Clock, logger logging.Logger) (*FileSource, error) {
	if err := cfg.Validate(cameras); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &FileSource{
		cameras:   cameras,
		paths:     lo.Map(cameras, func(name string, _ int) string { return cfg.Images[name] }),
		cloudPath: cfg.PointCloud,
		clock:     clk,
		logger:    logger,
	}, nil
}

// Capture decodes every image file and the point cloud file.
func (fs *FileSource) Capture(ctx context.Context) (*Capture, error) {
	images := make([]image.Image, len(fs.paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range fs.paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := imaging.Open(path)
			if err != nil {
				return errors.Wrapf(err, "reading image for camera %s", fs.cameras[i])
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cloud := pointcloud.New()
	if fs.cloudPath != "" {
		var err error
		if cloud, err = pointcloud.NewFromFile(fs.cloudPath, fs.logger); err != nil {
			return nil, errors.Wrap(err, "reading point cloud")
		}
	}

	fs.open.Add(1)
	return NewCapture(images, cloud, fs.clock.Now(), func() { fs.open.Add(-1) }), nil
}

// Outstanding returns the number of captures not yet released.
func (fs *FileSource) Outstanding() int {
	return int(fs.open.Load())
}

// Close does nothing.
func (fs *FileSource) Close(ctx context.Context) error {
	return nil
}

// StaticSource returns the same images and cloud on every capture. Used primarily for testing.
type StaticSource struct {
	Images []image.Image
	Cloud  *pointcloud.PointCloud
	Clock  clock.Clock
}

// Capture returns the stored images and cloud.
func (ss *StaticSource) Capture(ctx context.Context) (*Capture, error) {
	if len(ss.Images) == 0 {
		return nil, errors.New("no images stored")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cloud := ss.Cloud
	if cloud == nil {
		cloud = pointcloud.New()
	}
	clk := ss.Clock
	if clk == nil {
		clk = clock.New()
	}
	return NewCapture(append([]image.Image(nil), ss.Images...), cloud, clk.Now(), nil), nil
}

// Close does nothing.
func (ss *StaticSource) Close(ctx context.Context) error {
	return nil
}
