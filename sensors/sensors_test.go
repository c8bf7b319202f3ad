package sensors

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/golang/geo/r3"
	"github.com/lmittmann/ppm"
	"go.viam.com/test"

	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/pointcloud"
	"go.viam.com/bevdet/testutils"
)

func writeSamples(t *testing.T, names []string) FileSourceConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := FileSourceConfig{Images: map[string]string{}}
	for i, name := range names {
		path := filepath.Join(dir, name+".png")
		test.That(t, imaging.Save(testutils.PatternImage(8, 6, byte(i)), path), test.ShouldBeNil)
		cfg.Images[name] = path
	}
	cloud := pointcloud.New()
	test.That(t, cloud.Append(r3.Vector{X: 1, Y: 2, Z: 3}, 0), test.ShouldBeNil)
	cfg.PointCloud = filepath.Join(dir, "sweep.pcd")
	test.That(t, pointcloud.WriteToFile(cloud, cfg.PointCloud), test.ShouldBeNil)
	return cfg
}

func TestFileSource(t *testing.T) {
	logger := logging.NewTestLogger(t)
	names := []string{"CAM_FRONT", "CAM_BACK", "CAM_FRONT_LEFT"}
	cfg := writeSamples(t, names)
	clk := clock.NewMock()
	clk.Set(time.Unix(1700000000, 0))

	src, err := NewFileSource(cfg, []string{"CAM_BACK", "CAM_FRONT"}, clk, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, src.Close(context.Background()), test.ShouldBeNil) }()

	capture, err := src.Capture(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, capture.Images, test.ShouldHaveLength, 2)
	test.That(t, capture.Stamp, test.ShouldEqual, clk.Now())
	test.That(t, capture.Cloud.Size(), test.ShouldEqual, 1)
	test.That(t, src.Outstanding(), test.ShouldEqual, 1)

	// CAM_BACK was written from pattern seed 1.
	want := imaging.Clone(testutils.PatternImage(8, 6, 1))
	got := imaging.Clone(capture.Images[0])
	test.That(t, got.Pix, test.ShouldResemble, want.Pix)
	test.That(t, capture.Images[1].Bounds(), test.ShouldResemble, image.Rect(0, 0, 8, 6))

	capture.Release()
	capture.Release()
	test.That(t, src.Outstanding(), test.ShouldEqual, 0)
	test.That(t, capture.Images, test.ShouldBeNil)
}

func TestFileSourceErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg := writeSamples(t, []string{"CAM_FRONT"})

	_, err := NewFileSource(cfg, []string{"CAM_FRONT", "CAM_BACK"}, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "CAM_BACK")

	_, err = NewFileSource(FileSourceConfig{}, nil, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)

	cfg.Images["CAM_FRONT"] = filepath.Join(t.TempDir(), "missing.png")
	src, err := NewFileSource(cfg, []string{"CAM_FRONT"}, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = src.Capture(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "CAM_FRONT")
	test.That(t, src.Outstanding(), test.ShouldEqual, 0)
}

func TestStaticSource(t *testing.T) {
	_, err := (&StaticSource{}).Capture(context.Background())
	test.That(t, err, test.ShouldNotBeNil)

	src := &StaticSource{Images: testutils.Frame(2, 4, 4, 0)}
	capture, err := src.Capture(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, capture.Images, test.ShouldHaveLength, 2)
	test.That(t, capture.Cloud.Size(), test.ShouldEqual, 0)
	capture.Release()
	test.That(t, src.Images, test.ShouldHaveLength, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Capture(ctx)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestFileSourcePPM(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "front.ppm")
	f, err := os.Create(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ppm.Encode(f, testutils.PatternImage(8, 6, 4)), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)

	cfg := FileSourceConfig{Images: map[string]string{"CAM_FRONT": fn}}
	src, err := NewFileSource(cfg, []string{"CAM_FRONT"}, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	capture, err := src.Capture(context.Background())
	test.That(t, err, test.ShouldBeNil)
	defer capture.Release()

	want := imaging.Clone(testutils.PatternImage(8, 6, 4))
	test.That(t, imaging.Clone(capture.Images[0]).Pix, test.ShouldResemble, want.Pix)
	test.That(t, capture.Cloud.Size(), test.ShouldEqual, 0)
}
