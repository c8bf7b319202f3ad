package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/pipeline"
	"go.viam.com/bevdet/referenceframe"
	"go.viam.com/bevdet/sensors"
)

const sampleConfig = `{
	"image_width": ${TEST_IMAGE_WIDTH},
	"image_height": 8,
	"channel_order": "rgb",
	"calibration_file": "camconfig.yaml",
	"lidar_yaw_mode": "heading",
	"inference": {"type": "fake", "timeout": "250ms", "attributes": {"boxes": [{"x": 1}]}},
	"failure_policy": {"inference": "fatal"},
	"publish": {"text_file": "out/boxes.txt", "render_file": "/abs/bev.png"},
	"sample": {
		"images": {"CAM_FRONT": "img/front.png", "CAM_BACK": "img/back.png"},
		"pointcloud": "cloud.pcd"
	},
	"log": {"level": "debug", "file": {"path": "node.log"}}
}`

func validConfig() *Config {
	return &Config{
		ImageWidth:      16,
		ImageHeight:     8,
		CalibrationFile: "camconfig.yaml",
		Inference:       InferenceConfig{Type: "fake"},
		Sample: &sensors.FileSourceConfig{
			Images: map[string]string{"a": "a.png", "b": "b.png"},
		},
	}
}

func TestRead(t *testing.T) {
	t.Setenv("TEST_IMAGE_WIDTH", "16")
	dir := t.TempDir()
	fn := filepath.Join(dir, "bevdet.json")
	test.That(t, os.WriteFile(fn, []byte(sampleConfig), 0o600), test.ShouldBeNil)

	cfg, err := Read(context.Background(), fn, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, fn)
	test.That(t, cfg.ImageWidth, test.ShouldEqual, 16)
	test.That(t, cfg.Cameras, test.ShouldResemble, []string{"CAM_BACK", "CAM_FRONT"})
	test.That(t, cfg.CalibrationFile, test.ShouldEqual, filepath.Join(dir, "camconfig.yaml"))
	test.That(t, cfg.Sample.Images["CAM_FRONT"], test.ShouldEqual, filepath.Join(dir, "img/front.png"))
	test.That(t, cfg.Sample.PointCloud, test.ShouldEqual, filepath.Join(dir, "cloud.pcd"))
	test.That(t, cfg.Publish.TextFile, test.ShouldEqual, filepath.Join(dir, "out/boxes.txt"))
	test.That(t, cfg.Publish.RenderFile, test.ShouldEqual, "/abs/bev.png")
	test.That(t, cfg.Log.File.Path, test.ShouldEqual, filepath.Join(dir, "node.log"))

	test.That(t, cfg.Inference.TimeoutDuration(), test.ShouldEqual, 250*time.Millisecond)
	test.That(t, cfg.Inference.Attributes["boxes"], test.ShouldHaveLength, 1)
	test.That(t, cfg.Trigger.IntervalDuration(), test.ShouldEqual, DefaultTriggerInterval)

	level, err := cfg.Log.ParsedLevel()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, logging.DEBUG)

	pcfg := cfg.PipelineConfig()
	test.That(t, pcfg.Engine, test.ShouldEqual, "fake")
	test.That(t, pcfg.InferenceTimeout, test.ShouldEqual, 250*time.Millisecond)
	test.That(t, pcfg.Policy.ActionFor(pipeline.ClassInference), test.ShouldEqual, pipeline.Fatal)
	test.That(t, pcfg.Policy.ActionFor(pipeline.ClassLoad), test.ShouldEqual, pipeline.Skip)

	tcfg := cfg.TransformerConfig()
	test.That(t, tcfg.YawMode, test.ShouldEqual, referenceframe.YawHeading)
	test.That(t, tcfg.InvalidBoxes, test.ShouldEqual, referenceframe.DropInvalidBoxes)
	test.That(t, tcfg.Planar, test.ShouldBeFalse)

	cfg.RequirePlanarLidar = true
	test.That(t, cfg.TransformerConfig().Planar, test.ShouldBeTrue)
}

func TestReadErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)

	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = FromReader(context.Background(), "", strings.NewReader("{"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode Config from json")

	_, err = FromReader(context.Background(), "", strings.NewReader(`{"image_width": 4}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "image_height")
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	test.That(t, cfg.Validate("config"), test.ShouldBeNil)
	test.That(t, cfg.Cameras, test.ShouldResemble, []string{"a", "b"})
	test.That(t, cfg.Inference.TimeoutDuration(), test.ShouldEqual, time.Duration(0))
	test.That(t, cfg.TransformerConfig().YawMode, test.ShouldEqual, referenceframe.YawEulerXYZ)

	for _, tc := range []struct {
		name   string
		modify func(c *Config)
		errStr string
	}{
		{"width", func(c *Config) { c.ImageWidth = 0 }, "image_width"},
		{"height", func(c *Config) { c.ImageHeight = -1 }, "image_height"},
		{"calibration", func(c *Config) { c.CalibrationFile = "" }, "calibration_file"},
		{"no sample", func(c *Config) { c.Sample = nil }, "sample"},
		{"duplicate camera", func(c *Config) { c.Cameras = []string{"a", "b", "a"} }, "duplicate cameras"},
		{"missing sample image", func(c *Config) { c.Cameras = []string{"a", "c"} }, "no sample image for cameras [c]"},
		{"channel order", func(c *Config) { c.ChannelOrder = "bgra" }, "unknown channel order"},
		{"tolerance", func(c *Config) { c.PlanarTolerance = -0.1 }, "planar_tolerance"},
		{"queue size", func(c *Config) { c.QueueSize = -1 }, "queue_size"},
		{"engine type", func(c *Config) { c.Inference.Type = "" }, "type"},
		{"timeout", func(c *Config) { c.Inference.Timeout = "soon" }, "parsing timeout"},
		{"negative timeout", func(c *Config) { c.Inference.Timeout = "-1s" }, "cannot be negative"},
		{"policy", func(c *Config) { c.FailurePolicy.Inference = pipeline.Drop }, "only invalid_box failures can be dropped"},
		{"yaw mode", func(c *Config) { c.LidarYawMode = "zyx" }, "unknown yaw mode"},
		{"publish", func(c *Config) { c.Publish.RenderFile = "bev.jpg" }, "render_file"},
		{"bag topic", func(c *Config) { c.Trigger.Bag = "run.bag" }, "topic"},
		{"bag and interval", func(c *Config) {
			c.Trigger = TriggerConfig{Bag: "run.bag", Topic: "/cam", Interval: "1s"}
		}, "mutually exclusive"},
		{"interval", func(c *Config) { c.Trigger.Interval = "0s" }, "interval must be positive"},
		{"rate", func(c *Config) { c.Trigger.Rate = -2 }, "rate cannot be negative"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
		{"log file", func(c *Config) { c.Log.File = &logging.FileAppenderConfig{} }, "path"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(cfg)
			err := cfg.Validate("config")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
		})
	}
}

func TestTriggerFromBag(t *testing.T) {
	cfg := validConfig()
	cfg.Trigger = TriggerConfig{Bag: "run.bag", Topic: "/CAM_FRONT/image", Rate: 2}
	test.That(t, cfg.Validate("config"), test.ShouldBeNil)
	test.That(t, cfg.Trigger.IntervalDuration(), test.ShouldEqual, time.Duration(0))

	cfg.ResolvePaths("/data")
	test.That(t, cfg.Trigger.Bag, test.ShouldEqual, "/data/run.bag")
}

func TestInvalidBoxPolicyFollowsFailurePolicy(t *testing.T) {
	cfg := validConfig()
	cfg.FailurePolicy.InvalidBox = pipeline.Skip
	test.That(t, cfg.Validate("config"), test.ShouldBeNil)
	test.That(t, cfg.TransformerConfig().InvalidBoxes, test.ShouldEqual, referenceframe.AbortOnInvalidBox)
}

func TestSchema(t *testing.T) {
	schema := Schema()
	test.That(t, schema.Required, test.ShouldContain, "image_width")
	test.That(t, schema.Required, test.ShouldContain, "calibration_file")
	test.That(t, schema.Required, test.ShouldNotContain, "cameras")
	_, ok := schema.Properties.Get("failure_policy")
	test.That(t, ok, test.ShouldBeTrue)
	_, ok = schema.Properties.Get("ConfigFilePath")
	test.That(t, ok, test.ShouldBeFalse)
}
