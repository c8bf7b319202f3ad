// Package config defines the node configuration and how it is read and validated.
package config

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	goutils "go.viam.com/utils"

	"go.viam.com/bevdet/calibration"
	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/ml/inference"
	"go.viam.com/bevdet/pipeline"
	"go.viam.com/bevdet/publish"
	"go.viam.com/bevdet/referenceframe"
	"go.viam.com/bevdet/sensors"
	"go.viam.com/bevdet/staging"
)

// Config is the configuration of a detection node.
type Config struct {
	ConfigFilePath string `json:"-"`

	// Cameras is the order images are staged in. Empty means the sample cameras sorted by name.
	Cameras            []string                  `json:"cameras,omitempty"`
	ImageWidth         int                       `json:"image_width"`
	ImageHeight        int                       `json:"image_height"`
	ChannelOrder       string                    `json:"channel_order,omitempty" jsonschema:"enum=bgr,enum=rgb"`
	CalibrationFile    string                    `json:"calibration_file"`
	LidarYawMode       referenceframe.YawMode    `json:"lidar_yaw_mode,omitempty" jsonschema:"enum=euler_xyz,enum=heading"`
	RotateVelocity     bool                      `json:"rotate_velocity,omitempty"`
	RequirePlanarLidar bool                      `json:"require_planar_lidar,omitempty"`
	PlanarTolerance    float64                   `json:"planar_tolerance,omitempty"`
	Inference          InferenceConfig           `json:"inference"`
	FailurePolicy      pipeline.FailurePolicy    `json:"failure_policy,omitempty"`
	QueueSize          int                       `json:"queue_size,omitempty"`
	Publish            publish.Config            `json:"publish,omitempty"`
	Sample             *sensors.FileSourceConfig `json:"sample"`
	Trigger            TriggerConfig             `json:"trigger,omitempty"`
	Log                LogConfig                 `json:"log,omitempty"`
}

// InferenceConfig selects the inference engine.
type InferenceConfig struct {
	Type       string               `json:"type"`
	Timeout    string               `json:"timeout,omitempty"`
	Attributes inference.Attributes `json:"attributes,omitempty"`

	timeout time.Duration
}

// TimeoutDuration returns the parsed timeout; zero means no timeout. Only valid after Validate.
func (c InferenceConfig) TimeoutDuration() time.Duration {
	return c.timeout
}

// TriggerConfig selects where cycle triggers come from. A bag replays its messages; otherwise
// a cycle is triggered every interval.
type TriggerConfig struct {
	Bag      string  `json:"bag,omitempty"`
	Topic    string  `json:"topic,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
	Interval string  `json:"interval,omitempty"`

	interval time.Duration
}

// DefaultTriggerInterval is used when no bag and no interval are configured.
const DefaultTriggerInterval = 100 * time.Millisecond

// IntervalDuration returns the parsed trigger interval. Only valid after Validate.
func (c TriggerConfig) IntervalDuration() time.Duration {
	return c.interval
}

// LogConfig sets the node's log level and optional rotated log file.
type LogConfig struct {
	Level string                      `json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	File  *logging.FileAppenderConfig `json:"file,omitempty"`
}

// ParsedLevel returns the configured level, defaulting to info.
func (c LogConfig) ParsedLevel() (logging.Level, error) {
	if c.Level == "" {
		return logging.INFO, nil
	}
	return logging.LevelFromString(c.Level)
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (c *Config) Validate(path string) error {
	if c.ImageWidth <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "image_width")
	}
	if c.ImageHeight <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "image_height")
	}
	if c.CalibrationFile == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "calibration_file")
	}
	if c.Sample == nil {
		return goutils.NewConfigValidationFieldRequiredError(path, "sample")
	}
	if dups := lo.FindDuplicates(c.Cameras); len(dups) > 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("duplicate cameras %v", dups))
	}
	if len(c.Cameras) == 0 {
		c.Cameras = lo.Keys(c.Sample.Images)
		sort.Strings(c.Cameras)
	}
	if err := c.Sample.Validate(c.Cameras); err != nil {
		return goutils.NewConfigValidationError(path+".sample", err)
	}
	if _, err := staging.ParseChannelOrder(c.ChannelOrder); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	if c.PlanarTolerance < 0 {
		return goutils.NewConfigValidationError(path, errors.New("planar_tolerance cannot be negative"))
	}
	if c.QueueSize < 0 {
		return goutils.NewConfigValidationError(path, errors.New("queue_size cannot be negative"))
	}
	if err := c.Inference.Validate(path + ".inference"); err != nil {
		return err
	}
	if err := c.FailurePolicy.Validate(path + ".failure_policy"); err != nil {
		return err
	}
	tcfg := c.TransformerConfig()
	if err := tcfg.Validate(); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	if err := c.Publish.Validate(path + ".publish"); err != nil {
		return err
	}
	if err := c.Trigger.Validate(path + ".trigger"); err != nil {
		return err
	}
	if _, err := c.Log.ParsedLevel(); err != nil {
		return goutils.NewConfigValidationError(path+".log", err)
	}
	if c.Log.File != nil && c.Log.File.Path == "" {
		return goutils.NewConfigValidationFieldRequiredError(path+".log.file", "path")
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (c *InferenceConfig) Validate(path string) error {
	if c.Type == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "type")
	}
	if c.Timeout == "" {
		c.timeout = 0
		return nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return goutils.NewConfigValidationError(path, errors.Wrap(err, "parsing timeout"))
	}
	if d < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("timeout cannot be negative, got %s", c.Timeout))
	}
	c.timeout = d
	return nil
}

// Validate ensures all parts of the config are valid.
func (c *TriggerConfig) Validate(path string) error {
	if c.Rate < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("rate cannot be negative, got %v", c.Rate))
	}
	if c.Bag != "" {
		if c.Topic == "" {
			return goutils.NewConfigValidationFieldRequiredError(path, "topic")
		}
		if c.Interval != "" {
			return goutils.NewConfigValidationError(path, errors.New("bag and interval are mutually exclusive"))
		}
		return nil
	}
	if c.Interval == "" {
		c.interval = DefaultTriggerInterval
		return nil
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return goutils.NewConfigValidationError(path, errors.Wrap(err, "parsing interval"))
	}
	if d <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("interval must be positive, got %s", c.Interval))
	}
	c.interval = d
	return nil
}

// TransformerConfig returns the frame transform settings.
func (c *Config) TransformerConfig() referenceframe.TransformerConfig {
	return referenceframe.TransformerConfig{
		YawMode:        c.LidarYawMode,
		RotateVelocity: c.RotateVelocity,
		InvalidBoxes:   c.FailurePolicy.InvalidBoxPolicy(),
		Planar:         c.RequirePlanarLidar,
	}
}

// CalibrationOptions returns the calibration checks to apply.
func (c *Config) CalibrationOptions() calibration.Options {
	return calibration.Options{RequirePlanarLidar: c.RequirePlanarLidar, PlanarTolerance: c.PlanarTolerance}
}

// PipelineConfig returns the orchestrator settings.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		QueueSize:        c.QueueSize,
		InferenceTimeout: c.Inference.timeout,
		Policy:           c.FailurePolicy,
		Engine:           c.Inference.Type,
	}
}

// ResolvePaths makes every relative file path relative to dir.
func (c *Config) ResolvePaths(dir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	resolve(&c.CalibrationFile)
	resolve(&c.Publish.TextFile)
	resolve(&c.Publish.CloudFile)
	resolve(&c.Publish.RenderFile)
	resolve(&c.Trigger.Bag)
	if c.Sample != nil {
		resolve(&c.Sample.PointCloud)
		for name, p := range c.Sample.Images {
			resolve(&p)
			c.Sample.Images[name] = p
		}
	}
	if c.Log.File != nil {
		resolve(&c.Log.File.Path)
	}
}
