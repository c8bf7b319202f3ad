package config

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/a8m/envsubst"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"go.viam.com/bevdet/logging"
)

// Read reads a config from the given file, substituting environment variables, and
// validates it. Relative paths in the config are taken relative to the file.
func Read(ctx context.Context, filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(ctx, filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies where, if applicable, the
// file the reader originated from.
func FromReader(ctx context.Context, originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	var cfg Config
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config from json")
	}
	cfg.ConfigFilePath = originalPath
	if originalPath != "" {
		cfg.ResolvePaths(filepath.Dir(originalPath))
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	logger.Debugw("read config",
		"path", originalPath,
		"cameras", cfg.Cameras,
		"engine", cfg.Inference.Type,
		"calibration", cfg.CalibrationFile)
	return &cfg, nil
}

// Schema returns the JSON schema of the config file.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{ExpandedStruct: true}
	return r.Reflect(&Config{})
}
