package inference

import (
	"context"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/bevdet/calibration"
	"go.viam.com/bevdet/logging"
)

// Attributes are the engine-specific settings from the node config.
type Attributes map[string]interface{}

// Constructor builds an engine for a calibration.
type Constructor func(ctx context.Context, calib *calibration.Calibration, attrs Attributes, logger logging.Logger) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register makes an engine model available by name. It panics if the name is taken.
func Register(model string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[model]; ok {
		panic(errors.Errorf("inference engine %q is already registered", model))
	}
	if constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for inference engine %q", model))
	}
	registry[model] = constructor
}

// Registered lists the known engine models.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := lo.Keys(registry)
	sort.Strings(models)
	return models
}

// New builds the named engine.
func New(ctx context.Context, model string, calib *calibration.Calibration, attrs Attributes, logger logging.Logger) (Engine, error) {
	registryMu.RLock()
	constructor, ok := registry[model]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown inference engine %q, registered: %v", model, Registered())
	}
	engine, err := constructor(ctx, calib, attrs, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "creating inference engine %q", model)
	}
	return engine, nil
}

// DecodeAttributes decodes attrs into the struct pointed to by out using its json tags.
// Unknown keys are an error. Duration fields accept strings such as "150ms".
func DecodeAttributes(attrs Attributes, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      out,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]interface{}(attrs))
}
