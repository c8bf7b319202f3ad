package pipeline

import (
	"github.com/pkg/errors"

	"go.viam.com/bevdet/ml/inference"
	"go.viam.com/bevdet/referenceframe"
	"go.viam.com/bevdet/staging"
	"go.viam.com/bevdet/vision/boxes"
)

// Action is what the orchestrator does when a cycle fails.
type Action string

const (
	// Skip abandons the cycle without publishing and waits for the next trigger.
	Skip Action = "skip"
	// Drop discards the offending boxes and publishes the rest. Only invalid boxes can be dropped.
	Drop Action = "drop"
	// Fatal stops the orchestrator with the cycle's error.
	Fatal Action = "fatal"
)

// ErrorClass groups cycle failures for the failure policy.
type ErrorClass string

// Cycle failure classes.
const (
	ClassLoad          ErrorClass = "load"
	ClassShapeMismatch ErrorClass = "shape_mismatch"
	ClassStaging       ErrorClass = "staging"
	ClassInference     ErrorClass = "inference"
	ClassInvalidBox    ErrorClass = "invalid_box"
	ClassPublish       ErrorClass = "publish"
)

// FailurePolicy picks an action per failure class. Empty fields take their defaults:
// invalid boxes are dropped and every other failure skips the cycle.
type FailurePolicy struct {
	Load          Action `json:"load,omitempty"`
	ShapeMismatch Action `json:"shape_mismatch,omitempty"`
	Staging       Action `json:"staging,omitempty"`
	Inference     Action `json:"inference,omitempty"`
	InvalidBox    Action `json:"invalid_box,omitempty"`
	Publish       Action `json:"publish,omitempty"`
}

// Validate fills in defaults and ensures every action is allowed for its class.
func (p *FailurePolicy) Validate(path string) error {
	for _, f := range []struct {
		class  ErrorClass
		action *Action
	}{
		{ClassLoad, &p.Load},
		{ClassShapeMismatch, &p.ShapeMismatch},
		{ClassStaging, &p.Staging},
		{ClassInference, &p.Inference},
		{ClassInvalidBox, &p.InvalidBox},
		{ClassPublish, &p.Publish},
	} {
		switch *f.action {
		case "":
			*f.action = defaultAction(f.class)
		case Skip, Fatal:
		case Drop:
			if f.class != ClassInvalidBox {
				return errors.Errorf("%s.%s: only invalid_box failures can be dropped", path, f.class)
			}
		default:
			return errors.Errorf("%s.%s: unknown action %q", path, f.class, *f.action)
		}
	}
	return nil
}

// ActionFor returns the action for class.
func (p FailurePolicy) ActionFor(class ErrorClass) Action {
	var a Action
	switch class {
	case ClassLoad:
		a = p.Load
	case ClassShapeMismatch:
		a = p.ShapeMismatch
	case ClassStaging:
		a = p.Staging
	case ClassInference:
		a = p.Inference
	case ClassInvalidBox:
		a = p.InvalidBox
	case ClassPublish:
		a = p.Publish
	}
	if a == "" {
		return defaultAction(class)
	}
	return a
}

func defaultAction(class ErrorClass) Action {
	if class == ClassInvalidBox {
		return Drop
	}
	return Skip
}

// InvalidBoxPolicy is how the box transformer must treat invalid boxes under this policy.
func (p FailurePolicy) InvalidBoxPolicy() referenceframe.InvalidBoxPolicy {
	if p.ActionFor(ClassInvalidBox) == Drop {
		return referenceframe.DropInvalidBoxes
	}
	return referenceframe.AbortOnInvalidBox
}

// Classify returns the failure class of err, which happened in state.
func Classify(err error, state State) ErrorClass {
	switch {
	case staging.IsShapeMismatchError(err):
		return ClassShapeMismatch
	case boxes.IsInvalidBoxError(err):
		return ClassInvalidBox
	case inference.IsFailureError(err):
		return ClassInference
	}
	switch state {
	case StateLoading:
		return ClassLoad
	case StateStaging:
		return ClassStaging
	case StateInferring:
		return ClassInference
	case StateTransforming:
		return ClassInvalidBox
	default:
		return ClassPublish
	}
}
