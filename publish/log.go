package publish

import (
	"context"

	"github.com/samber/lo"

	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/vision/boxes"
)

// LogPublisher logs a summary of each result.
type LogPublisher struct {
	logger logging.Logger
}

// NewLogPublisher returns a publisher logging to logger.
func NewLogPublisher(logger logging.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the number of boxes per class.
func (lp *LogPublisher) Publish(ctx context.Context, res *Result) error {
	counts := lo.CountValuesBy(res.Boxes, func(b boxes.OrientedBox) string {
		return boxes.LabelName(b.Label)
	})
	points := 0
	if res.Cloud != nil {
		points = res.Cloud.Size()
	}
	lp.logger.Infow("published detections",
		"cycle", res.Cycle,
		"seq", res.Seq,
		"frame", res.FrameID,
		"boxes", len(res.Boxes),
		"classes", counts,
		"points", points)
	return nil
}

// Close does nothing.
func (lp *LogPublisher) Close(ctx context.Context) error {
	return nil
}
