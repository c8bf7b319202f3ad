package ros

import (
	"context"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/pipeline"
)

// Submitter accepts triggers. *pipeline.Orchestrator implements it.
type Submitter interface {
	Submit(t pipeline.Trigger) error
}

// TriggersFromMessages turns recorded messages into triggers in time order.
func TriggersFromMessages(msgs []StampedMessage, source string) []pipeline.Trigger {
	out := make([]pipeline.Trigger, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, pipeline.Trigger{Stamp: m.Time(), Source: source})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Stamp.Before(out[j].Stamp)
	})
	return out
}

// TriggersFromBag reads the messages of topic from the bag at path.
func TriggersFromBag(path, topic string) ([]pipeline.Trigger, error) {
	rb, err := ReadBag(path)
	if err != nil {
		return nil, err
	}
	msgs, err := MessagesForTopic(rb, topic, 0, 0)
	if err != nil {
		return nil, err
	}
	stamped, err := DecodeStamped(msgs)
	if err != nil {
		return nil, err
	}
	return TriggersFromMessages(stamped, topic), nil
}

// Replayer paces recorded triggers into a submitter.
type Replayer struct {
	// Rate scales the recorded gaps between triggers: 2 replays twice as fast. Zero submits
	// without waiting.
	Rate   float64
	Clock  clock.Clock
	Logger logging.Logger
}

// ReplayStats counts what a replay submitted.
type ReplayStats struct {
	Submitted int
	Dropped   int
}

// Replay submits triggers in order, waiting the recorded gap between consecutive stamps
// divided by Rate. It returns early when ctx ends or the submitter stops.
func (r *Replayer) Replay(ctx context.Context, triggers []pipeline.Trigger, sub Submitter) (ReplayStats, error) {
	var stats ReplayStats
	if r.Rate < 0 {
		return stats, errors.Errorf("replay rate must not be negative, got %v", r.Rate)
	}
	clk := r.Clock
	if clk == nil {
		clk = clock.New()
	}
	for i, t := range triggers {
		if i > 0 && r.Rate > 0 {
			gap := time.Duration(float64(t.Stamp.Sub(triggers[i-1].Stamp)) / r.Rate)
			if gap > 0 {
				timer := clk.Timer(gap)
				select {
				case <-ctx.Done():
					timer.Stop()
					return stats, ctx.Err()
				case <-timer.C:
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		switch err := sub.Submit(t); {
		case err == nil:
			stats.Submitted++
		case errors.Is(err, pipeline.ErrQueueFull):
			stats.Dropped++
		default:
			return stats, err
		}
	}
	if r.Logger != nil {
		r.Logger.Infow("replay finished", "submitted", stats.Submitted, "dropped", stats.Dropped)
	}
	return stats, nil
}
