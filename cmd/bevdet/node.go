package main

import (
	"context"
	"fmt"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/bevdet/calibration"
	"go.viam.com/bevdet/config"
	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/ml/inference"
	"go.viam.com/bevdet/pipeline"
	"go.viam.com/bevdet/publish"
	"go.viam.com/bevdet/referenceframe"
	"go.viam.com/bevdet/ros"
	"go.viam.com/bevdet/sensors"
	"go.viam.com/bevdet/spatialmath"
	"go.viam.com/bevdet/staging"
	"go.viam.com/bevdet/utils"
)

// node is a configured orchestrator and the trigger source that drives it.
type node struct {
	cfg    *config.Config
	orch   *pipeline.Orchestrator
	clock  clock.Clock
	logger logging.Logger
}

// newNode builds every component named by cfg. On error, whatever was already built is
// closed again.
func newNode(ctx context.Context, cfg *config.Config, clk clock.Clock, logger logging.Logger) (_ *node, err error) {
	var closers []func(context.Context) error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Combine(err, closers[i](ctx))
		}
	}()

	calib, err := calibration.Load(cfg.CalibrationFile, cfg.Cameras, cfg.ImageWidth, cfg.ImageHeight,
		cfg.CalibrationOptions(), logger.Sublogger("calibration"))
	if err != nil {
		return nil, err
	}
	order, err := staging.ParseChannelOrder(cfg.ChannelOrder)
	if err != nil {
		return nil, err
	}
	buf, err := staging.NewHostBuffer(calib.NumCameras(), cfg.ImageWidth, cfg.ImageHeight, order, logger.Sublogger("staging"))
	if err != nil {
		return nil, err
	}
	closers = append(closers, buf.Close)

	engine, err := inference.New(ctx, cfg.Inference.Type, calib, cfg.Inference.Attributes, logger.Sublogger("inference"))
	if err != nil {
		return nil, err
	}
	closers = append(closers, engine.Close)

	transformer, err := referenceframe.NewLidarTransformer(calib.Vehicle(), cfg.TransformerConfig(), logger.Sublogger("frame"))
	if err != nil {
		return nil, err
	}
	pub, err := publish.New(cfg.Publish, logger.Sublogger("publish"))
	if err != nil {
		return nil, err
	}
	closers = append(closers, pub.Close)

	source, err := sensors.NewFileSource(*cfg.Sample, calib.Names(), clk, logger.Sublogger("sensors"))
	if err != nil {
		return nil, err
	}
	closers = append(closers, source.Close)

	orch, err := pipeline.New(cfg.PipelineConfig(), pipeline.Dependencies{
		Calibration: calib,
		Buffer:      buf,
		Source:      source,
		Engine:      engine,
		Transformer: transformer,
		Publisher:   pub,
		Clock:       clk,
	}, logger.Sublogger("pipeline"))
	if err != nil {
		return nil, err
	}
	return &node{cfg: cfg, orch: orch, clock: clk, logger: logger}, nil
}

// runOnce runs a single cycle and closes the node.
func (n *node) runOnce(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Combine(err, n.orch.Close(context.Background()))
	}()
	res, err := n.orch.RunCycle(ctx, pipeline.Trigger{Seq: 1, Stamp: n.clock.Now(), Source: "once"})
	if err != nil {
		return err
	}
	n.logger.Infow("cycle finished", "cycle", res.Cycle, "boxes", len(res.Boxes))
	return nil
}

// run feeds triggers to the orchestrator until ctx ends, the bag is exhausted, or a cycle
// fails fatally, then closes the node.
func (n *node) run(ctx context.Context) (err error) {
	defer func() {
		n.logStats()
		err = multierr.Combine(err, n.orch.Close(context.Background()))
	}()
	n.orch.Start(ctx)
	if n.cfg.Trigger.Bag != "" {
		err = n.replay(ctx)
	} else {
		err = n.tick(ctx)
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		n.logger.Info("shutting down")
		return nil
	}
	return err
}

func (n *node) replay(ctx context.Context) error {
	triggers, err := ros.TriggersFromBag(n.cfg.Trigger.Bag, n.cfg.Trigger.Topic)
	if err != nil {
		return err
	}
	n.logger.Infow("replaying bag",
		"path", n.cfg.Trigger.Bag,
		"topic", n.cfg.Trigger.Topic,
		"triggers", len(triggers),
		"rate", n.cfg.Trigger.Rate)
	replayer := &ros.Replayer{Rate: n.cfg.Trigger.Rate, Clock: n.clock, Logger: n.logger.Sublogger("replay")}
	if _, err := replayer.Replay(ctx, triggers, n.orch); err != nil {
		if errors.Is(err, pipeline.ErrStopped) {
			return n.orch.Err()
		}
		return err
	}
	return n.orch.Drain(ctx)
}

func (n *node) tick(ctx context.Context) error {
	interval := n.cfg.Trigger.IntervalDuration()
	n.logger.Infow("triggering periodically", "interval", interval)
	ticker := n.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.orch.Done():
			return n.orch.Err()
		case <-ticker.C:
		}
		err := n.orch.Submit(pipeline.Trigger{Source: "timer"})
		switch {
		case err == nil, errors.Is(err, pipeline.ErrQueueFull):
		case errors.Is(err, pipeline.ErrStopped):
			return n.orch.Err()
		default:
			return err
		}
	}
}

func (n *node) logStats() {
	s := n.orch.Stats()
	n.logger.Infow("cycle stats",
		"cycles", s.Cycles,
		"completed", s.Completed,
		"failed", s.Failed,
		"dropped_triggers", s.DroppedTriggers,
		"dropped_boxes", s.DroppedBoxes,
		"cycle_p50", s.Cycle.P50,
		"cycle_p95", s.Cycle.P95,
		"inference_p50", s.Inference.P50,
		"inference_p95", s.Inference.P95)
}

// checkCalibration loads the calibration cfg names and prints a table of every camera and
// the lidar mount. Each camera also shows its position in the lidar frame.
func checkCalibration(w io.Writer, cfg *config.Config, logger logging.Logger) error {
	calib, err := calibration.Load(cfg.CalibrationFile, cfg.Cameras, cfg.ImageWidth, cfg.ImageHeight,
		cfg.CalibrationOptions(), logger)
	if err != nil {
		return err
	}
	lidar := calib.Vehicle().LidarToEgo
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Frame", "Intrinsics", "Translation", "Orientation", "In Lidar"})
	for i, cam := range calib.Cameras() {
		t.AppendRow(table.Row{
			fmt.Sprintf("%d", i),
			cam.Name,
			fmt.Sprintf("fx:%.2f, fy:%.2f, cx:%.2f, cy:%.2f",
				cam.Intrinsics.Fx, cam.Intrinsics.Fy, cam.Intrinsics.Ppx, cam.Intrinsics.Ppy),
			formatTranslation(cam.SensorToEgo),
			formatOrientation(cam.SensorToEgo),
			formatTranslation(spatialmath.PoseBetween(lidar, cam.SensorToEgo)),
		})
	}
	t.AppendRow(table.Row{
		"",
		referenceframe.LidarFrame,
		"",
		formatTranslation(lidar),
		formatOrientation(lidar),
		"",
	})
	tilt := calibration.Tilt(lidar.Orientation().RotationMatrix())
	_, err = fmt.Fprintf(w, "%s\nlidar tilt %.2f deg, digest %016x\n", t.Render(), utils.RadToDeg(tilt), calib.Digest())
	return err
}

func formatTranslation(pose spatialmath.Pose) string {
	pt := pose.Point()
	return fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f", pt.X, pt.Y, pt.Z)
}

func formatOrientation(pose spatialmath.Pose) string {
	ori := pose.Orientation().EulerAngles()
	return fmt.Sprintf(
		"Roll:%.2f, Pitch:%.2f, Yaw:%.2f",
		utils.RadToDeg(ori.Roll),
		utils.RadToDeg(ori.Pitch),
		utils.RadToDeg(ori.Yaw),
	)
}
