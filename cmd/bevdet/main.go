// Package main is the bevdet command. It runs the detection node and inspects its inputs.
package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/trace"
	goutils "go.viam.com/utils"

	"go.viam.com/bevdet/config"
	"go.viam.com/bevdet/logging"
	// registers the stub engine.
	_ "go.viam.com/bevdet/ml/inference/fake"
)

const (
	// Flags.
	flagConfig = "config"
	flagDebug  = "debug"
	flagOnce   = "once"
	flagTrace  = "trace"
)

func main() {
	var logger logging.Logger

	configFlag := &cli.StringFlag{
		Name:     flagConfig,
		Aliases:  []string{"c"},
		Required: true,
		Usage:    "load configuration from `FILE`",
	}

	app := &cli.App{
		Name:            "bevdet",
		Usage:           "run multi-camera bird's-eye-view detection",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("bevdet")
			} else {
				logger = logging.NewLogger("bevdet")
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				goutils.UncheckedError(logger.Sync())
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the detection node",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{
						Name:  flagOnce,
						Usage: "run a single cycle and exit",
					},
					&cli.BoolFlag{
						Name:  flagTrace,
						Usage: "log a debug line for every traced span",
					},
				},
				Action: func(c *cli.Context) error {
					return runAction(c, logger)
				},
			},
			{
				Name:  "check-calib",
				Usage: "load the configured camera calibration and print it",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					cfg, err := config.Read(c.Context, c.String(flagConfig), logger)
					if err != nil {
						return err
					}
					return checkCalibration(c.App.Writer, cfg, logger)
				},
			},
			{
				Name:  "schema",
				Usage: "print the JSON schema of the node configuration",
				Action: func(c *cli.Context) error {
					enc := json.NewEncoder(c.App.Writer)
					enc.SetIndent("", "  ")
					return enc.Encode(config.Schema())
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runAction(c *cli.Context, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Read(ctx, c.String(flagConfig), logger)
	if err != nil {
		return err
	}
	closeLog, err := configureLogging(logger, cfg.Log, c.Bool(flagDebug))
	if err != nil {
		return err
	}
	defer closeLog()

	if c.Bool(flagTrace) {
		exporter := newSpanLogger(logger.Sublogger("trace"))
		trace.RegisterExporter(exporter)
		defer trace.UnregisterExporter(exporter)
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	}

	n, err := newNode(ctx, cfg, clock.New(), logger)
	if err != nil {
		return errors.Wrap(err, "starting node")
	}
	if c.Bool(flagOnce) {
		return n.runOnce(ctx)
	}
	return n.run(ctx)
}

// configureLogging applies the config's level, unless debug was forced on the command line,
// and attaches the rotated log file if one is configured.
func configureLogging(logger logging.Logger, cfg config.LogConfig, debug bool) (func(), error) {
	level, err := cfg.ParsedLevel()
	if err != nil {
		return nil, err
	}
	if !debug {
		logger.SetLevel(level)
	}
	if cfg.File == nil {
		return func() {}, nil
	}
	appender, closer := logging.NewFileAppender(*cfg.File)
	logger.AddAppender(appender)
	return func() { goutils.UncheckedError(closer.Close()) }, nil
}
