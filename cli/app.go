// Package cli contains the compnetx command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig   = "config"
	flagDebug    = "debug"
	flagLogLevel = "log-level"
	flagLogFile  = "log-file"
	flagCount    = "count"
	flagParallel = "parallel"
	flagSeed     = "seed"
	flagStart    = "start"
	flagGoal     = "goal"
	flagOutput   = "output"
	flagTol      = "tolerance"
	flagMaxIter  = "max-iterations"
	flagChain    = "chain"
	flagTitle    = "title"
	flagBins     = "bins"
)

var configFlag = &cli.PathFlag{
	Name:      flagConfig,
	Aliases:   []string{"c"},
	Usage:     "load configuration from `FILE`",
	Required:  true,
	TakesFile: true,
}

var outputFlag = &cli.PathFlag{
	Name:      flagOutput,
	Aliases:   []string{"o"},
	Usage:     "write one JSON record per line to `FILE`",
	TakesFile: true,
}

var seedFlag = &cli.Int64Flag{
	Name:  flagSeed,
	Usage: "seed for random configurations",
	Value: 1,
}

var app = &cli.App{
	Name:            "compnetx",
	Usage:           "sample and project robot configurations constrained by task space region chains",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  flagLogLevel,
			Usage: "lowest level logged to stderr: debug, info, warn or error",
			Value: "warn",
		},
		&cli.PathFlag{
			Name:      flagLogFile,
			Usage:     "also write logs to `FILE`, rotated at 100MB",
			TakesFile: true,
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "sample",
			Usage:     "propose configurations with the configured networks and reconcile them with every chain",
			UsageText: "compnetx sample --config <FILE> [other options]",
			Flags: []cli.Flag{
				configFlag,
				outputFlag,
				&cli.IntFlag{
					Name:  flagCount,
					Usage: "number of samples",
					Value: 10,
				},
				&cli.IntFlag{
					Name:  flagParallel,
					Usage: "number of samplers run at once",
					Value: 1,
				},
				&cli.Float64SliceFlag{
					Name:  flagStart,
					Usage: "start configuration, defaults to zeros",
				},
				&cli.Float64SliceFlag{
					Name:  flagGoal,
					Usage: "goal configuration, defaults to zeros",
				},
				&cli.Float64Flag{
					Name:  flagTol,
					Usage: "largest constraint distance counted as a success",
					Value: 1e-3,
				},
			},
			Action: SampleAction,
		},
		{
			Name:      "project",
			Usage:     "project random robot configurations onto the constraint chains",
			UsageText: "compnetx project --config <FILE> [other options]",
			Flags: []cli.Flag{
				configFlag,
				outputFlag,
				seedFlag,
				&cli.IntFlag{
					Name:  flagCount,
					Usage: "number of configurations per chain",
					Value: 10,
				},
				&cli.Float64Flag{
					Name:  flagTol,
					Usage: "constraint distance accepted as on the manifold",
					Value: 1e-6,
				},
				&cli.IntFlag{
					Name:  flagMaxIter,
					Usage: "newton iterations before giving up",
					Value: 50,
				},
				&cli.StringFlag{
					Name:  flagChain,
					Usage: "only project onto the named chain",
				},
			},
			Action: ProjectAction,
		},
		{
			Name:      "stats",
			Usage:     "summarize records written by sample or project",
			UsageText: "compnetx stats [--bins N] <FILE>...",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  flagBins,
					Usage: "also print a distance histogram with this many bins",
				},
			},
			Action: StatsAction,
		},
		{
			Name:      "plot",
			Usage:     "scatter the end effector positions of records written by sample or project",
			UsageText: "compnetx plot --output <FILE> <RECORDS>...",
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:     flagOutput,
					Aliases:  []string{"o"},
					Usage:    "image `FILE`; the extension selects the format",
					Required: true,
				},
				&cli.StringFlag{
					Name:  flagTitle,
					Usage: "plot title",
					Value: "end effector positions",
				},
			},
			Action: PlotAction,
		},
		{
			Name:   "schema",
			Usage:  "print the JSON schema of config files",
			Action: SchemaAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
