package main

import (
	"os"
	"time"

	"github.com/bruin-data/staywarehouse/cmd"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = ""
)

func main() {
	isDebug := false
	color.NoColor = false

	versionCommand := cmd.VersionCmd(commit)

	cli.VersionPrinter = func(cCtx *cli.Context) {
		err := versionCommand.Action(cCtx)
		if err != nil {
			panic(err)
		}
	}

	app := &cli.App{
		Name:     "staywarehouse",
		Version:  version,
		Usage:    "Load short-term rental snapshots into a star-schema warehouse",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "debug",
				Value:       false,
				Usage:       "show debug information",
				Destination: &isDebug,
			},
		},
		Commands: []*cli.Command{
			cmd.Load(&isDebug),
			cmd.Init(),
			cmd.RenderDDL(),
			cmd.Schema(),
			versionCommand,
		},
	}

	_ = app.Run(os.Args)
}
