package cmd

import (
	"github.com/bruin-data/staywarehouse/pkg/batchfile"
	"github.com/bruin-data/staywarehouse/pkg/config"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	infoPrinter    = color.New(color.Bold)
	errorPrinter   = color.New(color.FgRed, color.Bold)
	warningPrinter = color.New(color.FgYellow, color.Bold)
	successPrinter = color.New(color.FgGreen, color.Bold)

	batchFileSuffixes = batchfile.Suffixes
)

func configFileFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config-file",
		Aliases: []string{"c"},
		EnvVars: []string{config.EnvPrefix + "CONFIG_FILE"},
		Value:   config.DefaultPath,
		Usage:   "the path to the staywarehouse.yml file",
	}
}

func outputFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "the output type, possible values are: plain, json",
	}
}
