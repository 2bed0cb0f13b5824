package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/bruin-data/staywarehouse/pkg/batchfile"
	"github.com/urfave/cli/v2"
)

func Schema() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "print the JSON schema batch files are validated against",
		Action: func(c *cli.Context) error {
			js, err := json.MarshalIndent(batchfile.Schema(), "", "  ")
			if err != nil {
				printErrorJSON(err)
				return cli.Exit("", 1)
			}
			fmt.Println(string(js))
			return nil
		},
	}
}
