package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/bruin-data/staywarehouse/pkg/ansisql"
	"github.com/bruin-data/staywarehouse/pkg/config"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

func RenderDDL() *cli.Command {
	return &cli.Command{
		Name:  "render-ddl",
		Usage: "print the DDL of the warehouse tables",
		Flags: []cli.Flag{
			configFileFlag(),
			outputFlag(),
			&cli.StringFlag{
				Name:  "dialect",
				Usage: "the SQL dialect, possible values are: postgres, duckdb, sqlite; defaults to the configured warehouse",
			},
			&cli.StringFlag{
				Name:  "schema",
				Usage: "the schema the tables live in; defaults to the configured schema",
			},
		},
		Action: func(c *cli.Context) error {
			defer RecoverFromPanic()

			output := c.String("output")
			cfg, err := loadConfig(afero.NewOsFs(), c)
			if err != nil {
				printErrorForOutput(output, err)
				return cli.Exit("", 1)
			}

			dialect := c.String("dialect")
			if dialect == "" {
				dialect = cfg.Warehouse.Type
			}
			schema := cfg.Warehouse.Schema
			if c.IsSet("schema") {
				schema = c.String("schema")
			}

			statements, err := renderDDL(dialect, schema)
			if err != nil {
				printErrorForOutput(output, err)
				return cli.Exit("", 1)
			}

			if output == "json" {
				js, err := json.Marshal(map[string]any{"dialect": dialect, "statements": statements})
				if err != nil {
					printErrorJSON(err)
					return cli.Exit("", 1)
				}
				fmt.Println(string(js))
				return nil
			}

			fmt.Print(ansisql.Script(statements))
			return nil
		},
	}
}

func renderDDL(dialect, schema string) ([]string, error) {
	if dialect == config.WarehouseMemory {
		return nil, errors.New("the memory warehouse has no DDL, pick a dialect with --dialect")
	}
	b, err := builderFor(dialect, schema)
	if err != nil {
		return nil, err
	}
	return b.DDL(warehouse.NewCatalog().Tables())
}
