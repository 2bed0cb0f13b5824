package cmd

import (
	"github.com/bruin-data/staywarehouse/pkg/config"
	"github.com/bruin-data/staywarehouse/pkg/path"
	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

func Init() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "write a starter configuration and create the warehouse tables",
		Flags: []cli.Flag{
			configFileFlag(),
			&cli.StringFlag{
				Name:  "type",
				Usage: "the warehouse type, possible values are: postgres, duckdb, sqlite, memory",
				Value: config.WarehouseDuckDB,
			},
			&cli.StringFlag{
				Name:  "uri",
				Usage: "the postgres connection URI, ${VAR} references are kept as they are",
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "the database file for duckdb and sqlite",
			},
			&cli.StringFlag{
				Name:  "schema",
				Usage: "the schema the tables live in",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "overwrite an existing configuration file",
			},
			&cli.BoolFlag{
				Name:  "skip-tables",
				Usage: "only write the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			defer RecoverFromPanic()

			fs := afero.NewOsFs()
			cfg, err := initConfig(fs, c.String("config-file"), initOptions{
				Type:   c.String("type"),
				URI:    c.String("uri"),
				Path:   c.String("path"),
				Schema: c.String("schema"),
				Force:  c.Bool("force"),
			})
			if err != nil {
				errorPrinter.Println(err.Error())
				return cli.Exit("", 1)
			}
			successPrinter.Printf("Wrote %s\n", c.String("config-file"))
			infoPrinter.Printf("Warehouse: %s\n", cfg.Warehouse.Type)

			if c.Bool("skip-tables") || cfg.Warehouse.Type == config.WarehouseMemory {
				return nil
			}

			resolved, err := config.LoadFromFile(fs, c.String("config-file"), true, config.Environ())
			if err != nil {
				errorPrinter.Printf("Failed to read back the configuration: %v\n", err)
				return cli.Exit("", 1)
			}

			store, err := openStore(c.Context, resolved.Warehouse)
			if err != nil {
				errorPrinter.Printf("Failed to open the warehouse: %v\n", err)
				return cli.Exit("", 1)
			}
			defer store.Close()

			tables := warehouse.NewCatalog().Tables()
			if err := store.EnsureTables(c.Context, tables); err != nil {
				errorPrinter.Printf("Failed to create the warehouse tables: %v\n", err)
				return cli.Exit("", 1)
			}
			successPrinter.Printf("Created %d tables in the %s warehouse\n", len(tables), resolved.Warehouse.Type)
			return nil
		},
	}
}

type initOptions struct {
	Type   string
	URI    string
	Path   string
	Schema string
	Force  bool
}

// initConfig writes the default configuration adjusted by opts to file.
func initConfig(fs afero.Fs, file string, opts initOptions) (*config.Config, error) {
	if path.FileExists(fs, file) && !opts.Force {
		return nil, errors.Errorf("%s already exists, use --force to overwrite it", file)
	}

	cfg := config.Default()
	cfg.Warehouse.Type = opts.Type
	switch opts.Type {
	case config.WarehousePostgres:
		cfg.Warehouse.Path = ""
		cfg.Warehouse.URI = opts.URI
		if cfg.Warehouse.URI == "" {
			cfg.Warehouse.URI = "${" + config.EnvPrefix + "POSTGRES_URI}"
		}
	case config.WarehouseSQLite:
		cfg.Warehouse.Path = "warehouse.sqlite"
		cfg.Warehouse.Schema = ""
	case config.WarehouseMemory:
		cfg.Warehouse.Path = ""
		cfg.Warehouse.Schema = ""
	}
	if opts.Path != "" {
		cfg.Warehouse.Path = opts.Path
	}
	if opts.Schema != "" {
		cfg.Warehouse.Schema = opts.Schema
	}

	if err := path.ValidateStruct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid init options")
	}
	if err := cfg.Persist(fs, file); err != nil {
		return nil, err
	}
	return cfg, nil
}
