// Package config reads the loader configuration: a YAML file with ${VAR} and
// ${VAR:-default} expansion, overridden by STAYWAREHOUSE_* environment variables.
package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/derive"
	"github.com/bruin-data/staywarehouse/pkg/load"
	path2 "github.com/bruin-data/staywarehouse/pkg/path"
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	EnvPrefix = "STAYWAREHOUSE_"

	WarehousePostgres = "postgres"
	WarehouseDuckDB   = "duckdb"
	WarehouseSQLite   = "sqlite"
	WarehouseMemory   = "memory"

	DefaultPath    = "staywarehouse.yml"
	defaultTimeout = 10 * time.Minute
)

type Warehouse struct {
	Type         string `yaml:"type" validate:"required,oneof=postgres duckdb sqlite memory"`
	URI          string `yaml:"uri,omitempty"`
	Path         string `yaml:"path,omitempty"`
	Schema       string `yaml:"schema,omitempty"`
	Isolation    string `yaml:"isolation,omitempty" validate:"omitempty,oneof=read_committed repeatable_read serializable"`
	PoolMaxConns int    `yaml:"pool_max_conns,omitempty" validate:"gte=0"`
}

type Load struct {
	FactBinding               string             `yaml:"fact_binding" validate:"omitempty,oneof=load_time measurement_date"`
	DaysPerMonth              float64            `yaml:"days_per_month" validate:"gte=0"`
	DeriveReferenceDimensions *bool              `yaml:"derive_reference_dimensions"`
	Timeout                   time.Duration      `yaml:"timeout" validate:"gte=0"`
	PriceTiers                []derive.PriceTier `yaml:"price_tiers" validate:"dive"`
}

type Log struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

type Config struct {
	Warehouse Warehouse `yaml:"warehouse"`
	Load      Load      `yaml:"load"`
	Log       Log       `yaml:"log"`
}

func Default() *Config {
	derived := true
	return &Config{
		Warehouse: Warehouse{
			Type:   WarehouseDuckDB,
			Path:   "warehouse.duckdb",
			Schema: "analytics",
		},
		Load: Load{
			FactBinding:               string(load.BindLoadTime),
			DaysPerMonth:              derive.DefaultDaysPerMonth,
			DeriveReferenceDimensions: &derived,
			Timeout:                   defaultTimeout,
			PriceTiers:                derive.DefaultPriceTiers(),
		},
		Log: Log{Level: "info"},
	}
}

var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandVariables replaces ${VAR} and ${VAR:-default} references using lookup.
// Unset variables without a default expand to an empty string.
func ExpandVariables(content string, lookup func(string) (string, bool)) string {
	return variablePattern.ReplaceAllStringFunc(content, func(ref string) string {
		m := variablePattern.FindStringSubmatch(ref)
		if v, ok := lookup(m[1]); ok && v != "" {
			return v
		}
		return m[3]
	})
}

// Environ returns the process environment as a map.
func Environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		out[k] = v
	}
	return out
}

// LoadFromFile reads the configuration at path on top of the defaults. A missing
// file is only an error when required is set; environ provides both the
// variables for expansion and the overrides.
func LoadFromFile(fs afero.Fs, path string, required bool, environ map[string]string) (*Config, error) {
	cfg := Default()
	if environ == nil {
		environ = map[string]string{}
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to check config file %s", path)
	}
	switch {
	case exists:
		buf, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		expanded := ExpandVariables(string(buf), func(name string) (string, bool) {
			v, ok := environ[name]
			return v, ok
		})
		if err := path2.ConvertYamlToObject([]byte(expanded), cfg); err != nil {
			return nil, errors.Wrapf(err, "invalid config file %s", path)
		}
	case required:
		return nil, errors.Errorf("config file %s does not exist", path)
	}

	if err := cfg.applyEnv(environ); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverrides are the settings that can be replaced per deployment without
// touching the file, read from STAYWAREHOUSE_<name>.
type envOverrides struct {
	WarehouseType   string        `env:"WAREHOUSE_TYPE"`
	WarehouseURI    string        `env:"WAREHOUSE_URI"`
	WarehousePath   string        `env:"WAREHOUSE_PATH"`
	WarehouseSchema string        `env:"WAREHOUSE_SCHEMA"`
	FactBinding     string        `env:"FACT_BINDING"`
	LoadTimeout     time.Duration `env:"LOAD_TIMEOUT"`
	LogLevel        string        `env:"LOG_LEVEL"`
}

func (c *Config) applyEnv(environ map[string]string) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return errors.Wrap(err, "failed to read environment overrides")
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&c.Warehouse.Type, o.WarehouseType)
	override(&c.Warehouse.URI, o.WarehouseURI)
	override(&c.Warehouse.Path, o.WarehousePath)
	override(&c.Warehouse.Schema, o.WarehouseSchema)
	override(&c.Load.FactBinding, o.FactBinding)
	override(&c.Log.Level, o.LogLevel)
	if o.LoadTimeout > 0 {
		c.Load.Timeout = o.LoadTimeout
	}
	return nil
}

func (c *Config) Validate() error {
	if err := path2.ValidateStruct(c); err != nil {
		return err
	}

	switch c.Warehouse.Type {
	case WarehousePostgres:
		if c.Warehouse.URI == "" {
			return errors.New("warehouse.uri is required for postgres")
		}
	case WarehouseDuckDB:
		if c.Warehouse.Path == "" {
			return errors.New("warehouse.path is required for duckdb")
		}
	}

	if err := derive.ValidateTiers(c.Load.PriceTiers); err != nil {
		return errors.Wrap(err, "load.price_tiers")
	}
	return nil
}

// LoadOptions builds the coordinator options described by the load section.
func (c *Config) LoadOptions() (load.Options, error) {
	d, err := derive.NewDeriver(c.Load.PriceTiers, c.Load.DaysPerMonth)
	if err != nil {
		return load.Options{}, err
	}

	opts := load.DefaultOptions()
	opts.FactBinding = load.FactBinding(c.Load.FactBinding)
	opts.Deriver = d
	if c.Load.DeriveReferenceDimensions != nil {
		opts.DeriveReferenceDimensions = *c.Load.DeriveReferenceDimensions
	}
	return opts, nil
}

// Persist writes the configuration as YAML.
func (c *Config) Persist(fs afero.Fs, path string) error {
	return path2.WriteYaml(fs, path, c)
}
