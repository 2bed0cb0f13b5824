package duck

import "strings"

const defaultSchema = "main"

type Config struct {
	// Path of the database file; empty or ":memory:" keeps the warehouse in memory.
	Path   string
	Schema string
}

// ToDBConnectionURI returns the DSN to be used with the go-duckdb driver.
func (c Config) ToDBConnectionURI() string {
	if c.Path == ":memory:" {
		return ""
	}
	return c.Path
}

func (c Config) schema() string {
	if strings.TrimSpace(c.Schema) == "" {
		return defaultSchema
	}
	return c.Schema
}
