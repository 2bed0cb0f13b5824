package sqlite

import (
	"fmt"
	"net/url"
	"time"
)

const defaultBusyTimeout = 5 * time.Second

type Config struct {
	// Path of the database file; empty or ":memory:" keeps the warehouse in memory.
	Path        string
	BusyTimeout time.Duration
}

func (c Config) inMemory() bool {
	return c.Path == "" || c.Path == ":memory:"
}

// ToDBConnectionURI returns the DSN to be used with the modernc.org/sqlite driver.
// Transactions start with BEGIN IMMEDIATE and times are stored in the format
// SQLite's own date functions understand.
func (c Config) ToDBConnectionURI() string {
	path := c.Path
	if c.inMemory() {
		path = ":memory:"
	}

	busy := c.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "foreign_keys(ON)")
	if !c.inMemory() {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}
	q.Set("_txlock", "immediate")
	q.Set("_time_format", "sqlite")

	return path + "?" + q.Encode()
}
