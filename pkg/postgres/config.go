package postgres

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type Config struct {
	// URI is used as is when set; the discrete fields are ignored then.
	URI          string
	Username     string
	Password     string
	Host         string
	Port         int
	Database     string
	Schema       string
	PoolMaxConns int
	SslMode      string
	Isolation    string
}

// ToDBConnectionURI returns a connection URI to be used with the pgx package.
func (c Config) ToDBConnectionURI() string {
	if c.URI != "" {
		if c.PoolMaxConns <= 0 || strings.Contains(c.URI, "pool_max_conns") {
			return c.URI
		}
		sep := "?"
		if strings.Contains(c.URI, "?") {
			sep = "&"
		}
		return fmt.Sprintf("%s%spool_max_conns=%d", c.URI, sep, c.PoolMaxConns)
	}

	sslMode := c.SslMode
	if sslMode == "" {
		sslMode = "disable"
	}
	poolMaxConns := c.PoolMaxConns
	if poolMaxConns <= 0 {
		poolMaxConns = 10
	}

	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s&pool_max_conns=%d",
		url.PathEscape(c.Username),
		url.PathEscape(c.Password),
		net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		c.Database,
		sslMode,
		poolMaxConns,
	)
}

var isolationLevels = map[string]pgx.TxIsoLevel{
	"":                pgx.ReadCommitted,
	"read_committed":  pgx.ReadCommitted,
	"repeatable_read": pgx.RepeatableRead,
	"serializable":    pgx.Serializable,
}

func (c Config) IsolationLevel() (pgx.TxIsoLevel, error) {
	level, ok := isolationLevels[strings.ToLower(c.Isolation)]
	if !ok {
		return "", errors.Errorf("unknown isolation level '%s'", c.Isolation)
	}
	return level, nil
}
