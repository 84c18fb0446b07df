package pool

import (
	"database/sql/driver"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/systmms/poolrotate/pkg/credential"
)

// ConnectorFunc builds a driver connector for one credential pair. It is
// called once per physical connection by evicting pools and once per refresh
// by refreshable pools.
type ConnectorFunc func(creds credential.Pair) (driver.Connector, error)

// Dialect knows how to turn a connection URL plus credentials into a driver
// connector for one database engine.
type Dialect interface {
	// Name is the driver name used in configuration, e.g. "postgres".
	Name() string

	// Driver returns the underlying database/sql driver.
	Driver() driver.Driver

	// Prepare validates url once and returns a factory for connectors.
	Prepare(url string) (ConnectorFunc, error)
}

var (
	dialectsMu sync.RWMutex
	dialects   = map[string]Dialect{}
)

func init() {
	RegisterDialect(postgresDialect{})
	RegisterDialect(mysqlDialect{})
}

// RegisterDialect makes a dialect available by name. A later registration
// with the same name replaces the earlier one.
func RegisterDialect(d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[d.Name()] = d
}

// LookupDialect returns the dialect registered under name.
func LookupDialect(name string) (Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()

	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s (available: %s)", name, strings.Join(dialectNames(), ", "))
	}
	return d, nil
}

func dialectNames() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// stripJDBC removes the "jdbc:" prefix Java tooling puts in front of URLs so
// a mounted jdbc-url file can be used as is.
func stripJDBC(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 5 && strings.EqualFold(raw[:5], "jdbc:") {
		return raw[5:]
	}
	return raw
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Driver() driver.Driver { return pq.Driver{} }

// Prepare accepts both URL ("postgres://host/db?sslmode=disable") and
// key/value ("host=db dbname=app") connection strings. Credentials in the
// URL are overridden per connector.
func (postgresDialect) Prepare(raw string) (ConnectorFunc, error) {
	cfg, err := pq.NewConfig(stripJDBC(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid postgres connection string: %w", err)
	}

	return func(creds credential.Pair) (driver.Connector, error) {
		c := cfg
		c.User = creds.Username
		c.Password = creds.Password
		connector, err := pq.NewConnectorConfig(c)
		if err != nil {
			return nil, err
		}
		return connector, nil
	}, nil
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Driver() driver.Driver { return &mysql.MySQLDriver{} }

func (mysqlDialect) Prepare(raw string) (ConnectorFunc, error) {
	cfg, err := parseMySQL(raw)
	if err != nil {
		return nil, err
	}

	return func(creds credential.Pair) (driver.Connector, error) {
		return mysql.NewConnector(withMySQLCredentials(cfg, creds))
	}, nil
}

// parseMySQL accepts native DSNs ("tcp(db:3306)/app?parseTime=true") and
// URLs ("mysql://db:3306/app", "jdbc:mysql://db:3306/app"). Query parameters
// of URLs are ignored since JDBC options do not map to server variables.
func parseMySQL(raw string) (*mysql.Config, error) {
	raw = stripJDBC(raw)

	if !strings.HasPrefix(strings.ToLower(raw), "mysql://") {
		cfg, err := mysql.ParseDSN(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql connection string: %w", err)
		}
		return cfg, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql connection string: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid mysql connection string: missing host")
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Host + ":3306"
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	return cfg, nil
}

func withMySQLCredentials(cfg *mysql.Config, creds credential.Pair) *mysql.Config {
	c := cfg.Clone()
	c.User = creds.Username
	c.Passwd = creds.Password
	return c
}
