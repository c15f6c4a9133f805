package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Supported driver names.
const (
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverMySQL     = "mysql"
	DriverSQLServer = "sqlserver"
)

// ErrUnsupportedScheme is returned for URIs naming an unknown database.
var ErrUnsupportedScheme = errors.New("unsupported database scheme")

// Target is a parsed connection URI: which driver to use and the DSN that
// driver expects.
type Target struct {
	Driver string
	DSN    string
}

// InMemory reports whether the target is a private in-memory SQLite db.
func (t Target) InMemory() bool {
	return t.Driver == DriverSQLite && strings.HasPrefix(t.DSN, ":memory:")
}

// ParseURI translates a connection URI of the form
// dialect[+driver]://user:password@host:port/database?params into a Target.
//
//	sqlite:///rems.db            → relative file rems.db
//	sqlite:////var/lib/rems.db   → absolute file /var/lib/rems.db
//	sqlite://                    → in-memory
//	postgresql+psycopg2://u:p@h/db
//	mysql+pymysql://u:p@h:3306/db?charset=utf8mb4
//	mssql+pyodbc://u:p@h:1433/db
func ParseURI(uri string) (Target, error) {
	uri = strings.TrimSpace(uri)
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return Target{}, fmt.Errorf("database: %q is not a connection URI", redact(uri))
	}

	dialect, _, _ := strings.Cut(strings.ToLower(scheme), "+")

	switch dialect {
	case "sqlite", "sqlite3":
		return Target{Driver: DriverSQLite, DSN: sqliteDSN(rest)}, nil
	case "postgres", "postgresql":
		u, err := url.Parse("postgres://" + rest)
		if err != nil {
			return Target{}, fmt.Errorf("database: parse %q: %w", redact(uri), err)
		}
		return Target{Driver: DriverPostgres, DSN: u.String()}, nil
	case "mysql", "mariadb":
		dsn, err := mysqlDSN(rest)
		if err != nil {
			return Target{}, fmt.Errorf("database: parse %q: %w", redact(uri), err)
		}
		return Target{Driver: DriverMySQL, DSN: dsn}, nil
	case "mssql", "sqlserver":
		dsn, err := sqlServerDSN(rest)
		if err != nil {
			return Target{}, fmt.Errorf("database: parse %q: %w", redact(uri), err)
		}
		return Target{Driver: DriverSQLServer, DSN: dsn}, nil
	default:
		return Target{}, fmt.Errorf("database: %w %q (supported: sqlite, postgresql, mysql, mssql)", ErrUnsupportedScheme, scheme)
	}
}

// sqliteDSN handles the path part after "sqlite://". The first "/" only
// separates the empty host, so "/rems.db" is relative and "//abs" absolute.
func sqliteDSN(rest string) string {
	path, query, _ := strings.Cut(rest, "?")
	path = strings.TrimPrefix(path, "/")

	if path == "" || path == ":memory:" {
		path = ":memory:"
	}
	if query != "" {
		return path + "?" + query
	}
	return path
}

func mysqlDSN(rest string) (string, error) {
	u, err := url.Parse("mysql://" + rest)
	if err != nil {
		return "", err
	}

	cfg := mysql.NewConfig()
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}

	cfg.Net = "tcp"
	host := u.Hostname()
	if host == "" {
		host = "127.0.0.1"
	}
	port := u.Port()
	if port == "" {
		port = "3306"
	}
	cfg.Addr = net.JoinHostPort(host, port)
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true

	params := map[string]string{}
	for k, vs := range u.Query() {
		if len(vs) == 0 {
			continue
		}
		switch k {
		case "parseTime":
			continue
		case "unix_socket":
			cfg.Net = "unix"
			cfg.Addr = vs[0]
		default:
			params[k] = vs[0]
		}
	}
	if len(params) > 0 {
		cfg.Params = params
	}

	return cfg.FormatDSN(), nil
}

func sqlServerDSN(rest string) (string, error) {
	u, err := url.Parse("sqlserver://" + rest)
	if err != nil {
		return "", err
	}

	q := u.Query()
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		q.Set("database", db)
	}
	// ODBC driver hints have no meaning to the Go driver.
	q.Del("driver")

	out := url.URL{
		Scheme:   "sqlserver",
		User:     u.User,
		Host:     u.Host,
		RawQuery: q.Encode(),
	}
	return out.String(), nil
}

// redact hides the password in a URI for error messages and logs.
func redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, has := u.User.Password(); !has {
		return uri
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}

// Redact is exported for callers that log connection URIs.
func Redact(uri string) string { return redact(uri) }
