package registry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// ResolveDSN picks the database/sql driver and a driver-native DSN.
// driver may be empty: a mysql:// URL selects MySQL, anything else is a SQLite path.
func ResolveDSN(driver, dsn string) (string, string, error) {
	if driver == "" {
		driver = DriverSQLite
		if strings.HasPrefix(dsn, "mysql://") {
			driver = DriverMySQL
		}
	}

	switch driver {
	case DriverSQLite:
		if dsn == "" {
			return "", "", fmt.Errorf("sqlite: empty database path")
		}
		return DriverSQLite, dsn, nil
	case DriverMySQL:
		native, err := mysqlDSN(dsn)
		if err != nil {
			return "", "", err
		}
		return DriverMySQL, native, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// mysqlDSN converts a mysql:// URL (as handed out by hosted MySQL providers)
// into the go-sql-driver format and forces parseTime so DATETIME scans into time.Time.
func mysqlDSN(dsn string) (string, error) {
	var mc *mysql.Config
	if strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("mysql: invalid url: %w", err)
		}
		mc = mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = u.Host
		if u.Port() == "" {
			mc.Addr = u.Host + ":3306"
		}
		if u.User != nil {
			mc.User = u.User.Username()
			mc.Passwd, _ = u.User.Password()
		}
		mc.DBName = strings.TrimPrefix(u.Path, "/")
		q := u.Query()
		if ssl := q.Get("ssl"); ssl != "" {
			// {"rejectUnauthorized":true} style values mean "verify"; anything else is passed through.
			if strings.Contains(ssl, "rejectUnauthorized") || ssl == "true" {
				mc.TLSConfig = "true"
			} else {
				mc.TLSConfig = ssl
			}
		}
		if tls := q.Get("tls"); tls != "" {
			mc.TLSConfig = tls
		}
	} else {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("mysql: invalid dsn: %w", err)
		}
		mc = parsed
	}
	if mc.DBName == "" {
		return "", fmt.Errorf("mysql: database name is required")
	}
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}
