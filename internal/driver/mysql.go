package driver

import (
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// NewMySQLDriver opens a MySQL pool. parseTime is always switched on so
// DATETIME columns scan into time.Time.
func NewMySQLDriver(dsn string, maxConn int) (*SQLDriver, error) {
	dsn, err := mysqlDSN(dsn)
	if err != nil {
		return nil, err
	}
	return newSQLDriver("mysql", "mysql", dsn, Question, maxConn)
}

func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}
