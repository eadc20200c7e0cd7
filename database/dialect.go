/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// opener resolves the database/sql driver, DSN and bun dialect for a config.
type opener func(cfg *ConnectionConfig) (driver, dsn string, dialect schema.Dialect, err error)

var openers = map[string]opener{
	"postgres": openPostgres,
	"mysql":    openMySQL,
	"sqlite":   openSQLite,
}

// openBun opens (but does not ping) the handle for cfg.Type.
func openBun(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	open, ok := openers[dialectAliases[strings.ToLower(cfg.Type)]]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	driver, dsn, dialect, err := open(cfg)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, dialect), nil
}

func openPostgres(cfg *ConnectionConfig) (string, string, schema.Dialect, error) {
	var driver string
	switch strings.ToLower(cfg.Driver) {
	case "", "pq", "postgres":
		driver = "postgres"
	case "pgx":
		driver = "pgx"
	default:
		return "", "", nil, fmt.Errorf("unsupported postgres driver: %s", cfg.Driver)
	}
	return driver, postgresDSN(cfg), pgdialect.New(), nil
}

func postgresDSN(cfg *ConnectionConfig) string {
	q := url.Values{}
	q.Set("sslmode", orDefault(cfg.SSLMode, "disable"))
	q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     hostPort(cfg.Host, cfg.Port, 5432),
		Path:     "/" + cfg.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func openMySQL(cfg *ConnectionConfig) (string, string, schema.Dialect, error) {
	return "mysql", mysqlDSN(cfg), mysqldialect.New(), nil
}

func mysqlDSN(cfg *ConnectionConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = hostPort(cfg.Host, cfg.Port, 3306)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.Local
	mc.Timeout = cfg.ConnectTimeout
	mc.ReadTimeout = cfg.ReadTimeout
	mc.WriteTimeout = cfg.WriteTimeout
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func openSQLite(cfg *ConnectionConfig) (string, string, schema.Dialect, error) {
	return sqliteshim.ShimName, withForeignKeys(sqliteDSN(cfg.DBName)), sqlitedialect.New(), nil
}

// withForeignKeys turns on foreign key enforcement for every connection,
// using the parameter understood by the driver sqliteshim picked.
func withForeignKeys(dsn string) string {
	param := "_pragma=foreign_keys(1)"
	if sqliteshim.DriverName() == "sqlite3" {
		param = "_foreign_keys=1"
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

// sqliteDSN maps a database name to a file DSN. ":memory:" and names that
// already start with "file:" are kept in memory or passed through.
func sqliteDSN(name string) string {
	switch {
	case name == "" || name == ":memory:":
		return "file::memory:?cache=shared"
	case strings.HasPrefix(name, "file:"), strings.HasSuffix(name, ".db"):
		return name
	default:
		return name + ".db"
	}
}

func isInMemorySQLite(cfg *ConnectionConfig) bool {
	if dialectAliases[strings.ToLower(cfg.Type)] != "sqlite" {
		return false
	}
	return strings.Contains(sqliteDSN(cfg.DBName), "memory")
}

func hostPort(host string, port, def int) string {
	if port == 0 {
		port = def
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
