package repository

import (
	"embed"
	"fmt"
	"strconv"
	"strings"

	// database/sql drivers for the supported dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverMySQL    = "mysql"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// dialect captures the SQL differences between the supported databases.
// Queries are written with '?' placeholders and rebound per dialect.
type dialect struct {
	name      string
	numbered  bool   // $1, $2, ... placeholders
	returning bool   // INSERT ... RETURNING id is available
	forUpdate string // row lock suffix for read-modify-write
}

var dialects = map[string]dialect{
	DriverPostgres: {name: DriverPostgres, numbered: true, returning: true, forUpdate: " FOR UPDATE"},
	DriverSQLite:   {name: DriverSQLite, returning: true},
	DriverMySQL:    {name: DriverMySQL, forUpdate: " FOR UPDATE"},
}

func lookupDialect(driver string) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	return d, nil
}

func (d dialect) rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() (string, error) {
	ddl, err := schemaFS.ReadFile("schema/" + d.name + ".sql")
	if err != nil {
		return "", fmt.Errorf("schema for %s: %w", d.name, err)
	}
	return string(ddl), nil
}
