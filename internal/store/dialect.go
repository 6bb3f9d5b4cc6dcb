package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported driver names, as accepted by Connect.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name string
	// sqlDriver is the database/sql driver name registered by the driver package.
	sqlDriver   string
	numbered    bool
	truncate    string
	like        string
	dayFormat   func(col string) string
	monthFormat func(col string) string
}

var dialects = map[string]Dialect{
	DriverSQLite: {
		Name:      DriverSQLite,
		sqlDriver: "sqlite",
		truncate:  "DELETE FROM transactions",
		like:      "LIKE",
		dayFormat: func(col string) string {
			return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", col)
		},
		monthFormat: func(col string) string {
			return fmt.Sprintf("strftime('%%Y-%%m', %s)", col)
		},
	},
	DriverPostgres: {
		Name:      DriverPostgres,
		sqlDriver: "pgx",
		numbered:  true,
		truncate:  "TRUNCATE TABLE transactions RESTART IDENTITY",
		like:      "ILIKE",
		dayFormat: func(col string) string {
			return fmt.Sprintf("to_char(%s, 'YYYY-MM-DD')", col)
		},
		monthFormat: func(col string) string {
			return fmt.Sprintf("to_char(%s, 'YYYY-MM')", col)
		},
	},
}

// DialectFor returns the dialect registered for driver.
func DialectFor(driver string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return Dialect{}, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	return d, nil
}

// Rebind rewrites ? placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
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

// TruncateSQL empties the transactions table.
func (d Dialect) TruncateSQL() string { return d.truncate }

// Like is the case-insensitive pattern operator.
func (d Dialect) Like() string { return d.like }

// Day formats col as YYYY-MM-DD.
func (d Dialect) Day(col string) string { return d.dayFormat(col) }

// Month formats col as YYYY-MM.
func (d Dialect) Month(col string) string { return d.monthFormat(col) }
