// Package postgres implements every repository port (domain/ports) over
// PostgreSQL with raw database/sql and github.com/lib/pq, in the style
// of the teacher's internal/database PostgresStore: one struct per port
// wrapping *sql.DB, parameterized queries, pq.Array for slice columns,
// json.Marshal/Unmarshal for nested map/struct columns.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// DB is the shared handle every store in this package wraps. Kept as a
// thin struct embedding *sql.DB (rather than an interface) since every
// store needs the full Query/Exec/transaction surface, matching the
// teacher's PostgresStore constructors taking *sql.DB directly.
type DB struct {
	*sql.DB
}

func Open(db *sql.DB) *DB {
	return &DB{DB: db}
}

// HealthCheck pings the connection, the same shape as the teacher's
// RepositoryInterface.HealthCheck.
func (d *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.PingContext(ctx)
}

// uniqueViolation is the Postgres error code for a unique_violation
// (23505), the code every CreateX-on-a-unique-column store in this
// package maps to a domain Conflict.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
