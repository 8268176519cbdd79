package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresChecker probes the canonical store connection
type PostgresChecker struct {
	db *sqlx.DB
}

// NewPostgresChecker creates a checker over an open database handle
func NewPostgresChecker(db *sqlx.DB) *PostgresChecker {
	return &PostgresChecker{db: db}
}

// Name returns the dependency name
func (p *PostgresChecker) Name() string {
	return "postgres"
}

// Check pings the database
func (p *PostgresChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := p.db.PingContext(ctx); err != nil {
		return result(start, false, fmt.Sprintf("ping failed: %v", err))
	}
	return result(start, true, "ok")
}
