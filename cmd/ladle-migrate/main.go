// ladle-migrate applies the embedded schema migrations to Postgres.
//
// Usage:
//
//	ladle-migrate [--db-url URL] [up|down|status|version]
//
// The command defaults to "up". The connection string falls back to
// the LADLE_DB_URL environment variable.
package main

import (
	"database/sql"
	"flag"
	"log"
	"os"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ladleio/ladle/migrations"
)

var dbURL = flag.String("db-url", "", "Postgres connection string (default $LADLE_DB_URL)")

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags)

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("LADLE_DB_URL")
	}
	if dsn == "" {
		log.Fatal("no database configured: pass --db-url or set LADLE_DB_URL")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to reach database: %v", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("Failed to set dialect: %v", err)
	}

	switch command {
	case "up":
		err = goose.Up(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	default:
		log.Fatalf("Unknown command %q (want up, down, status, or version)", command)
	}
	if err != nil {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
}
