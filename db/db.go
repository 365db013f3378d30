package db

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/viper"
)

//go:embed db_init.sql
var sqlFS embed.FS

// OpenDatabase connects to Postgres and applies the schema. The
// pipeline runs without a database; callers treat a connection
// failure as "no ledger", not a fatal error.
func OpenDatabase(ctx context.Context) (*pgx.Conn, *Ledger, error) {
	conn, err := pgx.Connect(ctx, viper.GetString("DATABASE_URL"))
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	sqlFile, err := sqlFS.ReadFile("db_init.sql")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read embedded db_init.sql: %w", err)
	}

	if _, err := conn.Exec(ctx, string(sqlFile)); err != nil {
		return nil, nil, fmt.Errorf("failed to execute embedded db_init.sql: %w", err)
	}

	return conn, NewLedger(conn), nil
}
