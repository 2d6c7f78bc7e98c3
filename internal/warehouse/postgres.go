package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

func init() {
	Register("postgres", func(logger *slog.Logger) Warehouse { return NewPostgres(logger) })
}

// Postgres serves schemas from PostgreSQL. Postgres cannot query across
// databases, so the "databases" it exposes are the schemas of the connected
// database; generated queries then address tables as schema.table.
type Postgres struct {
	BaseSQL
}

// NewPostgres creates an unconnected Postgres warehouse.
func NewPostgres(logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Postgres{BaseSQL: BaseSQL{Logger: logger}}
}

// NewPostgresFromDB wraps an existing connection.
func NewPostgresFromDB(db *sql.DB, logger *slog.Logger) *Postgres {
	w := NewPostgres(logger)
	w.DB = db
	return w
}

// DialectName returns "postgres".
func (w *Postgres) DialectName() string {
	return "postgres"
}

// Connect establishes a connection to PostgreSQL.
func (w *Postgres) Connect(ctx context.Context, cfg Config) error {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = buildPostgresDSN(cfg)
	}

	w.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	w.DB = db
	w.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a key=value PostgreSQL connection string.
func buildPostgresDSN(cfg Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, cfg.Database, sslmode)
	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return dsn
}

// ListDatabases returns the user schemas of the connected database.
func (w *Postgres) ListDatabases(ctx context.Context) ([]string, error) {
	schemas, err := w.queryStrings(ctx, `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
		  AND schema_name NOT LIKE 'pg_toast%'
		  AND schema_name NOT LIKE 'pg_temp%'
		ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	return schemas, nil
}

// SchemaText renders a CREATE TABLE statement per table in the schema,
// built from information_schema since Postgres keeps no DDL text.
func (w *Postgres) SchemaText(ctx context.Context, schema string) (string, error) {
	if w.DB == nil {
		return "", fmt.Errorf("database connection not established")
	}

	rows, err := w.DB.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position`, schema)
	if err != nil {
		return "", fmt.Errorf("failed to read schema of %s: %w", schema, err)
	}
	defer func() { _ = rows.Close() }()

	var (
		statements []string
		table      string
		columns    []string
	)
	flush := func() {
		if table != "" {
			statements = append(statements, fmt.Sprintf("CREATE TABLE %s.%s(%s);", schema, table, strings.Join(columns, ", ")))
		}
	}
	for rows.Next() {
		var tbl, col, typ, nullable string
		if err := rows.Scan(&tbl, &col, &typ, &nullable); err != nil {
			return "", fmt.Errorf("failed to scan column: %w", err)
		}
		if tbl != table {
			flush()
			table, columns = tbl, nil
		}
		def := col + " " + strings.ToUpper(typ)
		if nullable == "NO" {
			def += " NOT NULL"
		}
		columns = append(columns, def)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating columns: %w", err)
	}
	flush()

	return strings.Join(statements, "\n"), nil
}
