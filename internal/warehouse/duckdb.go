package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

func init() {
	Register("duckdb", func(logger *slog.Logger) Warehouse { return NewDuckDB(logger) })
}

// MotherDuckDSN connects DuckDB to MotherDuck using the motherduck_token
// environment variable.
const MotherDuckDSN = "md:"

// DuckDBParams holds DuckDB-specific settings, decoded from Config.Params.
type DuckDBParams struct {
	// Extensions to install and load (e.g., "httpfs", "json").
	Extensions []string `mapstructure:"extensions"`

	// Settings applied with SET at connect time (e.g., memory_limit, threads).
	Settings map[string]string `mapstructure:"settings"`
}

// DuckDB serves schemas from DuckDB or MotherDuck.
type DuckDB struct {
	BaseSQL
}

// NewDuckDB creates an unconnected DuckDB warehouse.
func NewDuckDB(logger *slog.Logger) *DuckDB {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDB{BaseSQL: BaseSQL{Logger: logger}}
}

// NewDuckDBFromDB wraps an existing connection.
func NewDuckDBFromDB(db *sql.DB, logger *slog.Logger) *DuckDB {
	w := NewDuckDB(logger)
	w.DB = db
	return w
}

// DialectName returns "duckdb".
func (w *DuckDB) DialectName() string {
	return "duckdb"
}

// Connect opens the DuckDB database. An empty DSN opens an in-memory database.
func (w *DuckDB) Connect(ctx context.Context, cfg Config) error {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = ":memory:"
	}

	params, err := decodeDuckDBParams(cfg.Params)
	if err != nil {
		return err
	}

	w.Logger.Debug("connecting to duckdb", slog.String("dsn", redactDSN(dsn)))

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	w.DB = db
	w.Cfg = cfg

	if err := w.applyParams(ctx, params); err != nil {
		_ = db.Close()
		w.DB = nil
		return err
	}
	return nil
}

func decodeDuckDBParams(raw map[string]any) (DuckDBParams, error) {
	var params DuckDBParams
	if len(raw) == 0 {
		return params, nil
	}
	if err := mapstructure.Decode(raw, &params); err != nil {
		return params, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return params, nil
}

func (w *DuckDB) applyParams(ctx context.Context, params DuckDBParams) error {
	for _, ext := range params.Extensions {
		w.Logger.Debug("loading duckdb extension", slog.String("extension", ext))
		if _, err := w.DB.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}
	for k, v := range params.Settings {
		if _, err := w.DB.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", k, strings.ReplaceAll(v, "'", "''"))); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}
	return nil
}

// ListDatabases returns the attached, non-internal databases.
func (w *DuckDB) ListDatabases(ctx context.Context) ([]string, error) {
	dbs, err := w.queryStrings(ctx,
		`SELECT database_name FROM duckdb_databases() WHERE NOT internal ORDER BY database_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	return dbs, nil
}

// SchemaText returns the CREATE TABLE statements DuckDB recorded for every
// table in database.
func (w *DuckDB) SchemaText(ctx context.Context, database string) (string, error) {
	if w.DB == nil {
		return "", fmt.Errorf("database connection not established")
	}

	var schema sql.NullString
	err := w.DB.QueryRowContext(ctx,
		`SELECT array_to_string(list(sql ORDER BY schema_name, table_name), chr(10)) FROM duckdb_tables() WHERE database_name = ?`,
		database,
	).Scan(&schema)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read schema of %s: %w", database, err)
	}
	return schema.String, nil
}

// redactDSN hides MotherDuck tokens passed inline in the DSN.
func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "motherduck_token="); i >= 0 {
		return dsn[:i] + "motherduck_token=***"
	}
	return dsn
}
