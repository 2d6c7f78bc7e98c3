// Package warehouse connects to the SQL warehouse the generated app reads
// from and describes its schema for the model.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Config holds the configuration for connecting to a warehouse.
type Config struct {
	// Type selects the registered driver ("duckdb", "postgres").
	Type string

	// DSN is the driver connection string. For DuckDB this is a file path,
	// ":memory:" or "md:" for MotherDuck.
	DSN string

	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Options contains driver-specific string options (e.g. sslmode).
	Options map[string]string

	// Params contains structured driver-specific settings.
	Params map[string]any
}

// SchemaProvider describes a database as DDL-like text.
type SchemaProvider interface {
	// SchemaText returns the CREATE statements of every table in database,
	// one per line, or "" when the database has no tables.
	SchemaText(ctx context.Context, database string) (string, error)
}

// Warehouse is a connected warehouse.
type Warehouse interface {
	SchemaProvider

	Connect(ctx context.Context, cfg Config) error
	Close() error

	// ListDatabases returns the user-visible databases, sorted.
	ListDatabases(ctx context.Context) ([]string, error)

	// DialectName returns the SQL dialect name ("duckdb", "postgres").
	DialectName() string
}

// BaseSQL provides shared database/sql plumbing for warehouses.
type BaseSQL struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQL) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing warehouse connection")
		}
		return b.DB.Close()
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQL) IsConnected() bool {
	return b.DB != nil
}

func (b *BaseSQL) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	rows, err := b.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Warehouse)
)

// Register adds a warehouse factory to the registry.
// Called by implementations in their init() functions.
func Register(name string, factory func(*slog.Logger) Warehouse) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// IsRegistered checks if a warehouse type is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// ListTypes returns all registered warehouse types (sorted).
func ListTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownTypeError is returned when an unknown warehouse type is requested.
type UnknownTypeError struct {
	Type      string
	Available []string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown warehouse type %q\nAvailable types: %v\nHint: Check warehouse.type in leapapp.yaml", e.Type, e.Available)
}

// Open creates the warehouse for cfg.Type and connects it.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Warehouse, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("warehouse type not specified")
	}

	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownTypeError{Type: cfg.Type, Available: ListTypes()}
	}

	w := factory(logger)
	if err := w.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	return w, nil
}
