package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapapp/internal/cli/output"
	"github.com/leapstack-labs/leapapp/internal/warehouse"
	"github.com/spf13/cobra"
)

// DatabaseInfo is one entry of the databases output.
type DatabaseInfo struct {
	Name     string `json:"name" yaml:"name"`
	Selected bool   `json:"selected" yaml:"selected"`
}

// SchemaOutput is the structured output of the schema command.
type SchemaOutput struct {
	Database string `json:"database" yaml:"database"`
	Schema   string `json:"schema" yaml:"schema"`
	Tables   int    `json:"tables" yaml:"tables"`
}

// NewDatabasesCommand creates the databases command.
func NewDatabasesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "databases",
		Aliases: []string{"dbs"},
		Short:   "List the databases available to chat sessions",
		Example: `  leapapp databases
  leapapp databases -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			wh, _, err := openWarehouse(cmd.Context(), cc.Cfg, cc.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = wh.Close() }()
			return renderDatabases(cmd.Context(), cc.Renderer, wh, cc.Cfg.Warehouse.Database)
		},
	}
}

// databaseLister is the part of a warehouse the databases command needs.
type databaseLister interface {
	ListDatabases(ctx context.Context) ([]string, error)
}

func renderDatabases(ctx context.Context, r *output.Renderer, wh databaseLister, selected string) error {
	names, err := wh.ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("failed to list databases: %w", err)
	}

	infos := make([]DatabaseInfo, 0, len(names))
	for _, n := range names {
		infos = append(infos, DatabaseInfo{Name: n, Selected: n == selected})
	}
	if ok, err := r.Structured(infos); ok {
		return err
	}

	if len(infos) == 0 {
		r.Muted("No databases found")
		return nil
	}
	r.Header(1, fmt.Sprintf("Databases (%d)", len(infos)))
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		mark := ""
		if info.Selected {
			mark = "*"
		}
		rows = append(rows, []string{info.Name, mark})
	}
	r.Table([]string{"Database", "Selected"}, rows)
	return nil
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [database]",
		Short: "Print the schema text the model receives for a database",
		Long: `Print the CREATE statements of every table in a database, exactly as
they are sent to the model with the first message of a session.

Without an argument the configured warehouse.database is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)
			database := cc.Cfg.Warehouse.Database
			if len(args) > 0 {
				database = args[0]
			}
			if strings.TrimSpace(database) == "" {
				return fmt.Errorf("no database given (pass one or set warehouse.database)")
			}

			wh, _, err := openWarehouse(cmd.Context(), cc.Cfg, cc.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = wh.Close() }()
			return renderSchema(cmd.Context(), cc.Renderer, wh, database)
		},
	}
}

func renderSchema(ctx context.Context, r *output.Renderer, sp warehouse.SchemaProvider, database string) error {
	schema, err := sp.SchemaText(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to load schema for %s: %w", database, err)
	}

	out := SchemaOutput{Database: database, Schema: schema, Tables: countStatements(schema)}
	if ok, err := r.Structured(out); ok {
		return err
	}

	if schema == "" {
		r.Warning(fmt.Sprintf("Database %s has no tables", database))
		return nil
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Header(1, fmt.Sprintf("Schema of %s (%d tables)", database, out.Tables))
		r.Println(output.FormatCodeBlock("sql", schema))
		return nil
	}
	r.Println(schema)
	return nil
}

func countStatements(schema string) int {
	n := 0
	for _, line := range strings.Split(schema, "\n") {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), "CREATE") {
			n++
		}
	}
	return n
}
