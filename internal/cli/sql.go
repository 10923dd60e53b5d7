package cli

import (
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/JohnPlummer/jp-go-access/sqlaccess"
)

// newSQLCmd groups the database commands. sql.driver may name any of the drivers
// registered above: "mysql", "pgx", "postgres" or "sqlite".
func newSQLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Run statements against the configured database",
	}
	cmd.AddCommand(newSQLExecCmd(), newSQLStreamCmd())
	return cmd
}

func openDB(cmd *cobra.Command) (*sqlaccess.DB, error) {
	if state.cfg.SQL.Driver == "" || state.cfg.SQL.DSN == "" {
		return nil, fmt.Errorf("sql.driver and sql.dsn must be configured")
	}
	return sqlaccess.Open(cmd.Context(), state.cfg.SQL, state.options("sql")...)
}

func newSQLExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec [statement] [args...]",
		Short: "Execute a statement that returns no rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := db.Exec(cmd.Context(), args[0], stringArgs(args[1:])...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "rows affected: %d\n", res.RowsAffected)
			return err
		},
	}
}

func newSQLStreamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream [query] [args...]",
		Short: "Stream a result set in batches, one JSON line per row",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			stream, err := sqlaccess.Stream[map[string]any](cmd.Context(), db, args[0], stringArgs(args[1:])...)
			if err != nil {
				return err
			}
			defer stream.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for batch, err := range stream.All(cmd.Context()) {
				if err != nil {
					return err
				}
				state.logger.Debug("batch", "index", batch.Index, "records", batch.Len(), "final", batch.Final)
				for _, row := range batch.Records {
					if err := enc.Encode(printable(row)); err != nil {
						return err
					}
				}
			}
			state.logger.Info("stream complete", "operation_id", stream.OperationID(), "rows", stream.Delivered())
			return nil
		},
	}
}

func stringArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

// printable converts driver byte slices to strings for JSON output.
func printable(row map[string]any) map[string]any {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row
}
