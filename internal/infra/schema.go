package infra

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ValidateSchema compares the live database against the columns each repository
// selects and fails if any is missing.
func ValidateSchema(ctx context.Context, pool *pgxpool.Pool, expected map[string][]string) error {
	tables := make([]string, 0, len(expected))
	for t := range expected {
		tables = append(tables, t)
	}

	rows, err := pool.Query(ctx, `
		SELECT table_name::text, column_name::text FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ANY($1)`, tables)
	if err != nil {
		return fmt.Errorf("read information_schema: %w", err)
	}

	actual := make(map[string]map[string]bool, len(expected))
	var table, column string
	_, err = pgx.ForEachRow(rows, []any{&table, &column}, func() error {
		if actual[table] == nil {
			actual[table] = map[string]bool{}
		}
		actual[table][column] = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan information_schema: %w", err)
	}

	if missing := missingColumns(expected, actual); len(missing) > 0 {
		return fmt.Errorf("schema mismatch, missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// missingColumns lists table.column pairs present in expected but absent from actual, sorted.
func missingColumns(expected map[string][]string, actual map[string]map[string]bool) []string {
	var missing []string
	for table, cols := range expected {
		for _, c := range cols {
			if !actual[table][c] {
				missing = append(missing, table+"."+c)
			}
		}
	}
	sort.Strings(missing)
	return missing
}
