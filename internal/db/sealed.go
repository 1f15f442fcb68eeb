package db

import (
	"context"
	"fmt"
)

// Collections that can be sealed.
const (
	CollectionDatabases = "databases"
	CollectionCallers   = "callers"
)

// ListSealed returns the sealed records of a collection in order.
func ListSealed(ctx context.Context, q Querier, collection string) ([][]byte, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT ciphertext FROM sealed_records WHERE collection = ? ORDER BY position",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("query sealed %s: %w", collection, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var ct []byte
		if err := rows.Scan(&ct); err != nil {
			return nil, fmt.Errorf("scan sealed %s: %w", collection, err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// ReplaceSealed rewrites the sealed records of a collection.
func ReplaceSealed(ctx context.Context, q Querier, collection string, records [][]byte) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM sealed_records WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("clear sealed %s: %w", collection, err)
	}
	for i, ct := range records {
		_, err := q.ExecContext(ctx,
			"INSERT INTO sealed_records (collection, position, ciphertext) VALUES (?, ?, ?)",
			collection, i, ct,
		)
		if err != nil {
			return fmt.Errorf("insert sealed %s: %w", collection, err)
		}
	}
	return nil
}
