package db

import (
	"context"
	"fmt"
)

// Association is a KeePassXC database association: the id KeePassXC assigned
// and the long-term id keypair registered with it.
type Association struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	PublicKey string `json:"pkey"`
	Group     string `json:"group"`
	GroupUUID string `json:"group_uuid"`
}

// ListAssociations returns the plaintext associations in insertion order.
func ListAssociations(ctx context.Context, q Querier) ([]Association, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, key, pkey, group_name, group_uuid
		FROM databases
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	defer rows.Close()

	var out []Association
	for rows.Next() {
		var a Association
		if err := rows.Scan(&a.ID, &a.Key, &a.PublicKey, &a.Group, &a.GroupUUID); err != nil {
			return nil, fmt.Errorf("scan database: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceAssociations rewrites the plaintext associations table.
func ReplaceAssociations(ctx context.Context, q Querier, list []Association) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM databases"); err != nil {
		return fmt.Errorf("clear databases: %w", err)
	}
	for i, a := range list {
		_, err := q.ExecContext(ctx, `
			INSERT INTO databases (position, id, key, pkey, group_name, group_uuid)
			VALUES (?, ?, ?, ?, ?, ?)
		`, i, a.ID, a.Key, a.PublicKey, a.Group, a.GroupUUID)
		if err != nil {
			return fmt.Errorf("insert database %s: %w", a.ID, err)
		}
	}
	return nil
}
