package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Caller is a trusted invoking executable. Nil UID or GID matches any value.
type Caller struct {
	Path string  `json:"path"`
	UID  *uint32 `json:"uid,omitempty"`
	GID  *uint32 `json:"gid,omitempty"`
}

// ListCallers returns the plaintext callers in insertion order.
func ListCallers(ctx context.Context, q Querier) ([]Caller, error) {
	rows, err := q.QueryContext(ctx, "SELECT path, uid, gid FROM callers ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query callers: %w", err)
	}
	defer rows.Close()

	var out []Caller
	for rows.Next() {
		var (
			c        Caller
			uid, gid sql.NullInt64
		)
		if err := rows.Scan(&c.Path, &uid, &gid); err != nil {
			return nil, fmt.Errorf("scan caller: %w", err)
		}
		c.UID = fromNull(uid)
		c.GID = fromNull(gid)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceCallers rewrites the plaintext callers table.
func ReplaceCallers(ctx context.Context, q Querier, list []Caller) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM callers"); err != nil {
		return fmt.Errorf("clear callers: %w", err)
	}
	for i, c := range list {
		_, err := q.ExecContext(ctx,
			"INSERT INTO callers (position, path, uid, gid) VALUES (?, ?, ?, ?)",
			i, c.Path, toNull(c.UID), toNull(c.GID),
		)
		if err != nil {
			return fmt.Errorf("insert caller %s: %w", c.Path, err)
		}
	}
	return nil
}

func fromNull(v sql.NullInt64) *uint32 {
	if !v.Valid {
		return nil
	}
	u := uint32(v.Int64)
	return &u
}

func toNull(v *uint32) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
