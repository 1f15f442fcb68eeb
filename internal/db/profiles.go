package db

import (
	"context"
	"fmt"
)

// Profile is an encryption profile: one way of recovering the data key.
type Profile struct {
	Kind       string
	Argument   string
	Salt       []byte
	KDFTime    uint32
	KDFMemory  uint32
	KDFThreads uint8
	WrappedKey []byte
}

// ListProfiles returns the encryption profiles in the order they were added.
func ListProfiles(ctx context.Context, q Querier) ([]Profile, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT kind, argument, salt, kdf_time, kdf_memory, kdf_threads, wrapped_key
		FROM encryption_profiles
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.Kind, &p.Argument, &p.Salt, &p.KDFTime, &p.KDFMemory, &p.KDFThreads, &p.WrappedKey); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceProfiles rewrites the encryption profiles table.
func ReplaceProfiles(ctx context.Context, q Querier, list []Profile) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM encryption_profiles"); err != nil {
		return fmt.Errorf("clear profiles: %w", err)
	}
	for i, p := range list {
		_, err := q.ExecContext(ctx, `
			INSERT INTO encryption_profiles
				(position, kind, argument, salt, kdf_time, kdf_memory, kdf_threads, wrapped_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, i, p.Kind, p.Argument, p.Salt, p.KDFTime, p.KDFMemory, p.KDFThreads, p.WrappedKey)
		if err != nil {
			return fmt.Errorf("insert profile %s: %w", p.Kind, err)
		}
	}
	return nil
}
