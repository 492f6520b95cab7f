package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
)

// Migrate executes every *.sql file of fsys in lexical order and returns the
// names it applied. The statements are expected to be idempotent.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) ([]string, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	applied := make([]string, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.Pool.Exec(ctx, string(data)); err != nil {
			return applied, fmt.Errorf("exec %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}
