package repository

import (
	"context"
	"database/sql"
	"errors"
)

// TagRepo handles tags.
type TagRepo struct {
	db DBTX
}

func NewTagRepo(db DBTX) *TagRepo { return &TagRepo{db: db} }

// Ensure creates the tag if needed and returns it. Ids are derived from the
// name, so concurrent callers agree on them.
func (r *TagRepo) Ensure(ctx context.Context, name string) (Tag, error) {
	t := Tag{ID: TagID(name), Name: name}
	_, err := r.db.ExecContext(ctx, `INSERT INTO tags(id, name) VALUES (?, ?) ON CONFLICT DO NOTHING`, t.ID, t.Name)
	return t, err
}

func (r *TagRepo) ByName(ctx context.Context, name string) (*Tag, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE name = ?`, name)
	var t Tag
	if err := row.Scan(&t.ID, &t.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TagRepo) List(ctx context.Context) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
