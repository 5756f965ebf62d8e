// Package storage persists shelf rows. Expected schema:
//
//	CREATE TABLE bookmarks (
//	    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    user_id    TEXT NOT NULL,
//	    book_id    TEXT NOT NULL,
//	    chapter    TEXT NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    UNIQUE (user_id, book_id, chapter)
//	);
//	CREATE TABLE wishlist_items (
//	    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    user_id    TEXT NOT NULL,
//	    book_id    TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    UNIQUE (user_id, book_id)
//	);
package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shelfmark/shelfmark/libs/db"
)

// ErrDuplicate reports a unique-constraint conflict, e.g. bookmarking the
// same chapter twice.
var ErrDuplicate = errors.New("duplicate entry")

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// CreateBookmark inserts a reading bookmark and returns its id.
func (r *Repository) CreateBookmark(ctx context.Context, tx pgx.Tx, userID, bookID, chapter string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookmarks (user_id, book_id, chapter)
		VALUES ($1, $2, $3)
		RETURNING id
	`, userID, bookID, chapter).Scan(&id)
	if err != nil {
		return "", mapConstraint(err)
	}
	return id, nil
}

// AddWishlistItem inserts a wishlist row and returns its id.
func (r *Repository) AddWishlistItem(ctx context.Context, tx pgx.Tx, userID, bookID string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO wishlist_items (user_id, book_id)
		VALUES ($1, $2)
		RETURNING id
	`, userID, bookID).Scan(&id)
	if err != nil {
		return "", mapConstraint(err)
	}
	return id, nil
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
