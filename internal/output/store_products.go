package output

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SaveProduct upserts the typed payload a stage produced for an output.
// Regeneration overwrites the previous payload for the same kind.
func (s *Store) SaveProduct(ctx context.Context, outputID string, kind ProductKind, payload string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO products (output_id, kind, payload, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (output_id, kind) DO UPDATE SET
             payload = excluded.payload,
             updated_at = excluded.updated_at`,
		outputID, kind, payload, now, now,
	)
	if err != nil {
		return storageErr("save product", err)
	}
	return nil
}

// Product fetches one typed payload. Returns nil when the stage has not
// produced it yet.
func (s *Store) Product(ctx context.Context, outputID string, kind ProductKind) (*Product, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT output_id, kind, payload, created_at, updated_at
         FROM products WHERE output_id = ? AND kind = ?`,
		outputID, kind,
	)

	var (
		product    Product
		rawKind    string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	err := row.Scan(&product.OutputID, &rawKind, &product.Payload, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get product", err)
	}
	product.Kind = ProductKind(rawKind)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		product.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		product.UpdatedAt = updated
	}
	return &product, nil
}

// HasProduct reports whether a payload of the given kind exists. The
// stage resolver uses this for the outline and prose existence checks.
func (s *Store) HasProduct(ctx context.Context, outputID string, kind ProductKind) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM products WHERE output_id = ? AND kind = ?`,
		outputID, kind,
	).Scan(&count)
	if err != nil {
		return false, storageErr("check product", err)
	}
	return count > 0, nil
}

// DeleteProduct removes one typed payload.
func (s *Store) DeleteProduct(ctx context.Context, outputID string, kind ProductKind) error {
	if _, err := s.execWithRetry(
		ctx,
		`DELETE FROM products WHERE output_id = ? AND kind = ?`,
		outputID, kind,
	); err != nil {
		return storageErr("delete product", err)
	}
	return nil
}
